// Copyright (c) SessionDB Authors.
// Licensed under the MIT License.

/*
包 session 在普通数据库连接句柄之上提供透明的会话层。

# 概述

Conn 负责连接生命周期：延迟连接、显式断开/重连、显式断开后按配置自动重连，
以及带缓存的存活探测。Stmt 记录每一次改变语句状态的调用，连接重建后第一次
使用时按固定顺序（属性 → 列绑定 → 按引用参数 → 按值参数 → 取数模式）
把这些记录重放到新建的语句句柄上，调用方感知不到重连。

# 核心类型

  - Conn：连接生命周期管理器，持有底层句柄、属性表与语句句柄登记表
  - Stmt：语句包装，持有变更日志与当前句柄
  - Liveness：连接与其语句共享的存活观测单元
  - Observer：生命周期事件回调，internal/metrics 用它导出 Prometheus 指标
  - Error：会话层自身的错误（NotConnected、ReconstructFailed 等）

# 并发

Conn 与 Stmt 都不是并发安全的。跨 goroutine 共享时由调用方加锁；
sqlbridge 包则为每条 database/sql 连接创建独立的 Conn。
*/
package session
