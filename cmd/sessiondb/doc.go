// Copyright (c) SessionDB Authors.
// Licensed under the MIT License.

/*
Package main 提供 sessiondb 命令行工具。

# 概述

cmd/sessiondb 通过会话层访问数据库，用于连通性排查、临时执行语句、
并发存活探测、Prometheus 指标导出以及数据库迁移。所有子命令共享
--config / --driver / --dsn 参数，配置经 config.Loader 加载并校验。

# 子命令

  - ping     不走缓存的存活探测
  - exec     执行语句，输出受影响行数
  - query    查询并以表格输出结果集
  - probe    errgroup 并发打开多个会话，按轮次探测，可在轮次间重连
  - watch    在 sqlbridge 连接池上周期 Ping，会话事件写入 Prometheus，
    可选地通过 internal/server 暴露 /metrics 与 /healthz
  - status   列出 Redis 状态看板上的 watch 实例（internal/cache）
  - migrate  golang-migrate 迁移，语句经会话连接执行
  - version  构建信息，Version/BuildTime/GitCommit 通过 ldflags 注入

postgres、pgx、mysql 与 sqlite 驱动在本包中以空导入方式注册。
*/
package main
