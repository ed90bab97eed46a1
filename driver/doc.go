// Copyright (c) SessionDB Authors.
// Licensed under the MIT License.

/*
包 driver 定义会话层所依赖的底层驱动契约。

# 概述

session 包只通过本包的接口与真实数据库驱动交互：Driver 负责建立物理连接，
Conn 表示一个已打开的连接句柄，Stmt 表示一个预处理或已执行的语句句柄。
任何实现这些接口的类型都可以放在会话层之下，sqldriver 包提供了基于
database/sql 的默认实现，testutil/mocks 提供了可编排的内存实现。

# 核心类型

  - Driver / Conn / Stmt：句柄契约
  - Column / Param：列与参数标识（下标或名称），可直接作为 map 键
  - ColumnBinding / ParamBinding / ValueBinding：绑定参数
  - Binder / Ref：按引用绑定的抽象，执行时读取的值即驱动收到的值
  - FetchMode / StatementOptions：取数模式与语句选项
  - Row / ColumnMeta / ErrorInfo：结果行、列元数据与 PDO 风格错误信息
*/
package driver
