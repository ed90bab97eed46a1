/*
包 database 在 sqlbridge 连接器之上提供 GORM 与 database/sql 连接池管理，
池内每条连接都是一个独立的数据库会话。

# 概述

Open 用 sql.OpenDB 包装连接器，按方言（postgres、mysql、sqlite）
选择 GORM Dialector，并把 GORM 日志转发到 zap。Ping 会对池内会话做一次
不带缓存的存活探测；失效会话由连接池丢弃并重新创建。

# 核心类型

  - Manager：持有 GORM 实例与底层 sql.DB，提供 DB()、Ping()、Stats()、Close()。
  - PoolConfig：连接池配置与校验。
  - GormLogger：GORM 日志适配器，记录失败语句与慢查询。
  - TransactionFunc：事务回调函数类型。

# 事务重试

WithTransactionRetry 对死锁、序列化失败、连接类错误以及会话断开、
重连限流按指数退避重试。
*/
package database
