// Copyright (c) SessionDB Authors.
// Licensed under the MIT License.

/*
包 sqldriver 基于 database/sql 实现 driver 契约，是会话层默认的底层驱动。

# 概述

每个 driver.Conn 句柄独占一个 *sql.DB（最大连接数为 1）并固定其中一个
*sql.Conn，因此会话变量、事务与预处理语句都落在同一条物理连接上，
关闭句柄即关闭物理连接。具体的 database/sql 驱动由调用方注册
（lib/pq、pgx stdlib、go-sql-driver/mysql、glebarez/go-sqlite 等），
本包只按方言处理凭据合并、字面量引号、会话变量与错误码映射。

# 方言

  - DialectPostgres：凭据合并到 URL 或 key=value DSN，SET 会话变量，
    pq.Error / pgconn.PgError 映射为 SQLSTATE
  - DialectMySQL：通过 mysql.ParseDSN / FormatDSN 合并凭据，
    SET @@SESSION 会话变量，MySQLError 映射为 SQLSTATE
  - DialectSQLite：PRAGMA 会话变量
  - DialectGeneric：只做最基本的转发

# 参数绑定

绑定在 Execute 时解析：按位置的参数按位置排序后传入，按名称的参数
使用 sql.Named。ParamBinding.Output 为 true 且 Source 暴露目标指针时
以 sql.Out 传入，由驱动回写。
*/
package sqldriver
