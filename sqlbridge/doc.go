// Copyright (c) SessionDB Authors.
// Licensed under the MIT License.

/*
包 sqlbridge 把 session.Conn 暴露为 database/sql 连接，
使 *sql.DB（以及其上的 GORM）可以运行在会话层之上。

# 概述

Connector 每次被 database/sql 要求新建连接时创建一个独立的 session.Conn，
database/sql 保证同一条连接不会被并发使用，因此不需要额外加锁。
带参数的 Exec/Query 先预处理，再通过 BindValue 绑定参数后执行，
这样语句状态同样会在重连后重放。

Ping 使用不带缓存的存活探测；探测失败或会话显式断开且未开启自动重连时
返回 driver.ErrBadConn，由 database/sql 丢弃该连接。
*/
package sqlbridge
