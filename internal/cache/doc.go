// 版权所有 2024 SessionDB Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 把会话健康快照缓存到 Redis，形成一个跨实例的状态看板。

# 概述

每个 sessiondb watch 实例在每轮检查后调用 Board.Publish，写入一份
Snapshot（存活结果、连接池计数、检查时间）。键带有 TTL，实例停止
发布后快照会自动过期，因此 List 返回的就是当前仍在运行的实例。

# 核心类型

  - Board：基于 go-redis 的看板，提供 Publish/Latest/List/Remove/Ping/Close
  - Snapshot：单个实例的检查结果，以 JSON 存储
  - Config：Redis 地址、键前缀、TTL 与重试次数

Latest 在快照不存在或已过期时返回 ErrNotFound。
*/
package cache
