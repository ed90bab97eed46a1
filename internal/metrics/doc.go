// 版权所有 2024 SessionDB Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的会话层指标采集能力。

# 概述

Collector 实现 session.Observer，通过 session.WithObserver 挂到会话上，
记录连接、断开、存活检查、语句重建与推迟的列绑定。指标使用
promauto.With 注册到调用方给定的 Registerer，按 namespace 隔离。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram、Gauge 等向量指标。

# 主要能力

  - 连接指标：连接尝试总数（按 result）、建连耗时、断开次数与释放的语句数。
  - 存活指标：按 result/source（cache 或 probe）分组的检查次数，最近一次结果。
  - 语句指标：按 kind（prepared/query）与 result 分组的重建次数，
    推迟与补绑的列绑定计数。
  - 连接池指标：RecordPoolStats 记录 sqlbridge 连接池的打开、使用中与空闲会话数。
*/
package metrics
