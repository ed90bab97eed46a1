/*
包 server 提供会话指标的 HTTP 导出服务。

Exporter 在一个独立端口上暴露两条路径：

  - /metrics：Prometheus 文本格式，数据来自传入的 Gatherer
  - /healthz：调用 HealthFunc（通常是一次不走缓存的会话存活探测），
    失败时返回 503

Start 非阻塞，Shutdown 幂等；Config.TLS 非空时以 TLS 方式监听，
证书配置由 tlsutil 包加载。
*/
package server
