// Copyright (c) AfcFlow Authors.
// Licensed under the MIT License.

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖 HTTP、频谱查询、
对象存储、数据库与 Redis 连接池。

# 概述

Collector 通过 promauto 注册到默认 Registry，所有指标按 namespace 隔离。
它同时实现 afc.Metrics 与 objstore.Observer，由 cmd/afcflow 注入协调器
与对象存储包装层，指标经独立的 metrics 端口以 /metrics 暴露。

# 主要指标

  - HTTP：请求总数、耗时、请求/响应体大小，状态码归类为 2xx/3xx/4xx/5xx
  - 查询：按结果（cache_hit / completed / ticket / error / rejected）计数，
    派发次数，任务终态（state + 响应码），同步等待耗时
  - 缓存：响应缓存命中与未命中
  - 对象存储：按 backend/operation/status 计数与耗时，未命中不计为失败
  - 连接池：数据库活跃/空闲连接，Redis 连接池 total/idle/stale
*/
package metrics
