// Copyright (c) AfcFlow Authors.
// Licensed under the MIT License.

/*
包 redisx 管理进程内共享的 Redis 连接。

# 概述

Manager 在启动时建立连接并 Ping 验证，之后把同一个客户端交给
redis 对象存储后端与 redis 任务代理。可选 TLS 使用 tlsutil 的
加固配置。

# 主要能力

  - 连接池：PoolSize 与 MinIdleConns 控制连接复用
  - 健康检查：后台定时 Ping，并把连接池统计交给 PoolObserver
    （internal/metrics.Collector 实现）
  - Name/Check：可直接注册为 /ready 的健康检查项
  - 优雅关闭：Close 停止后台循环后再释放客户端，可重复调用
*/
package redisx
