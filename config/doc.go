// Copyright (c) AfcFlow Authors.
// Licensed under the MIT License.

/*
Package config 提供 AfcFlow 的配置加载与校验。

# 概述

配置在启动时解析一次并注入各组件，运行期间不再变更。加载顺序为
默认值 → YAML 文件 → 环境变量（前缀 AFCFLOW_，由 env tag 反射映射，
例如 AFCFLOW_AFC_WAIT_TIMEOUT）。切片类型的环境变量以逗号分隔。

# 配置分组

  - server   ：HTTP/Metrics 端口、超时、CORS、限流、API Key
  - jwt      ：JWT 校验密钥（HS256 / RS256）、issuer、audience
  - afc      ：协议版本、任务队列、并发度、规则集、轮询与等待超时
  - storage  ：对象存储后端（memory / fs / redis）及 HTTP_IO 标志
  - redis    ：共享 Redis 连接
  - broker   ：任务代理（memory / redis）、状态 TTL
  - database ：设备注册表数据库（postgres / mysql / sqlite）
  - log      ：zap 日志级别、格式、输出
  - telemetry：OpenTelemetry 导出

Config.Validate 检查组合约束，例如 memory 代理只能搭配 memory 存储；
Config.ValidateServe 进一步拒绝 memory 代理，serve 没有进程内的任务消费者。
默认使用 redis 存储与 redis 代理，afc.wait_timeout 默认为 0（同步等待不设上限）。
*/
package config
