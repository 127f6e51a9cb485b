// Copyright (c) AfcFlow Authors.
// Licensed under the MIT License.

/*
包 server 管理 afcflow 的 HTTP 服务器生命周期。

# 概述

Manager 封装 net/http.Server，负责监听、后台服务、优雅关闭与
错误传播。cmd/afcflow 用它同时承载业务 API 与 Prometheus 指标端口。

# 关闭语义

同步频谱查询会阻塞等待任务结果，因此默认不设置写超时。所有请求的
context 派生自 Manager 持有的基础 context：Shutdown 先在
ShutdownTimeout 内排空请求，超时后取消基础 context 并强制关闭连接，
等待中的查询随之返回，Shutdown 返回 ErrForcedClose。

# 主要能力

  - 非阻塞启动：Start 在后台 goroutine 中运行服务
  - 信号监听：WaitForShutdown 监听 SIGINT/SIGTERM 与 ctx 取消
  - 错误传播：Errors() 返回异步错误通道
  - 地址查询：Addr 在启动后返回实际绑定地址（支持 ":0"）
*/
package server
