// Copyright (c) AfcFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 afcflow HTTP API 的请求处理器实现。

# 概述

handlers 包实现了频谱查询、调试历史浏览、设备注册表管理与健康检查
的 HTTP 端点。所有 Handler 均遵循标准 net/http 接口，路由使用 Go 1.22+
ServeMux 的方法与路径参数模式。

# 核心类型

  - InquiryHandler：POST/GET /{version}/availableSpectrumInquiry，
    请求级错误按协议形状 {responseCode, shortDescription, supplementalInfo} 返回
  - HistoryHandler：GET /dbg/{path...}，目录渲染为 HTML，文件作为附件下载
  - RegistryHandler：接入点与区域配置的管理接口（/admin/...）
  - HealthHandler：服务健康检查（/health, /healthz, /ready）
  - Response / ErrorInfo：管理接口的统一 JSON 响应结构
  - ResponseWriter：包装 http.ResponseWriter 以捕获状态码

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteJSON 辅助函数
  - 请求验证：DecodeJSONBody（8 MB 限制 + 严格模式）、ValidateContentType
  - ErrorCode → HTTP 状态码自动映射（4xx/5xx），显式 HTTPStatus 优先
  - 可扩展健康检查：RegisterCheck 注册 PingCheck 等 HealthCheck 实现
*/
package handlers
