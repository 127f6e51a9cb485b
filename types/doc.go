// Copyright (c) AfcFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 afcflow 服务的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 afc、api、cmd 等上层模块
提供统一的错误体系、运行选项位掩码与任务状态枚举。

# 核心类型

  - Error / ErrorCode：结构化错误，携带 AFC 响应码、supplementalInfo、HTTP 状态码
  - Category：错误族：client_protocol / transient_state / internal_engine / infrastructure
  - RuntimeOptions：随任务下发给引擎的位掩码（DEBUG、GUI、HTTP_IO、NO_CACHE）
  - TaskState：PENDING / PROGRESS / SUCCESS / FAILURE

# 主要能力

  - Context 传播：WithTraceID / WithUserID / WithRequestID
  - 错误工具链：WrapError / AsError / IsErrorCode / IsRetryable
  - 协议错误构造：NewMissingParamError / NewInvalidValueError / NewResourceGoneError 等
*/
package types
