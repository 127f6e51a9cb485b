// Copyright (c) AfcFlow Authors.
// Licensed under the MIT License.

// Package telemetry 封装 OpenTelemetry SDK 初始化，为 afcflow 配置全局
// TracerProvider 与 MeterProvider（OTLP gRPC 导出）。
// resource 携带 afc 部署属性（afc.request_type、afc.storage.backend 等），
// afc.task.wait.duration 使用长尾桶视图。禁用时使用 noop 实现，不连接任何外部服务。
package telemetry
