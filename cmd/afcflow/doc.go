// Copyright (c) AfcFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 afcflow 服务端程序入口。

# 概述

cmd/afcflow 启动频谱查询协调服务：解析批量查询、命中缓存、向
引擎派发任务并等待结果。程序同时提供注册表迁移与种子数据、
健康检查和版本查询子命令。

# 核心类型

  - Server     ：持有 Redis、数据库、对象存储、任务代理与协调器，
    管理 HTTP 与 Metrics 双端口及优雅关闭
  - Middleware ：func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve、migrate（含 seed-config / seed-ap）、version、health
  - 路由：/{version}/availableSpectrumInquiry、/dbg/ 历史浏览、
    /admin/ 注册表管理、/health /ready /version 探针
  - 认证：配置 JWT 密钥时全局校验 Bearer Token，管理接口另需 API Key；
    否则按 API Key 全局认证
  - 限流：按用户 ID 或客户端 IP
  - 关闭顺序：HTTP → Metrics → 任务代理 → 对象存储 → Redis → 数据库 → 遥测；
    超过关闭超时仍在等待引擎的查询会被取消
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
