// Copyright (c) AfcFlow Authors.
// Licensed under the MIT License.

/*
包 migration 管理设备注册表（access_points、afc_configs）的 Schema 迁移，
基于 golang-migrate，支持 PostgreSQL、MySQL 与 SQLite。

# 概述

各方言的 SQL 文件通过 embed.FS 内嵌在二进制中。DefaultMigrator 打开
独立连接执行迁移；ctx 取消时请求 golang-migrate 在当前文件结束后停止。
SQLite 使用纯 Go 驱动注册的 "sqlite" 驱动名，无需 CGO。

# 核心类型

  - Migrator / DefaultMigrator：Up/Down/DownAll/Steps/Goto/Force/Version/Status/Info
  - CLI：afcflow migrate 子命令的终端输出层
  - NewMigratorFromDatabaseConfig / NewMigratorFromURL：从配置或连接串创建迁移器
*/
package migration
