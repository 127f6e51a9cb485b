// Copyright (c) AfcFlow Authors.
// Licensed under the MIT License.

/*
包 database 管理 afcflow 注册表使用的 GORM 连接池。

# 概述

PoolManager 配置 database/sql 连接池参数，后台定时探活，并通过
Observer（internal/metrics.Collector 实现）上报连接数与每条语句的
耗时。查询耗时通过 GORM 回调链采集，注册表的所有读写都会被计量。

# 主要能力

  - 连接池调优：MaxIdleConns/MaxOpenConns/ConnMaxLifetime
  - 健康检查：Name/Check 可直接注册为 /ready 检查项
  - 事务：WithTransactionRetry 对死锁、序列化失败与连接错误做指数退避重试，
    seed 子命令用它批量写入区域配置
*/
package database
