// Copyright (c) AfcFlow Authors.
// Licensed under the MIT License.

/*
Package testutil 提供 afcflow 测试的共享工具和辅助函数。

# 概述

testutil 包为整个项目的单元测试提供统一的辅助能力，避免各包重复实现
相似的测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 断言工具: AssertJSONEqual / AssertEventuallyTrue
  - 数据工具: MustJSON / MustParseJSON / Gzip / Gunzip

# 子包

  - testutil/mocks: FakeEngine（消费内存任务代理的模拟引擎，可按 requestId
    配置成功、失败与暂停）、StaticRegistry（不依赖数据库的授权与区域配置）
  - testutil/fixtures: 区域配置、查询条目与引擎响应文档
*/
package testutil
