// Copyright (c) AfcFlow Authors.
// Licensed under the MIT License.

/*
Package afc 实现 AFC 频谱查询协调器。

# 概述

afc 包位于 HTTP 接入层与计算引擎之间：把批量查询拆成独立条目，
通过内容寻址缓存去重，把未命中的条目派发给引擎，跟踪任务状态，
最后按输入顺序把结果拼回一个批量响应。

# 核心组件

  - Service：协调器入口，Inquire 处理 POST 批量查询，Poll 处理 GET 轮询
  - Tracker：任务状态读取、指数退避等待与终态解析，终态后清理 pro/ 下的临时产物
  - Assembler：读取 gzip 响应，DEBUG 时复制到 dbg/，GUI 时附加地图扩展
  - HistoryRecorder：在 dbg/<org>/<serial>/<timestamp>/ 下保存调试副本
  - TranslateEngineError：把引擎错误文本映射为协议响应码

# 子包

  - afc/cachekey：规范化 JSON 与 md5 缓存键
  - afc/objstore：cfg / pro / dbg 三个命名空间的对象存储（memory / fs / redis）
  - afc/broker：任务派发与状态记录（memory / redis）
  - afc/registry：设备授权与区域配置（GORM）

# 并发模型

批量中的每个条目由 errgroup 并发处理，结果写入按下标预分配的切片，
因此响应顺序与完成顺序无关。单个条目的失败只影响它自己的响应条目。
*/
package afc
