// 版权所有 2024 AfcFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 objstore 定义对象存储能力接口及其三种后端实现。

# 概述

核心流程只依赖 Store/Handle 两个接口，具体后端在启动时由 New 根据配置
选定一次，之后不再按后端类型分支。每次访问都通过 Use 获取作用域句柄，
保证失败路径上句柄同样被释放。

# 命名空间

  - cfg：区域配置，cfg/<region>/<configHash>/afc_config.json
  - pro：缓存响应、待处理请求与任务工作目录
  - dbg：调试历史副本，dbg/<org>/<serial>/<timestamp>/...

# 后端

  - FSStore：本地目录树（生产环境为共享挂载），写入经临时文件 + rename
  - RedisStore：每个对象一个字符串键，目录由 "/" 隐含，网络操作受 NetTimeout 约束
  - MemoryStore：测试与单进程开发

# 错误语义

读取不存在的对象返回 ErrNotFound；删除不存在的键视为成功；越界键
（绝对路径、".." 段）返回 ErrInvalidKey。
*/
package objstore
