/*
包 broker 负责把计算任务交给外部引擎，并读取引擎写回的任务状态。

提交是 fire-and-forget：不返回结果、不重试。任务状态完全由引擎驱动，
没有记录即视为 PENDING。Redis 实现使用列表作为队列（LPUSH/BRPOP），
使用哈希保存状态记录；Memory 实现供测试与单进程开发使用。
*/
package broker
