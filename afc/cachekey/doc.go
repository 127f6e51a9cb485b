// Copyright (c) AfcFlow Authors.
// Licensed under the MIT License.

/*
包 cachekey 为 (配置, 请求) 对生成内容寻址键。

配置与请求先经 RFC 8785 规范化（整数字面量例外：按原样保留十进制数字，
超过 2^53 的整数不会被双精度舍入成同一个键），再写入同一个 md5 累加器：先取配置摘要作为
ConfigHash，然后继续写入请求字节得到 CombinedHash。相同字节的输入永远得到
相同的键，字段顺序不影响结果。

TEST_/DEMO_ 前缀的区域在落盘时把 regionStr 改写为基础区域，但哈希基于改写前
的字节计算，因此别名区域与基础区域的键互不冲突。
*/
package cachekey
