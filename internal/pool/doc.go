// Copyright (c) AfcFlow Authors.
// Licensed under the MIT License.

/*
包 pool 提供响应路径上的对象复用。

  - Pool[T]：带 Get/Put 统计的泛型 sync.Pool 封装，可按 keep 函数丢弃对象
  - Buffers：bytes.Buffer 池，超过 1 MiB 的缓冲区不回收
  - Gunzip：复用 gzip.Reader 与缓冲区解压引擎输出
*/
package pool
