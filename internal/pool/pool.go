// Package pool provides sync.Pool wrappers for the buffers and gzip readers
// used on the response path.
package pool

import (
	"bytes"
	"io"
	"sync"
	"sync/atomic"

	"github.com/klauspost/compress/gzip"
)

// Pool is a generic object pool.
type Pool[T any] struct {
	pool  sync.Pool
	keep  func(T) bool
	reset func(T)

	gets  atomic.Int64
	puts  atomic.Int64
	news  atomic.Int64
	drops atomic.Int64
}

// NewPool creates a pool. reset runs on Put; objects for which keep returns
// false are dropped instead of being pooled. Both may be nil.
func NewPool[T any](newFunc func() T, reset func(T), keep func(T) bool) *Pool[T] {
	p := &Pool[T]{reset: reset, keep: keep}
	p.pool.New = func() any {
		p.news.Add(1)
		return newFunc()
	}
	return p
}

// Get retrieves an object from the pool.
func (p *Pool[T]) Get() T {
	p.gets.Add(1)
	return p.pool.Get().(T)
}

// Put returns an object to the pool.
func (p *Pool[T]) Put(obj T) {
	if p.keep != nil && !p.keep(obj) {
		p.drops.Add(1)
		return
	}
	p.puts.Add(1)
	if p.reset != nil {
		p.reset(obj)
	}
	p.pool.Put(obj)
}

// Stats returns pool statistics.
func (p *Pool[T]) Stats() Stats {
	return Stats{
		Gets:  p.gets.Load(),
		Puts:  p.puts.Load(),
		News:  p.news.Load(),
		Drops: p.drops.Load(),
	}
}

// Stats contains pool statistics.
type Stats struct {
	Gets  int64 `json:"gets"`
	Puts  int64 `json:"puts"`
	News  int64 `json:"news"`
	Drops int64 `json:"drops"`
}

// =============================================================================
// 📦 预置池
// =============================================================================

// maxRetainedBuffer 超过该容量的缓冲区不回收，避免一次大响应长期占用内存
const maxRetainedBuffer = 1 << 20

// Buffers provides pooled byte buffers.
var Buffers = NewPool(
	func() *bytes.Buffer { return bytes.NewBuffer(make([]byte, 0, 4096)) },
	func(b *bytes.Buffer) { b.Reset() },
	func(b *bytes.Buffer) bool { return b.Cap() <= maxRetainedBuffer },
)

var gzipReaders sync.Pool

// Gunzip decompresses data, reusing gzip readers and scratch buffers. The
// returned slice is owned by the caller.
func Gunzip(data []byte) ([]byte, error) {
	src := bytes.NewReader(data)

	zr, _ := gzipReaders.Get().(*gzip.Reader)
	if zr == nil {
		var err error
		if zr, err = gzip.NewReader(src); err != nil {
			return nil, err
		}
	} else if err := zr.Reset(src); err != nil {
		gzipReaders.Put(zr)
		return nil, err
	}
	defer gzipReaders.Put(zr)

	buf := Buffers.Get()
	defer Buffers.Put(buf)

	if _, err := io.Copy(buf, zr); err != nil {
		return nil, err
	}
	if err := zr.Close(); err != nil {
		return nil, err
	}
	return bytes.Clone(buf.Bytes()), nil
}
