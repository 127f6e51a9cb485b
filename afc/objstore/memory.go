package objstore

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore keeps objects in a map. Used by tests and single-process dev runs.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryStore 创建内存对象存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

// Name implements Store.
func (m *MemoryStore) Name() string { return "memory" }

// Ping implements Store.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }

// Open implements Store.
func (m *MemoryStore) Open(_ context.Context, ns Namespace, key string) (Handle, error) {
	k, err := cleanKey(ns, key)
	if err != nil {
		return nil, err
	}
	return &memoryHandle{store: m, path: joinPath(ns, k), key: k}, nil
}

// Keys returns every stored path as "<ns>/<key>". Test helper.
func (m *MemoryStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := make(map[string]struct{}, len(m.objects))
	for k := range m.objects {
		set[k] = struct{}{}
	}
	return sortedKeys(set)
}

type memoryHandle struct {
	handleState
	store *MemoryStore
	path  string
	key   string
}

func (h *memoryHandle) IsDir(context.Context) (bool, error) {
	if err := h.check(); err != nil {
		return false, err
	}
	prefix := h.path + "/"
	h.store.mu.RLock()
	defer h.store.mu.RUnlock()
	for k := range h.store.objects {
		if strings.HasPrefix(k, prefix) {
			return true, nil
		}
	}
	return false, nil
}

func (h *memoryHandle) List(context.Context) ([]string, []string, error) {
	if err := h.check(); err != nil {
		return nil, nil, err
	}
	prefix := h.path + "/"
	var rels []string
	h.store.mu.RLock()
	for k := range h.store.objects {
		if strings.HasPrefix(k, prefix) {
			rels = append(rels, strings.TrimPrefix(k, prefix))
		}
	}
	h.store.mu.RUnlock()
	if len(rels) == 0 {
		return nil, nil, ErrNotFound
	}
	dirs, files := splitChildren(rels)
	return dirs, files, nil
}

func (h *memoryHandle) Read(context.Context) ([]byte, error) {
	if err := h.check(); err != nil {
		return nil, err
	}
	if err := requireObjectKey(h.key); err != nil {
		return nil, err
	}
	h.store.mu.RLock()
	defer h.store.mu.RUnlock()
	data, ok := h.store.objects[h.path]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (h *memoryHandle) Write(_ context.Context, data []byte) error {
	if err := h.check(); err != nil {
		return err
	}
	if err := requireObjectKey(h.key); err != nil {
		return err
	}
	h.store.mu.Lock()
	h.store.objects[h.path] = append([]byte(nil), data...)
	h.store.mu.Unlock()
	return nil
}

func (h *memoryHandle) Head(context.Context) (bool, error) {
	if err := h.check(); err != nil {
		return false, err
	}
	if err := requireObjectKey(h.key); err != nil {
		return false, err
	}
	h.store.mu.RLock()
	defer h.store.mu.RUnlock()
	_, ok := h.store.objects[h.path]
	return ok, nil
}

func (h *memoryHandle) Delete(context.Context) error {
	if err := h.check(); err != nil {
		return err
	}
	prefix := h.path + "/"
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	delete(h.store.objects, h.path)
	for k := range h.store.objects {
		if strings.HasPrefix(k, prefix) {
			delete(h.store.objects, k)
		}
	}
	return nil
}

func joinPath(ns Namespace, key string) string {
	if key == "" {
		return string(ns)
	}
	return string(ns) + "/" + key
}
