package objstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
)

// Namespace partitions the store. Isolation between namespaces is by key
// prefix only.
type Namespace string

const (
	// NamespaceConfig holds region configs keyed by config hash.
	NamespaceConfig Namespace = "cfg"
	// NamespaceProcessing holds cached responses, pending requests and task
	// working folders.
	NamespaceProcessing Namespace = "pro"
	// NamespaceHistory holds debug copies of every artifact.
	NamespaceHistory Namespace = "dbg"
)

// Valid reports whether ns is one of the known namespaces.
func (ns Namespace) Valid() bool {
	switch ns {
	case NamespaceConfig, NamespaceProcessing, NamespaceHistory:
		return true
	}
	return false
}

var (
	// ErrNotFound is returned by Read and List when the object does not exist.
	ErrNotFound = errors.New("object not found")
	// ErrInvalidKey is returned for keys that could escape their namespace.
	ErrInvalidKey = errors.New("invalid object key")
	// ErrHandleClosed is returned by operations on a released handle.
	ErrHandleClosed = errors.New("object handle closed")
)

// IsNotFound reports whether err means the object is absent.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Handle is a scoped reference to one key inside a namespace. A directory-like
// key is one that prefixes other keys.
type Handle interface {
	// IsDir reports whether other objects live under this key.
	IsDir(ctx context.Context) (bool, error)
	// List returns the immediate child directories and files, both sorted.
	List(ctx context.Context) (dirs, files []string, err error)
	// Read returns the whole object or ErrNotFound.
	Read(ctx context.Context) ([]byte, error)
	// Write stores the object, creating intermediate structure.
	Write(ctx context.Context, data []byte) error
	// Head reports existence without transferring content.
	Head(ctx context.Context) (bool, error)
	// Delete removes the object and anything under it. Deleting an absent key
	// succeeds.
	Delete(ctx context.Context) error
	// Close releases the handle. It is safe to call more than once.
	Close() error
}

// Store opens handles. Exactly one implementation is chosen at startup.
type Store interface {
	Open(ctx context.Context, ns Namespace, key string) (Handle, error)
	Ping(ctx context.Context) error
	Name() string
	Close() error
}

// =============================================================================
// 🔒 作用域访问
// =============================================================================

// Use opens a handle, runs fn and always releases the handle, including when
// fn fails or panics.
func Use(ctx context.Context, s Store, ns Namespace, key string, fn func(Handle) error) (err error) {
	h, err := s.Open(ctx, ns, key)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := h.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s/%s: %w", ns, key, cerr)
		}
	}()
	return fn(h)
}

// ReadObject reads ns/key.
func ReadObject(ctx context.Context, s Store, ns Namespace, key string) ([]byte, error) {
	var data []byte
	err := Use(ctx, s, ns, key, func(h Handle) error {
		var rerr error
		data, rerr = h.Read(ctx)
		return rerr
	})
	return data, err
}

// WriteObject writes ns/key.
func WriteObject(ctx context.Context, s Store, ns Namespace, key string, data []byte) error {
	return Use(ctx, s, ns, key, func(h Handle) error {
		return h.Write(ctx, data)
	})
}

// HeadObject reports whether ns/key exists.
func HeadObject(ctx context.Context, s Store, ns Namespace, key string) (bool, error) {
	var ok bool
	err := Use(ctx, s, ns, key, func(h Handle) error {
		var herr error
		ok, herr = h.Head(ctx)
		return herr
	})
	return ok, err
}

// DeleteObject removes ns/key and everything under it.
func DeleteObject(ctx context.Context, s Store, ns Namespace, key string) error {
	return Use(ctx, s, ns, key, func(h Handle) error {
		return h.Delete(ctx)
	})
}

// WriteIfAbsent writes ns/key unless it already exists. Concurrent writers of
// the same key are expected to write identical bytes, so losing the race is
// harmless.
func WriteIfAbsent(ctx context.Context, s Store, ns Namespace, key string, data []byte) (written bool, err error) {
	err = Use(ctx, s, ns, key, func(h Handle) error {
		exists, herr := h.Head(ctx)
		if herr != nil {
			return herr
		}
		if exists {
			return nil
		}
		written = true
		return h.Write(ctx, data)
	})
	return written, err
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// cleanKey validates a key and strips a trailing slash. The empty key names
// the namespace root and is only usable for IsDir, List and Delete.
func cleanKey(ns Namespace, key string) (string, error) {
	if !ns.Valid() {
		return "", fmt.Errorf("%w: unknown namespace %q", ErrInvalidKey, ns)
	}
	key = strings.TrimSuffix(key, "/")
	if key == "" {
		return "", nil
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") || strings.ContainsRune(key, 0) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return key, nil
}

func requireObjectKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: namespace root is not an object", ErrInvalidKey)
	}
	return nil
}

// handleState tracks release of a handle.
type handleState struct {
	closed atomic.Bool
}

func (s *handleState) check() error {
	if s.closed.Load() {
		return ErrHandleClosed
	}
	return nil
}

func (s *handleState) Close() error {
	s.closed.Store(true)
	return nil
}

// splitChildren turns a flat list of paths relative to a directory into its
// immediate child directories and files.
func splitChildren(rels []string) (dirs, files []string) {
	dirSet := make(map[string]struct{})
	fileSet := make(map[string]struct{})
	for _, rel := range rels {
		if rel == "" {
			continue
		}
		if i := strings.IndexByte(rel, '/'); i >= 0 {
			dirSet[rel[:i]] = struct{}{}
		} else {
			fileSet[rel] = struct{}{}
		}
	}
	return sortedKeys(dirSet), sortedKeys(fileSet)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
