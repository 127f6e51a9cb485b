package objstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"
)

// FSStore maps keys onto a local directory tree (a shared mount in
// production).
type FSStore struct {
	root   string
	logger *zap.Logger
}

// NewFSStore 创建文件系统对象存储，root 不存在时自动创建
func NewFSStore(root string, logger *zap.Logger) (*FSStore, error) {
	if root == "" {
		return nil, fmt.Errorf("fs store: root directory is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("fs store: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("fs store: create root: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FSStore{root: abs, logger: logger.With(zap.String("component", "objstore_fs"))}, nil
}

// Name implements Store.
func (s *FSStore) Name() string { return "fs" }

// Root returns the absolute root directory.
func (s *FSStore) Root() string { return s.root }

// Ping checks the root directory is still reachable.
func (s *FSStore) Ping(context.Context) error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("fs store: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("fs store: %s is not a directory", s.root)
	}
	return nil
}

// Close implements Store.
func (s *FSStore) Close() error { return nil }

// Open implements Store.
func (s *FSStore) Open(_ context.Context, ns Namespace, key string) (Handle, error) {
	k, err := cleanKey(ns, key)
	if err != nil {
		return nil, err
	}
	return &fsHandle{
		store: s,
		key:   k,
		path:  filepath.Join(s.root, string(ns), filepath.FromSlash(k)),
	}, nil
}

type fsHandle struct {
	handleState
	store *FSStore
	key   string
	path  string
}

func (h *fsHandle) ready(ctx context.Context) error {
	if err := h.check(); err != nil {
		return err
	}
	return ctx.Err()
}

func (h *fsHandle) IsDir(ctx context.Context) (bool, error) {
	if err := h.ready(ctx); err != nil {
		return false, err
	}
	info, err := os.Stat(h.path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

func (h *fsHandle) List(ctx context.Context) ([]string, []string, error) {
	if err := h.ready(ctx); err != nil {
		return nil, nil, err
	}
	entries, err := os.ReadDir(h.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	var dirs, files []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		} else if e.Type().IsRegular() && !isTempName(e.Name()) {
			files = append(files, e.Name())
		}
	}
	sort.Strings(dirs)
	sort.Strings(files)
	return dirs, files, nil
}

func (h *fsHandle) Read(ctx context.Context) ([]byte, error) {
	if err := h.ready(ctx); err != nil {
		return nil, err
	}
	if err := requireObjectKey(h.key); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(h.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		var pe *fs.PathError
		if errors.As(err, &pe) && isDirErr(h.path) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// Write goes through a temp file and rename so readers never observe a
// partially written object.
func (h *fsHandle) Write(ctx context.Context, data []byte) error {
	if err := h.ready(ctx); err != nil {
		return err
	}
	if err := requireObjectKey(h.key); err != nil {
		return err
	}
	dir := filepath.Dir(h.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create parent: %w", err)
	}
	tmp, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		h.store.logger.Debug("chmod temp object failed", zap.String("path", tmpName), zap.Error(err))
	}
	if err := os.Rename(tmpName, h.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

func (h *fsHandle) Head(ctx context.Context) (bool, error) {
	if err := h.ready(ctx); err != nil {
		return false, err
	}
	if err := requireObjectKey(h.key); err != nil {
		return false, err
	}
	info, err := os.Stat(h.path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

func (h *fsHandle) Delete(ctx context.Context) error {
	if err := h.ready(ctx); err != nil {
		return err
	}
	if h.key == "" {
		// keep the namespace directory itself
		entries, err := os.ReadDir(h.path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := os.RemoveAll(filepath.Join(h.path, e.Name())); err != nil {
				return err
			}
		}
		return nil
	}
	return os.RemoveAll(h.path)
}

const tempPattern = ".objstore-*.tmp"

func isTempName(name string) bool {
	ok, _ := filepath.Match(tempPattern, name)
	return ok
}

func isDirErr(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
