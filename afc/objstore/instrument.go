package objstore

import (
	"context"
	"time"
)

// Observer receives one call per handle operation.
type Observer interface {
	ObserveStorageOp(backend, op string, err error, duration time.Duration)
}

// Instrument wraps s so every handle operation is reported to obs.
// ErrNotFound is reported as a nil error: a miss is not a failure.
func Instrument(s Store, obs Observer) Store {
	if obs == nil {
		return s
	}
	return &instrumentedStore{Store: s, obs: obs}
}

type instrumentedStore struct {
	Store
	obs Observer
}

func (s *instrumentedStore) Open(ctx context.Context, ns Namespace, key string) (Handle, error) {
	h, err := s.Store.Open(ctx, ns, key)
	if err != nil {
		return nil, err
	}
	return &instrumentedHandle{Handle: h, backend: s.Store.Name(), obs: s.obs}, nil
}

type instrumentedHandle struct {
	Handle
	backend string
	obs     Observer
}

func (h *instrumentedHandle) observe(op string, start time.Time, err error) {
	if IsNotFound(err) {
		err = nil
	}
	h.obs.ObserveStorageOp(h.backend, op, err, time.Since(start))
}

func (h *instrumentedHandle) IsDir(ctx context.Context) (bool, error) {
	start := time.Now()
	ok, err := h.Handle.IsDir(ctx)
	h.observe("isdir", start, err)
	return ok, err
}

func (h *instrumentedHandle) List(ctx context.Context) (dirs, files []string, err error) {
	start := time.Now()
	dirs, files, err = h.Handle.List(ctx)
	h.observe("list", start, err)
	return dirs, files, err
}

func (h *instrumentedHandle) Read(ctx context.Context) ([]byte, error) {
	start := time.Now()
	data, err := h.Handle.Read(ctx)
	h.observe("read", start, err)
	return data, err
}

func (h *instrumentedHandle) Write(ctx context.Context, data []byte) error {
	start := time.Now()
	err := h.Handle.Write(ctx, data)
	h.observe("write", start, err)
	return err
}

func (h *instrumentedHandle) Head(ctx context.Context) (bool, error) {
	start := time.Now()
	ok, err := h.Handle.Head(ctx)
	h.observe("head", start, err)
	return ok, err
}

func (h *instrumentedHandle) Delete(ctx context.Context) error {
	start := time.Now()
	err := h.Handle.Delete(ctx)
	h.observe("delete", start, err)
	return err
}
