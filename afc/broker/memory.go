package broker

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Broker for tests and single-binary dev runs.
type Memory struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queues   map[string][]*Job
	statuses map[string]*Status
	history  []*Job
	closed   bool
	onSubmit func(*Job)
}

// NewMemory 创建内存任务代理
func NewMemory() *Memory {
	m := &Memory{
		queues:   make(map[string][]*Job),
		statuses: make(map[string]*Status),
	}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// OnSubmit registers a hook called synchronously after every submission.
func (m *Memory) OnSubmit(fn func(*Job)) {
	m.mu.Lock()
	m.onSubmit = fn
	m.mu.Unlock()
}

// Submit implements Dispatcher.
func (m *Memory) Submit(_ context.Context, job *Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	cp := *job
	if cp.RequestType == "" {
		cp.RequestType = DefaultRequestType
	}
	if cp.SubmittedAt.IsZero() {
		cp.SubmittedAt = time.Now().UTC()
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrBrokerClosed
	}
	m.queues[cp.RequestType] = append(m.queues[cp.RequestType], &cp)
	m.history = append(m.history, &cp)
	hook := m.onSubmit
	m.cond.Broadcast()
	m.mu.Unlock()

	if hook != nil {
		hook(&cp)
	}
	return nil
}

// Status implements StatusSource.
func (m *Memory) Status(_ context.Context, taskID string) (*Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrBrokerClosed
	}
	st, ok := m.statuses[taskID]
	if !ok {
		return PendingStatus(taskID), nil
	}
	cp := *st
	return &cp, nil
}

// Next implements Worker.
func (m *Memory) Next(ctx context.Context, requestType string, timeout time.Duration) (*Job, error) {
	deadline := time.Now().Add(timeout)
	stop := context.AfterFunc(ctx, func() {
		m.mu.Lock()
		m.cond.Broadcast()
		m.mu.Unlock()
	})
	defer stop()
	timer := time.AfterFunc(timeout, func() {
		m.mu.Lock()
		m.cond.Broadcast()
		m.mu.Unlock()
	})
	defer timer.Stop()

	m.mu.Lock()
	defer m.mu.Unlock()
	for {
		if m.closed {
			return nil, ErrBrokerClosed
		}
		if q := m.queues[requestType]; len(q) > 0 {
			job := q[0]
			m.queues[requestType] = q[1:]
			return job, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !time.Now().Before(deadline) {
			return nil, ErrNoJob
		}
		m.cond.Wait()
	}
}

// Publish implements Worker.
func (m *Memory) Publish(_ context.Context, status *Status) error {
	if status == nil || status.TaskID == "" {
		return ErrInvalidJob
	}
	cp := *status
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrBrokerClosed
	}
	m.statuses[cp.TaskID] = &cp
	return nil
}

// Submitted returns every job ever submitted, in order.
func (m *Memory) Submitted() []*Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Job(nil), m.history...)
}

// Ping implements Broker.
func (m *Memory) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrBrokerClosed
	}
	return nil
}

// Close implements Broker and wakes blocked workers.
func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.cond.Broadcast()
	m.mu.Unlock()
	return nil
}
