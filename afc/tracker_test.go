package afc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/afcflow/afc/broker"
	"github.com/BaSui01/afcflow/afc/objstore"
	"github.com/BaSui01/afcflow/testutil"
	"github.com/BaSui01/afcflow/testutil/fixtures"
	"github.com/BaSui01/afcflow/types"
)

// scriptedStatus replays a fixed sequence of states, repeating the last one.
type scriptedStatus struct {
	mu     sync.Mutex
	states []types.TaskState
	calls  int
	err    error
}

func (s *scriptedStatus) Status(_ context.Context, taskID string) (*broker.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	i := s.calls
	if i >= len(s.states) {
		i = len(s.states) - 1
	}
	s.calls++
	return &broker.Status{TaskID: taskID, State: s.states[i]}, nil
}

func (s *scriptedStatus) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type recordingMetrics struct {
	noopMetrics
	mu       sync.Mutex
	outcomes []string
	waits    int
	inquiry  map[string]int
	lookups  map[bool]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{inquiry: make(map[string]int), lookups: make(map[bool]int)}
}

func (m *recordingMetrics) RecordTaskOutcome(state, code string) {
	m.mu.Lock()
	m.outcomes = append(m.outcomes, state+":"+code)
	m.mu.Unlock()
}

func (m *recordingMetrics) RecordTaskWait(time.Duration) {
	m.mu.Lock()
	m.waits++
	m.mu.Unlock()
}

func (m *recordingMetrics) RecordInquiry(outcome string) {
	m.mu.Lock()
	m.inquiry[outcome]++
	m.mu.Unlock()
}

func (m *recordingMetrics) RecordCacheLookup(hit bool) {
	m.mu.Lock()
	m.lookups[hit]++
	m.mu.Unlock()
}

func (m *recordingMetrics) Inquiries(outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inquiry[outcome]
}

func fastTracker(status broker.StatusSource, store objstore.Store, m Metrics) *Tracker {
	return NewTracker(status, store, TrackerConfig{
		PollInterval:    time.Millisecond,
		MaxPollInterval: 4 * time.Millisecond,
	}, m, zap.NewNop())
}

func TestTracker_Get(t *testing.T) {
	ctx := testutil.TestContext(t)
	b := broker.NewMemory()
	tr := fastTracker(b, objstore.NewMemoryStore(), nil)

	st, err := tr.Get(ctx, "unknown")
	require.NoError(t, err)
	assert.Equal(t, types.TaskPending, st.State)

	require.NoError(t, b.Close())
	_, err = tr.Get(ctx, "unknown")
	assert.True(t, types.IsErrorCode(err, types.ErrBrokerFailure))
	assert.True(t, types.IsRetryable(err))
}

func TestTracker_WaitBacksOffUntilTerminal(t *testing.T) {
	src := &scriptedStatus{states: []types.TaskState{
		types.TaskPending, types.TaskProgress, types.TaskProgress, types.TaskProgress, types.TaskSuccess,
	}}
	m := newRecordingMetrics()
	tr := fastTracker(src, objstore.NewMemoryStore(), m)

	st, err := tr.Wait(testutil.TestContext(t), "t-1")
	require.NoError(t, err)
	assert.Equal(t, types.TaskSuccess, st.State)
	assert.Equal(t, 5, src.Calls())
	assert.Equal(t, 1, m.waits)
}

func TestTracker_WaitTimeout(t *testing.T) {
	src := &scriptedStatus{states: []types.TaskState{types.TaskProgress}}
	tr := NewTracker(src, objstore.NewMemoryStore(), TrackerConfig{
		PollInterval: time.Millisecond,
		WaitTimeout:  30 * time.Millisecond,
	}, nil, nil)

	_, err := tr.Wait(context.Background(), "t-1")
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrTimeout))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestTracker_WaitHonoursCancellation(t *testing.T) {
	src := &scriptedStatus{states: []types.TaskState{types.TaskProgress}}
	tr := fastTracker(src, objstore.NewMemoryStore(), nil)

	_, err := tr.Wait(testutil.CancelledContext(), "t-1")
	assert.True(t, types.IsErrorCode(err, types.ErrTimeout))
}

func TestTracker_WaitPropagatesStatusError(t *testing.T) {
	src := &scriptedStatus{err: errors.New("connection refused")}
	tr := fastTracker(src, objstore.NewMemoryStore(), nil)

	_, err := tr.Wait(testutil.TestContext(t), "t-1")
	assert.True(t, types.IsErrorCode(err, types.ErrBrokerFailure))
}

// seedTask stores the artifacts the engine would leave behind for one task.
func seedTask(t *testing.T, store objstore.Store, task *Task, requestID string) {
	t.Helper()
	ctx := context.Background()
	req, err := singleRequest("1.3", fixtures.Item(requestID, "SN", "C"))
	require.NoError(t, err)
	require.NoError(t, objstore.WriteObject(ctx, store, objstore.NamespaceProcessing, requestKey(task.Hash), req))
}

func TestTracker_ResolveSuccess(t *testing.T) {
	ctx := testutil.TestContext(t)
	store := objstore.NewMemoryStore()
	m := newRecordingMetrics()
	tr := fastTracker(&scriptedStatus{}, store, m)

	task := &Task{ID: "task-1", Hash: "hash-1"}
	seedTask(t, store, task, "R1")
	require.NoError(t, objstore.WriteObject(ctx, store, objstore.NamespaceProcessing, responseKey(task.Hash),
		testutil.Gzip(fixtures.SuccessDocument("R1"))))
	require.NoError(t, objstore.WriteObject(ctx, store, objstore.NamespaceProcessing, "task-1/scratch.bin", []byte("x")))

	out, err := tr.Resolve(ctx, task, &broker.Status{TaskID: task.ID, State: types.TaskSuccess})
	require.NoError(t, err)
	assert.Equal(t, types.TaskSuccess, out.State)
	assert.Nil(t, out.Failure)

	entry := testutil.MustParseJSON[map[string]any](string(out.Entry))
	assert.Equal(t, "R1", entry["requestId"])

	assert.Equal(t, []string{"pro/hash-1/analysisResponse.json.gz"}, store.Keys(),
		"request artifact and task folder are removed, the cached response stays")
	assert.Equal(t, []string{"SUCCESS:ok"}, m.outcomes)
}

func TestTracker_ResolveFailure(t *testing.T) {
	ctx := testutil.TestContext(t)
	store := objstore.NewMemoryStore()
	tr := fastTracker(&scriptedStatus{}, store, nil)

	task := &Task{ID: "task-2", Hash: "hash-2", RequestID: "fallback"}
	seedTask(t, store, task, "R2")
	require.NoError(t, objstore.WriteObject(ctx, store, objstore.NamespaceProcessing, errorKey(task.ID),
		[]byte("MISSING_PARAM: location")))

	out, err := tr.Resolve(ctx, task, &broker.Status{TaskID: task.ID, State: types.TaskFailure})
	require.NoError(t, err)
	assert.Equal(t, types.TaskFailure, out.State)
	require.NotNil(t, out.Failure)
	assert.Equal(t, types.ErrMissingParam, out.Failure.Code)

	entry := testutil.MustParseJSON[ErrorEntry](string(out.Entry))
	assert.Equal(t, "R2", entry.RequestID, "request id is read back from the request artifact")
	assert.Equal(t, types.ResponseMissingParam, entry.Response.ResponseCode)

	assert.Empty(t, store.Keys())
}

func TestTracker_ResolveFailureFallsBackToTaskRequestID(t *testing.T) {
	ctx := testutil.TestContext(t)
	store := objstore.NewMemoryStore()
	tr := fastTracker(&scriptedStatus{}, store, nil)

	task := &Task{ID: "task-3", Hash: "hash-3", RequestID: "R3"}
	require.NoError(t, objstore.WriteObject(ctx, store, objstore.NamespaceProcessing, errorKey(task.ID),
		[]byte("engine crashed")))

	out, err := tr.Resolve(ctx, task, &broker.Status{TaskID: task.ID, State: types.TaskFailure})
	require.NoError(t, err)

	entry := testutil.MustParseJSON[ErrorEntry](string(out.Entry))
	assert.Equal(t, "R3", entry.RequestID)
	assert.Equal(t, types.ResponseGeneralFailure, entry.Response.ResponseCode)
	assert.Equal(t, "engine crashed", entry.Response.ShortDescription)
}

func TestTracker_ResolveGone(t *testing.T) {
	ctx := testutil.TestContext(t)
	store := objstore.NewMemoryStore()
	tr := fastTracker(&scriptedStatus{}, store, nil)

	task := &Task{ID: "task-4", Hash: "hash-4"}
	seedTask(t, store, task, "R4")

	_, err := tr.Resolve(ctx, task, &broker.Status{TaskID: task.ID, State: types.TaskFailure})
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrResourceGone))
	e, _ := types.AsError(err)
	assert.Equal(t, 410, e.HTTPStatus)
	assert.Empty(t, store.Keys(), "cleanup runs even when the outcome is gone")
}

func TestTracker_ResolveRejectsNonTerminal(t *testing.T) {
	tr := fastTracker(&scriptedStatus{}, objstore.NewMemoryStore(), nil)
	_, err := tr.Resolve(context.Background(), &Task{ID: "x", Hash: "h"}, &broker.Status{State: types.TaskProgress})
	assert.Error(t, err)
}
