package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/afcflow/afc"
	"github.com/BaSui01/afcflow/types"
)

// scriptedPoller 依次返回预设结果，用完后重复最后一个
type scriptedPoller struct {
	mu      sync.Mutex
	results []*afc.PollResult
	err     error
	calls   int
}

func (p *scriptedPoller) Poll(context.Context, string) (*afc.PollResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	i := min(p.calls-1, len(p.results)-1)
	return p.results[i], nil
}

type rawFrame struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

func newWatchServer(t *testing.T, poller TaskPoller) *httptest.Server {
	t.Helper()
	h := NewWatchHandler(poller, []string{"1.3"}, 5*time.Millisecond, nil, nil)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{version}/availableSpectrumInquiry/watch", h.HandleWatch)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func progress(pct int) *afc.PollResult {
	return &afc.PollResult{HTTPStatus: http.StatusAccepted, Body: map[string]any{"percent": pct, "message": "In progress..."}}
}

func TestWatchHandler_StreamsUntilTerminal(t *testing.T) {
	poller := &scriptedPoller{results: []*afc.PollResult{
		progress(10),
		progress(10), // 重复状态不推送
		progress(60),
		{HTTPStatus: http.StatusOK, Body: map[string]any{"requestId": "r1"}},
	}}
	srv := newWatchServer(t, poller)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, srv.URL+"/1.3/availableSpectrumInquiry/watch?task_id=t1", nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	var frames []rawFrame
	for {
		var f rawFrame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
			break
		}
		frames = append(frames, f)
	}

	require.Len(t, frames, 3)
	assert.Equal(t, http.StatusAccepted, frames[0].Status)
	assert.JSONEq(t, `{"percent":10,"message":"In progress..."}`, string(frames[0].Body))
	assert.JSONEq(t, `{"percent":60,"message":"In progress..."}`, string(frames[1].Body))
	assert.Equal(t, http.StatusOK, frames[2].Status)
	assert.JSONEq(t, `{"requestId":"r1"}`, string(frames[2].Body))
}

func TestWatchHandler_PollError(t *testing.T) {
	cause := errors.New("dial tcp 10.0.0.7:6379: connection refused")
	srv := newWatchServer(t, &scriptedPoller{err: types.NewBrokerError("failed to read task status", cause)})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, srv.URL+"/1.3/availableSpectrumInquiry/watch?task_id=t1", nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	var f rawFrame
	require.NoError(t, wsjson.Read(ctx, conn, &f))
	assert.Equal(t, http.StatusServiceUnavailable, f.Status)

	var body afc.ResponseBody
	require.NoError(t, json.Unmarshal(f.Body, &body))
	assert.Equal(t, types.ResponseGeneralFailure, body.ResponseCode)
	assert.Equal(t, "failed to read task status", body.ShortDescription)
	assert.NotContains(t, string(f.Body), "10.0.0.7")

	_, _, err = conn.Read(ctx)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
}

func TestWatchHandler_RejectsBeforeUpgrade(t *testing.T) {
	srv := newWatchServer(t, &scriptedPoller{results: []*afc.PollResult{progress(0)}})

	tests := []struct {
		name string
		path string
		want int
	}{
		{"unsupported version", "/0.9/availableSpectrumInquiry/watch?task_id=t1", http.StatusBadRequest},
		{"missing task id", "/1.3/availableSpectrumInquiry/watch", http.StatusBadRequest},
		{"plain http request", "/1.3/availableSpectrumInquiry/watch?task_id=t1", http.StatusUpgradeRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tt.path)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestWatchHandler_ClientDisconnectStopsPolling(t *testing.T) {
	poller := &scriptedPoller{results: []*afc.PollResult{progress(5)}}
	srv := newWatchServer(t, poller)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, srv.URL+"/1.3/availableSpectrumInquiry/watch?task_id=t1", nil)
	require.NoError(t, err)

	var f rawFrame
	require.NoError(t, wsjson.Read(ctx, conn, &f))
	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))

	time.Sleep(50 * time.Millisecond)
	poller.mu.Lock()
	n := poller.calls
	poller.mu.Unlock()

	time.Sleep(50 * time.Millisecond)
	poller.mu.Lock()
	defer poller.mu.Unlock()
	assert.Equal(t, n, poller.calls)
}
