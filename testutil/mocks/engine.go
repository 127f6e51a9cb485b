// =============================================================================
// ⚙️ FakeEngine - 计算引擎模拟实现
// =============================================================================
// 订阅内存任务代理，像真实引擎一样读取请求、写入产物并发布任务状态
//
// 使用方法:
//
//	b := broker.NewMemory()
//	engine := mocks.NewFakeEngine(b, store)
//	engine.FailWith("REQ-2", "MISSING_PARAM: location")
//	release := engine.Hold("REQ-1")
//
// =============================================================================
package mocks

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/BaSui01/afcflow/afc/broker"
	"github.com/BaSui01/afcflow/afc/objstore"
	"github.com/BaSui01/afcflow/testutil"
	"github.com/BaSui01/afcflow/testutil/fixtures"
	"github.com/BaSui01/afcflow/types"
)

// EngineResult is what the fake engine produces for one request.
type EngineResult struct {
	// Response is the uncompressed response document. Nil means the default
	// success document.
	Response json.RawMessage
	// ErrorText makes the task fail with this engine-error.txt content.
	ErrorText string
	// SkipErrorArtifact fails the task without writing engine-error.txt.
	SkipErrorArtifact bool
	// KMZ and MapData are written for GUI jobs when set.
	KMZ     []byte
	MapData []byte
}

// FakeEngine 是计算引擎的模拟实现
type FakeEngine struct {
	mu      sync.Mutex
	broker  *broker.Memory
	store   objstore.Store
	results map[string]EngineResult
	gates   map[string]chan struct{}
	runs    map[string]int
	wg      sync.WaitGroup
}

// NewFakeEngine 创建模拟引擎并挂到任务代理上
func NewFakeEngine(b *broker.Memory, store objstore.Store) *FakeEngine {
	e := &FakeEngine{
		broker:  b,
		store:   store,
		results: make(map[string]EngineResult),
		gates:   make(map[string]chan struct{}),
		runs:    make(map[string]int),
	}
	b.OnSubmit(e.handle)
	return e
}

// =============================================================================
// 🔧 行为配置
// =============================================================================

// Respond 设置某个 requestId 的计算结果
func (e *FakeEngine) Respond(requestID string, r EngineResult) {
	e.mu.Lock()
	e.results[requestID] = r
	e.mu.Unlock()
}

// FailWith 让某个 requestId 的任务以指定错误文本失败
func (e *FakeEngine) FailWith(requestID, text string) {
	e.Respond(requestID, EngineResult{ErrorText: text})
}

// Hold 暂停某个 requestId 的计算，返回的函数用于放行
func (e *FakeEngine) Hold(requestID string) (release func()) {
	ch := make(chan struct{})
	e.mu.Lock()
	e.gates[requestID] = ch
	e.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// Runs 返回某个 requestId 被计算的次数
func (e *FakeEngine) Runs(requestID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runs[requestID]
}

// Drain 等待所有进行中的计算完成
func (e *FakeEngine) Drain() {
	e.wg.Wait()
}

// =============================================================================
// 🎯 任务处理
// =============================================================================

func (e *FakeEngine) handle(job *broker.Job) {
	ctx := context.Background()
	_ = e.broker.Publish(ctx, &broker.Status{
		TaskID:     job.TaskID,
		State:      types.TaskProgress,
		Hash:       job.Hash,
		HistoryDir: job.HistoryDir,
		Options:    job.Options,
		Percent:    10,
	})

	requestID := e.requestID(ctx, job.Hash)

	e.mu.Lock()
	gate := e.gates[requestID]
	result := e.results[requestID]
	e.runs[requestID]++
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if gate != nil {
			<-gate
		}
		e.complete(ctx, job, requestID, result)
	}()
}

func (e *FakeEngine) complete(ctx context.Context, job *broker.Job, requestID string, r EngineResult) {
	status := &broker.Status{
		TaskID:     job.TaskID,
		Hash:       job.Hash,
		HistoryDir: job.HistoryDir,
		Options:    job.Options,
		Percent:    100,
	}

	if r.ErrorText != "" || r.SkipErrorArtifact {
		if !r.SkipErrorArtifact {
			_ = objstore.WriteObject(ctx, e.store, objstore.NamespaceProcessing, job.TaskID+"/engine-error.txt", []byte(r.ErrorText))
		}
		status.State = types.TaskFailure
		_ = e.broker.Publish(ctx, status)
		return
	}

	doc := r.Response
	if doc == nil {
		doc = fixtures.SuccessDocument(requestID)
	}
	_ = objstore.WriteObject(ctx, e.store, objstore.NamespaceProcessing, job.Hash+"/analysisResponse.json.gz", testutil.Gzip(doc))
	if job.Options.Has(types.OptGUI) {
		if r.KMZ != nil {
			_ = objstore.WriteObject(ctx, e.store, objstore.NamespaceProcessing, job.TaskID+"/results.kmz", r.KMZ)
		}
		if r.MapData != nil {
			_ = objstore.WriteObject(ctx, e.store, objstore.NamespaceProcessing, job.TaskID+"/mapData.json.gz", testutil.Gzip(r.MapData))
		}
	}
	status.State = types.TaskSuccess
	_ = e.broker.Publish(ctx, status)
}

func (e *FakeEngine) requestID(ctx context.Context, hash string) string {
	data, err := objstore.ReadObject(ctx, e.store, objstore.NamespaceProcessing, hash+"/analysisRequest.json")
	if err != nil {
		return ""
	}
	var doc struct {
		Requests []struct {
			RequestID string `json:"requestId"`
		} `json:"availableSpectrumInquiryRequests"`
	}
	if json.Unmarshal(data, &doc) != nil || len(doc.Requests) == 0 {
		return ""
	}
	return doc.Requests[0].RequestID
}
