package afc

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/BaSui01/afcflow/afc/objstore"
)

// historyTimeLayout mirrors ISO-8601 with microseconds, which sorts
// lexically in time order.
const historyTimeLayout = "2006-01-02T15:04:05.000000"

// HistoryRecorder keeps debug copies of requests, configs and responses under
// dbg/<org>/<serial>/<timestamp>/.
type HistoryRecorder struct {
	store objstore.Store
	now   func() time.Time
}

// NewHistoryRecorder 创建调试历史记录器
func NewHistoryRecorder(store objstore.Store) *HistoryRecorder {
	return &HistoryRecorder{store: store, now: time.Now}
}

// Dir returns the history folder of one inquiry.
func (r *HistoryRecorder) Dir(org, serial string) string {
	return path.Join(org, serial, r.now().Format(historyTimeLayout))
}

// Record writes the request and the config into a fresh history folder and
// returns its path.
func (r *HistoryRecorder) Record(ctx context.Context, org, serial string, request, config []byte) (string, error) {
	dir := r.Dir(org, serial)
	if err := objstore.WriteObject(ctx, r.store, objstore.NamespaceHistory, historyKey(dir, requestFile), request); err != nil {
		return "", fmt.Errorf("record request history: %w", err)
	}
	if err := objstore.WriteObject(ctx, r.store, objstore.NamespaceHistory, historyKey(dir, configFile), config); err != nil {
		return "", fmt.Errorf("record config history: %w", err)
	}
	return dir, nil
}
