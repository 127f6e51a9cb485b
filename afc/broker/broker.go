package broker

import (
	"context"
	"errors"
	"time"

	"github.com/BaSui01/afcflow/types"
)

// Common errors
var (
	ErrBrokerClosed = errors.New("broker is closed")
	ErrNoJob        = errors.New("no job available")
	ErrInvalidJob   = errors.New("invalid job")
)

// DefaultRequestType is the engine queue every inquiry goes to.
const DefaultRequestType = "AP-AFC"

// Job is the message handed to the engine. The engine reads the request from
// pro/<Hash>/analysisRequest.json and the config from cfg/<ConfigPath>.
type Job struct {
	TaskID      string               `json:"task_id"`
	RequestType string               `json:"request_type"`
	Hash        string               `json:"hash"`
	ConfigPath  string               `json:"config_path"`
	HistoryDir  string               `json:"history_dir,omitempty"`
	Options     types.RuntimeOptions `json:"runtime_opts"`
	SubmittedAt time.Time            `json:"submitted_at"`
}

// Validate checks the fields the engine cannot do without.
func (j *Job) Validate() error {
	switch {
	case j == nil:
		return ErrInvalidJob
	case j.TaskID == "":
		return errors.Join(ErrInvalidJob, errors.New("task_id is required"))
	case j.Hash == "":
		return errors.Join(ErrInvalidJob, errors.New("hash is required"))
	case j.ConfigPath == "":
		return errors.Join(ErrInvalidJob, errors.New("config_path is required"))
	}
	return nil
}

// Status is the engine-owned record of one task. A task with no record is
// PENDING.
type Status struct {
	TaskID     string               `json:"task_id"`
	State      types.TaskState      `json:"status"`
	Hash       string               `json:"hash,omitempty"`
	HistoryDir string               `json:"history_dir,omitempty"`
	Options    types.RuntimeOptions `json:"runtime_opts"`
	Percent    int                  `json:"percent"`
	Message    string               `json:"message,omitempty"`
	UpdatedAt  time.Time            `json:"updated_at"`
}

// PendingStatus is what callers see before the engine picks a task up.
func PendingStatus(taskID string) *Status {
	return &Status{TaskID: taskID, State: types.TaskPending}
}

// Dispatcher submits jobs. Submission is fire-and-forget: no result is
// returned and nothing is retried.
type Dispatcher interface {
	Submit(ctx context.Context, job *Job) error
}

// StatusSource reads task records.
type StatusSource interface {
	Status(ctx context.Context, taskID string) (*Status, error)
}

// Worker is the engine side of the queue.
type Worker interface {
	// Next blocks up to timeout for the next job of requestType.
	Next(ctx context.Context, requestType string, timeout time.Duration) (*Job, error)
	// Publish records task progress or a terminal state.
	Publish(ctx context.Context, status *Status) error
}

// Broker is the full queue plus status backend.
type Broker interface {
	Dispatcher
	StatusSource
	Worker
	Ping(ctx context.Context) error
	Close() error
}
