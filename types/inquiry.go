package types

import "strings"

// RuntimeOptions is the bitmask handed to the engine with every job.
type RuntimeOptions uint32

const (
	// OptDebug keeps a copy of every artifact under the history namespace.
	OptDebug RuntimeOptions = 1 << iota
	// OptGUI requests map artifacts and a non-blocking first response.
	OptGUI
	// OptHTTPIO tells the engine to reach the object store over HTTP.
	OptHTTPIO
	// OptNoCache skips the cache lookup; the computed result still refreshes the cache.
	OptNoCache
)

// Has reports whether all bits of flag are set.
func (o RuntimeOptions) Has(flag RuntimeOptions) bool {
	return o&flag == flag
}

// String renders the set flags joined by "|".
func (o RuntimeOptions) String() string {
	if o == 0 {
		return "NONE"
	}
	var parts []string
	for _, f := range []struct {
		bit  RuntimeOptions
		name string
	}{{OptDebug, "DEBUG"}, {OptGUI, "GUI"}, {OptHTTPIO, "HTTP_IO"}, {OptNoCache, "NO_CACHE"}} {
		if o.Has(f.bit) {
			parts = append(parts, f.name)
		}
	}
	return strings.Join(parts, "|")
}

// TaskState is the lifecycle state of a dispatched computation.
type TaskState string

const (
	TaskPending  TaskState = "PENDING"
	TaskProgress TaskState = "PROGRESS"
	TaskSuccess  TaskState = "SUCCESS"
	TaskFailure  TaskState = "FAILURE"
)

// IsTerminal returns true if the state is final.
func (s TaskState) IsTerminal() bool {
	return s == TaskSuccess || s == TaskFailure
}

// IsValid reports whether s is one of the known states.
func (s TaskState) IsValid() bool {
	switch s {
	case TaskPending, TaskProgress, TaskSuccess, TaskFailure:
		return true
	}
	return false
}
