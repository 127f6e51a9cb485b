package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrStorageFailure, "read failed").
		WithCause(root).
		WithHTTPStatus(502).
		WithRetryable(true)

	if GetErrorCode(err) != ErrStorageFailure {
		t.Fatalf("expected code %s, got %s", ErrStorageFailure, GetErrorCode(err))
	}
	if !IsRetryable(err) {
		t.Fatalf("expected retryable")
	}
	if !errors.Is(err, root) {
		t.Fatalf("expected errors.Is unwrap to root")
	}
	if got := err.Error(); got == "" {
		t.Fatalf("expected non-empty error string")
	}
}

func TestError_ResponseCodes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      *Error
		code     int
		category Category
		suppKey  string
	}{
		{"version", NewVersionNotSupportedError("9.9"), 100, CategoryClientProtocol, "invalidVersion"},
		{"device", NewDeviceUnallowedError(), 101, CategoryClientProtocol, ""},
		{"missing", NewMissingParamError("serialNumber"), 102, CategoryClientProtocol, "missingParams"},
		{"invalid", NewInvalidValueError("rulesets"), 103, CategoryClientProtocol, "invalidParams"},
		{"unexpected", NewUnexpectedParamError("foo"), 106, CategoryClientProtocol, "unexpectedParams"},
		{"spectrum", NewUnsupportedSpectrumError(), 300, CategoryClientProtocol, ""},
		{"general", NewGeneralFailureError("engine exploded"), -1, CategoryInternalEngine, ""},
		{"gone", NewResourceGoneError(), -1, CategoryTransientState, ""},
		{"storage", NewStorageError("boom", errors.New("io")), -1, CategoryInfrastructure, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.ResponseCode)
			assert.Equal(t, tt.category, tt.err.Category())
			supp := tt.err.SupplementalJSON()
			if tt.suppKey == "" {
				assert.Nil(t, supp)
				return
			}
			require.NotNil(t, supp)
			assert.Contains(t, *supp, tt.suppKey)
		})
	}
}

func TestError_SupplementalJSON(t *testing.T) {
	t.Parallel()

	err := NewMissingParamError("serialNumber")
	require.NotNil(t, err.SupplementalJSON())
	assert.JSONEq(t, `{"missingParams":["serialNumber"]}`, *err.SupplementalJSON())
}

func TestAsError_ThroughWrapping(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("item 2: %w", NewResourceGoneError())
	e, ok := AsError(wrapped)
	require.True(t, ok)
	assert.Equal(t, ErrResourceGone, e.Code)
	assert.Equal(t, http.StatusGone, e.HTTPStatus)
	assert.True(t, IsErrorCode(wrapped, ErrResourceGone))

	plain := errors.New("plain")
	w := WrapError(plain, ErrInternalError, "wrapped")
	assert.Equal(t, ErrInternalError, w.Code)
	assert.ErrorIs(t, w, plain)
	assert.Nil(t, WrapError(nil, ErrInternalError, "x"))
}

func TestRuntimeOptions(t *testing.T) {
	t.Parallel()

	opts := OptDebug | OptNoCache
	assert.True(t, opts.Has(OptDebug))
	assert.True(t, opts.Has(OptNoCache))
	assert.False(t, opts.Has(OptGUI))
	assert.Equal(t, "DEBUG|NO_CACHE", opts.String())
	assert.Equal(t, "NONE", RuntimeOptions(0).String())
	assert.Equal(t, RuntimeOptions(1), OptDebug)
	assert.Equal(t, RuntimeOptions(2), OptGUI)
}

func TestTaskState(t *testing.T) {
	t.Parallel()

	assert.False(t, TaskPending.IsTerminal())
	assert.False(t, TaskProgress.IsTerminal())
	assert.True(t, TaskSuccess.IsTerminal())
	assert.True(t, TaskFailure.IsTerminal())
	assert.True(t, TaskProgress.IsValid())
	assert.False(t, TaskState("RETRY").IsValid())
}
