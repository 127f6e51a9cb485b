package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unified error code across the service.
type ErrorCode string

// Inquiry protocol error codes. They map one-to-one onto AFC response codes.
const (
	ErrVersionNotSupported ErrorCode = "VERSION_NOT_SUPPORTED"
	ErrDeviceUnallowed     ErrorCode = "DEVICE_UNALLOWED"
	ErrMissingParam        ErrorCode = "MISSING_PARAM"
	ErrInvalidValue        ErrorCode = "INVALID_VALUE"
	ErrUnexpectedParam     ErrorCode = "UNEXPECTED_PARAM"
	ErrUnsupportedSpectrum ErrorCode = "UNSUPPORTED_SPECTRUM"
)

// Service error codes
const (
	ErrGeneralFailure     ErrorCode = "GENERAL_FAILURE"
	ErrResourceGone       ErrorCode = "RESOURCE_GONE"
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrRateLimited        ErrorCode = "RATE_LIMITED"
	ErrTimeout            ErrorCode = "TIMEOUT"
	ErrStorageFailure     ErrorCode = "STORAGE_FAILURE"
	ErrBrokerFailure      ErrorCode = "BROKER_FAILURE"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// AFC response codes carried in the response body.
const (
	ResponseSuccess             = 0
	ResponseGeneralFailure      = -1
	ResponseVersionNotSupported = 100
	ResponseDeviceUnallowed     = 101
	ResponseMissingParam        = 102
	ResponseInvalidValue        = 103
	ResponseUnexpectedParam     = 106
	ResponseUnsupportedSpectrum = 300
)

// Category groups error codes by who is at fault and how callers react.
type Category string

const (
	CategoryClientProtocol Category = "client_protocol"
	CategoryTransientState Category = "transient_state"
	CategoryInternalEngine Category = "internal_engine"
	CategoryInfrastructure Category = "infrastructure"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code         ErrorCode      `json:"code"`
	ResponseCode int            `json:"response_code"`
	Message      string         `json:"message"`
	Supplemental map[string]any `json:"supplemental,omitempty"`
	HTTPStatus   int            `json:"http_status,omitempty"`
	Retryable    bool           `json:"retryable"`
	Cause        error          `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, ResponseCode: responseCodeFor(code), Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithSupplemental attaches supplemental info rendered into supplementalInfo.
func (e *Error) WithSupplemental(key string, value any) *Error {
	if e.Supplemental == nil {
		e.Supplemental = make(map[string]any, 1)
	}
	e.Supplemental[key] = value
	return e
}

// SupplementalJSON renders supplemental info as the JSON string the wire format carries.
// Returns nil when there is nothing to report.
func (e *Error) SupplementalJSON() *string {
	if len(e.Supplemental) == 0 {
		return nil
	}
	data, err := json.Marshal(e.Supplemental)
	if err != nil {
		return nil
	}
	s := string(data)
	return &s
}

// Category reports which of the four error families the code belongs to.
func (e *Error) Category() Category {
	switch e.Code {
	case ErrVersionNotSupported, ErrDeviceUnallowed, ErrMissingParam, ErrInvalidValue,
		ErrUnexpectedParam, ErrUnsupportedSpectrum, ErrInvalidRequest, ErrUnauthorized, ErrRateLimited:
		return CategoryClientProtocol
	case ErrResourceGone:
		return CategoryTransientState
	case ErrGeneralFailure:
		return CategoryInternalEngine
	default:
		return CategoryInfrastructure
	}
}

func responseCodeFor(code ErrorCode) int {
	switch code {
	case ErrVersionNotSupported:
		return ResponseVersionNotSupported
	case ErrDeviceUnallowed:
		return ResponseDeviceUnallowed
	case ErrMissingParam:
		return ResponseMissingParam
	case ErrInvalidValue:
		return ResponseInvalidValue
	case ErrUnexpectedParam:
		return ResponseUnexpectedParam
	case ErrUnsupportedSpectrum:
		return ResponseUnsupportedSpectrum
	default:
		return ResponseGeneralFailure
	}
}

// =============================================================================
// 📦 协议错误构造
// =============================================================================

// NewVersionNotSupportedError 请求版本不在允许列表中
func NewVersionNotSupportedError(version string) *Error {
	return NewError(ErrVersionNotSupported, "The requested version number is invalid").
		WithSupplemental("invalidVersion", []string{version}).
		WithHTTPStatus(http.StatusBadRequest)
}

// NewDeviceUnallowedError 设备未被允许在 AFC 控制下运行
func NewDeviceUnallowedError() *Error {
	return NewError(ErrDeviceUnallowed, "This specific device is not allowed to operate under AFC control.")
}

// NewMissingParamError 缺少必填字段
func NewMissingParamError(params ...string) *Error {
	return NewError(ErrMissingParam, "One or more fields required to be included in the request are missing.").
		WithSupplemental("missingParams", params)
}

// NewInvalidValueError 字段取值非法
func NewInvalidValueError(params ...string) *Error {
	return NewError(ErrInvalidValue, "One or more fields have an invalid value.").
		WithSupplemental("invalidParams", params)
}

// NewUnexpectedParamError 出现未知字段或条件字段
func NewUnexpectedParamError(params ...string) *Error {
	return NewError(ErrUnexpectedParam, "Unknown parameter found, or conditional parameter found, but condition is not met.").
		WithSupplemental("unexpectedParams", params)
}

// NewUnsupportedSpectrumError 请求频段超出 AFC 管理范围
func NewUnsupportedSpectrumError() *Error {
	return NewError(ErrUnsupportedSpectrum,
		"The frequency range indicated in the Available Spectrum Inquiry Request is at least partially outside of the frequency band under the management of the AFC.")
}

// NewGeneralFailureError 引擎或服务内部失败，消息原样透出
func NewGeneralFailureError(message string) *Error {
	return NewError(ErrGeneralFailure, message).WithHTTPStatus(http.StatusInternalServerError)
}

// NewResourceGoneError 任务产物已被清理
func NewResourceGoneError() *Error {
	return NewError(ErrResourceGone, "Resource already deleted").WithHTTPStatus(http.StatusGone)
}

// NewInvalidRequestError 请求体无法解析
func NewInvalidRequestError(message string) *Error {
	return NewError(ErrInvalidRequest, message).WithHTTPStatus(http.StatusBadRequest)
}

// NewStorageError 对象存储访问失败
func NewStorageError(message string, cause error) *Error {
	return NewError(ErrStorageFailure, message).WithCause(cause).WithRetryable(true)
}

// NewBrokerError 任务分发或状态读取失败
func NewBrokerError(message string, cause error) *Error {
	return NewError(ErrBrokerFailure, message).WithCause(cause).WithRetryable(true)
}

// =============================================================================
// 🔍 错误辅助函数
// =============================================================================

// AsError extracts *Error through wrapping.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// WrapError converts any error to *Error, keeping an existing *Error untouched.
func WrapError(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	if e, ok := AsError(err); ok {
		return e
	}
	return NewError(code, message).WithCause(err)
}

// IsErrorCode checks whether err carries the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	e, ok := AsError(err)
	return ok && e.Code == code
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}
