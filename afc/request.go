package afc

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/BaSui01/afcflow/afc/registry"
	"github.com/BaSui01/afcflow/types"
)

// InquiryBatch is the top-level POST body.
type InquiryBatch struct {
	Version  string            `json:"version"`
	Requests []json.RawMessage `json:"availableSpectrumInquiryRequests"`
}

// ParseBatch decodes a POST body. Per-item content stays opaque here; items
// are decoded one by one so a broken item only fails itself.
func ParseBatch(body []byte) (*InquiryBatch, error) {
	var b InquiryBatch
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, types.NewInvalidRequestError("request body is not a valid inquiry").WithCause(err)
	}
	if b.Version == "" {
		return nil, types.NewMissingParamError("version").WithHTTPStatus(400)
	}
	if len(b.Requests) == 0 {
		return nil, types.NewMissingParamError("availableSpectrumInquiryRequests").WithHTTPStatus(400)
	}
	return &b, nil
}

// InquiryItem is one spectrum request after splitting.
type InquiryItem struct {
	Index     int
	RequestID string
	Device    registry.DeviceDescriptor
	// Raw is the item exactly as received.
	Raw json.RawMessage
}

type itemHeader struct {
	RequestID        string                     `json:"requestId"`
	DeviceDescriptor *registry.DeviceDescriptor `json:"deviceDescriptor"`
}

// parseItem extracts what the coordinator needs from an item. The request id
// is returned even when the rest of the item is unusable.
func parseItem(index int, raw json.RawMessage) (*InquiryItem, error) {
	var h itemHeader
	if err := json.Unmarshal(raw, &h); err != nil {
		return &InquiryItem{Index: index, Raw: raw, RequestID: lenientRequestID(raw)},
			types.NewInvalidValueError("availableSpectrumInquiryRequests").WithCause(err)
	}
	item := &InquiryItem{Index: index, RequestID: h.RequestID, Raw: raw}
	if h.RequestID == "" {
		return item, types.NewMissingParamError("requestId")
	}
	if h.DeviceDescriptor == nil {
		return item, types.NewMissingParamError("deviceDescriptor")
	}
	item.Device = *h.DeviceDescriptor
	return item, nil
}

func lenientRequestID(raw json.RawMessage) string {
	var m map[string]json.RawMessage
	if json.Unmarshal(raw, &m) != nil {
		return ""
	}
	var id string
	_ = json.Unmarshal(m["requestId"], &id)
	return id
}

// singleRequest wraps one item the way the engine expects to read it from
// pro/<hash>/analysisRequest.json.
func singleRequest(version string, item json.RawMessage) ([]byte, error) {
	return json.Marshal(struct {
		Requests []json.RawMessage `json:"availableSpectrumInquiryRequests"`
		Version  string            `json:"version"`
	}{Requests: []json.RawMessage{item}, Version: version})
}

// requestIDFromArtifact reads the request id back out of a stored request.
func requestIDFromArtifact(data []byte) (string, error) {
	var doc struct {
		Requests []struct {
			RequestID string `json:"requestId"`
		} `json:"availableSpectrumInquiryRequests"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("decode request artifact: %w", err)
	}
	if len(doc.Requests) == 0 {
		return "", fmt.Errorf("request artifact has no requests")
	}
	return doc.Requests[0].RequestID, nil
}

// =============================================================================
// ⚙️ 调用选项
// =============================================================================

// ConnType selects blocking or ticket-based delivery.
type ConnType string

const (
	ConnSync  ConnType = "sync"
	ConnAsync ConnType = "async"
)

// InquiryOptions are the per-call flags of a POST.
type InquiryOptions struct {
	Debug   bool
	GUI     bool
	NoCache bool
	Conn    ConnType
}

// RuntimeOptions converts the flags into the bitmask handed to the engine.
func (o InquiryOptions) RuntimeOptions(httpIO bool) types.RuntimeOptions {
	var opts types.RuntimeOptions
	if o.Debug {
		opts |= types.OptDebug
	}
	if o.GUI {
		opts |= types.OptGUI
	}
	if o.NoCache {
		opts |= types.OptNoCache
	}
	if httpIO {
		opts |= types.OptHTTPIO
	}
	return opts
}

// ParseFlag accepts Go bool syntax plus the capitalised "True"/"False".
// An empty value is false.
func ParseFlag(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, fmt.Errorf("invalid boolean %q", v)
	}
	return b, nil
}

// ParseConnType validates a conn_type query value; empty means sync.
func ParseConnType(v string) (ConnType, error) {
	switch ConnType(strings.ToLower(strings.TrimSpace(v))) {
	case "", ConnSync:
		return ConnSync, nil
	case ConnAsync:
		return ConnAsync, nil
	default:
		return "", fmt.Errorf("invalid conn_type %q", v)
	}
}
