package afc

import (
	"encoding/json"

	"github.com/BaSui01/afcflow/types"
)

// InquiryResult is what a POST produces: either the batch of per-item
// entries, or, for non-blocking calls, the ticket of the single task.
type InquiryResult struct {
	Version   string
	Responses []json.RawMessage
	Ticket    *Ticket
}

// MarshalJSON renders the wire shape.
func (r *InquiryResult) MarshalJSON() ([]byte, error) {
	if r.Ticket != nil {
		return json.Marshal(r.Ticket)
	}
	responses := r.Responses
	if responses == nil {
		responses = []json.RawMessage{}
	}
	return json.Marshal(struct {
		Responses []json.RawMessage `json:"availableSpectrumInquiryResponses"`
		Version   string            `json:"version"`
	}{responses, r.Version})
}

// Ticket is handed out when the caller must poll.
type Ticket struct {
	TaskID    string          `json:"taskId"`
	TaskState types.TaskState `json:"taskState"`
}

// ResponseBody is the response object of an error entry.
type ResponseBody struct {
	ResponseCode     int     `json:"responseCode"`
	ShortDescription string  `json:"shortDescription"`
	SupplementalInfo *string `json:"supplementalInfo"`
}

// ErrorEntry is the per-item error shape of the batch response.
type ErrorEntry struct {
	RequestID string       `json:"requestId"`
	Response  ResponseBody `json:"response"`
}

// NewErrorEntry renders err for one item. Errors outside the taxonomy become
// an internal error. The cause chain stays in the logs and never reaches the
// client.
func NewErrorEntry(requestID string, err error) ErrorEntry {
	e := types.WrapError(err, types.ErrInternalError, "Internal error")
	return ErrorEntry{
		RequestID: requestID,
		Response: ResponseBody{
			ResponseCode:     e.ResponseCode,
			ShortDescription: e.Message,
			SupplementalInfo: e.SupplementalJSON(),
		},
	}
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		// only plain structs of strings and ints reach here
		panic(err)
	}
	return data
}
