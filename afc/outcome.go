package afc

import (
	"encoding/json"
	"strings"

	"github.com/BaSui01/afcflow/types"
)

// engineVocabulary is checked in order; the first marker found in the engine
// error text wins.
var engineVocabulary = []struct {
	marker string
	build  func() *types.Error
}{
	{"UNSUPPORTED_SPECTRUM", types.NewUnsupportedSpectrumError},
	{"INVALID_VALUE", func() *types.Error { return types.NewInvalidValueError() }},
	{"MISSING_PARAM", func() *types.Error { return types.NewMissingParamError() }},
	{"UNEXPECTED_PARAM", func() *types.Error { return types.NewUnexpectedParamError() }},
	{"VERSION_NOT_SUPPORTED", func() *types.Error { return types.NewVersionNotSupportedError("") }},
}

// TranslateEngineError maps the engine's error text onto a structured error.
// Unknown text becomes a general failure whose description is the text.
func TranslateEngineError(text string) *types.Error {
	text = strings.TrimSpace(text)
	for _, v := range engineVocabulary {
		if strings.Contains(text, v.marker) {
			e := v.build()
			e.Supplemental = nil
			e.HTTPStatus = 0
			return e
		}
	}
	return types.NewGeneralFailureError(text)
}

// firstResponse picks availableSpectrumInquiryResponses[0] out of a response
// document, falling back to the document itself.
func firstResponse(doc json.RawMessage) json.RawMessage {
	var parsed struct {
		Responses []json.RawMessage `json:"availableSpectrumInquiryResponses"`
	}
	if err := json.Unmarshal(doc, &parsed); err != nil || len(parsed.Responses) == 0 {
		return doc
	}
	return parsed.Responses[0]
}
