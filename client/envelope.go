package client

import "encoding/json"

// Envelope is the response wrapper every backend endpoint returns.
type Envelope struct {
	Success    *bool           `json:"success"`
	Message    string          `json:"message"`
	StatusCode int             `json:"status_code"`
	Data       json.RawMessage `json:"data"`
	ErrorCode  string          `json:"error_code,omitempty"`
	Field      string          `json:"field,omitempty"`
}

// Failed reports whether the envelope flags a logical failure.
func (e Envelope) Failed() bool {
	return e.Success != nil && !*e.Success
}
