package model

import "encoding/json"

// ProposeRequest asks the AI source to turn a message or image into actions.
type ProposeRequest struct {
	Message      string `json:"message"`
	Timezone     string `json:"timezone"`
	ImageBase64  string `json:"imageBase64,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

// HasImage reports whether the request carries an image.
func (r *ProposeRequest) HasImage() bool {
	return r.ImageBase64 != ""
}

// ProposeResponse is the AI source's answer.
type ProposeResponse struct {
	Success bool        `json:"success"`
	Actions []RawAction `json:"actions"`

	// Dropped counts malformed entries removed while decoding Actions.
	Dropped int `json:"-"`
}

// CommitParams is the parameter shape the calendar sink expects for event
// creation.
type CommitParams struct {
	Title       string      `json:"title"`
	StartTime   string      `json:"startTime"`
	EndTime     string      `json:"endTime"`
	Color       string      `json:"color"`
	Description string      `json:"description"`
	Location    string      `json:"location,omitempty"`
	Recurrence  *Recurrence `json:"recurrence,omitempty"`
}

// CommitAction is a fully resolved action ready for the calendar sink.
type CommitAction struct {
	Action ActionKind   `json:"action"`
	Params CommitParams `json:"params"`
}

// CommitRequest is the payload posted to the calendar sink. Params is either
// CommitParams or, for read-only actions, the raw params object.
type CommitRequest struct {
	CalendarID string     `json:"calendarId"`
	Action     ActionKind `json:"action"`
	Params     any        `json:"params"`
}

// CommitResponse is the calendar sink's reply. Older deployments answer with
// status/message instead of success/error; both are accepted.
type CommitResponse struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Status  string          `json:"status,omitempty"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// OK reports whether the sink accepted the command.
func (r *CommitResponse) OK() bool {
	if r == nil {
		return false
	}
	if r.Status == "error" {
		return false
	}
	return r.Success || r.Status == "success" || r.Status == "ok"
}

// Detail returns the most specific failure text available.
func (r *CommitResponse) Detail() string {
	if r == nil {
		return ""
	}
	if r.Error != "" {
		return r.Error
	}
	return r.Message
}
