package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// ActionKind is the backend action a calendar command maps to.
type ActionKind string

const (
	ActionCreateEvent       ActionKind = "createEvent"
	ActionCreateAllDayEvent ActionKind = "createAllDayEvent"
	ActionCreateEventSeries ActionKind = "createEventSeries"
	ActionGetEventsForDay   ActionKind = "getEventsForDay"
)

// Known reports whether the kind is part of the recognized action set.
func (k ActionKind) Known() bool {
	switch k {
	case ActionCreateEvent, ActionCreateAllDayEvent, ActionCreateEventSeries, ActionGetEventsForDay:
		return true
	}
	return false
}

// IsMutation reports whether the action writes to the calendar and
// therefore needs human review before it is committed.
func (k ActionKind) IsMutation() bool {
	return k == ActionCreateEvent || k == ActionCreateAllDayEvent || k == ActionCreateEventSeries
}

// RawAction is one action as it arrives from the AI source.
type RawAction struct {
	Action ActionKind      `json:"action"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Action is a decoded, strongly typed action.
type Action struct {
	Kind   ActionKind
	Params EventParams
}

// EventParams is the parameter bag of a calendar action. Decoding is lenient:
// fields with the wrong JSON type or unparseable times are left empty so the
// factory can default them.
type EventParams struct {
	Title       string      `json:"title,omitempty"`
	StartTime   *time.Time  `json:"startTime,omitempty"`
	EndTime     *time.Time  `json:"endTime,omitempty"`
	Color       string      `json:"color,omitempty"`
	Description string      `json:"description,omitempty"`
	Location    string      `json:"location,omitempty"`
	Date        string      `json:"date,omitempty"`
	Recurrence  *Recurrence `json:"recurrence,omitempty"`

	// Raw holds the params object exactly as received.
	Raw json.RawMessage `json:"-"`
}

// Clone returns a copy that shares no pointers or buffers with p.
func (p EventParams) Clone() EventParams {
	out := p
	if p.StartTime != nil {
		start := *p.StartTime
		out.StartTime = &start
	}
	if p.EndTime != nil {
		end := *p.EndTime
		out.EndTime = &end
	}
	out.Recurrence = p.Recurrence.Clone()
	if p.Raw != nil {
		out.Raw = append(json.RawMessage(nil), p.Raw...)
	}
	return out
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *EventParams) UnmarshalJSON(data []byte) error {
	*p = EventParams{}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 {
		p.Raw = append(json.RawMessage(nil), trimmed...)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		// Not an object: treat as an empty bag.
		return nil
	}

	p.Title = decodeString(fields["title"])
	p.Color = strings.TrimSpace(decodeString(fields["color"]))
	p.Description = decodeString(fields["description"])
	p.Location = decodeString(fields["location"])
	p.Date = decodeString(fields["date"])
	p.StartTime = decodeTime(fields["startTime"])
	p.EndTime = decodeTime(fields["endTime"])

	if raw, ok := fields["recurrence"]; ok {
		var rec Recurrence
		if err := json.Unmarshal(raw, &rec); err == nil && rec.Type != "" {
			p.Recurrence = &rec
		}
	}

	return nil
}

// MarshalJSON writes times in the wire layout.
func (p EventParams) MarshalJSON() ([]byte, error) {
	type wire struct {
		Title       string      `json:"title,omitempty"`
		StartTime   string      `json:"startTime,omitempty"`
		EndTime     string      `json:"endTime,omitempty"`
		Color       string      `json:"color,omitempty"`
		Description string      `json:"description,omitempty"`
		Location    string      `json:"location,omitempty"`
		Date        string      `json:"date,omitempty"`
		Recurrence  *Recurrence `json:"recurrence,omitempty"`
	}
	w := wire{
		Title:       p.Title,
		Color:       p.Color,
		Description: p.Description,
		Location:    p.Location,
		Date:        p.Date,
		Recurrence:  p.Recurrence,
	}
	if p.StartTime != nil {
		w.StartTime = FormatWireTime(*p.StartTime)
	}
	if p.EndTime != nil {
		w.EndTime = FormatWireTime(*p.EndTime)
	}
	return json.Marshal(w)
}

// DecodeAction converts a raw action into a typed one. The second return
// value is false for kinds outside the recognized set.
func DecodeAction(raw RawAction) (Action, bool) {
	kind := ActionKind(strings.TrimSpace(string(raw.Action)))
	if !kind.Known() {
		return Action{}, false
	}

	var params EventParams
	if len(raw.Params) > 0 {
		_ = params.UnmarshalJSON(raw.Params)
	}

	return Action{Kind: kind, Params: params}, true
}

// DecodeRawActions splits the AI's actions value into entries. A lone object
// counts as a one-element list and null yields none. Entries that are not
// objects, or whose action is not a string, are dropped and counted.
func DecodeRawActions(data json.RawMessage) ([]RawAction, int) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []RawAction{}, 0
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(trimmed, &elems); err != nil {
		if trimmed[0] != '{' {
			return []RawAction{}, 1
		}
		elems = []json.RawMessage{trimmed}
	}

	out := make([]RawAction, 0, len(elems))
	dropped := 0
	for _, elem := range elems {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(elem, &fields); err != nil || fields == nil {
			dropped++
			continue
		}
		var kind string
		if err := json.Unmarshal(fields["action"], &kind); err != nil {
			dropped++
			continue
		}
		out = append(out, RawAction{Action: ActionKind(kind), Params: fields["params"]})
	}
	return out, dropped
}

// DecodeActions decodes a batch, preserving order and dropping unknown kinds.
// It returns the number of dropped actions.
func DecodeActions(raws []RawAction) ([]Action, int) {
	actions := make([]Action, 0, len(raws))
	dropped := 0
	for _, raw := range raws {
		action, ok := DecodeAction(raw)
		if !ok {
			dropped++
			continue
		}
		actions = append(actions, action)
	}
	return actions, dropped
}

func decodeString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func decodeInt(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return int(n)
	}
	if s := decodeString(raw); s != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i
		}
	}
	return 0
}

func decodeTime(raw json.RawMessage) *time.Time {
	s := decodeString(raw)
	if s == "" {
		return nil
	}
	t, ok := ParseWireTime(s)
	if !ok {
		return nil
	}
	return &t
}
