package model

import (
	"encoding/json"
	"strings"
	"time"
)

// RecurrenceType is the repetition unit of a series.
type RecurrenceType string

const (
	RecurrenceNone    RecurrenceType = "none"
	RecurrenceDaily   RecurrenceType = "daily"
	RecurrenceWeekly  RecurrenceType = "weekly"
	RecurrenceMonthly RecurrenceType = "monthly"
)

// Weekday tokens used on the wire.
const (
	Monday    = "MONDAY"
	Tuesday   = "TUESDAY"
	Wednesday = "WEDNESDAY"
	Thursday  = "THURSDAY"
	Friday    = "FRIDAY"
	Saturday  = "SATURDAY"
	Sunday    = "SUNDAY"
)

// Weekdays lists the weekday tokens Monday first.
var Weekdays = []string{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

// Recurrence is the structured description of a repeating schedule.
type Recurrence struct {
	Type     RecurrenceType `json:"type"`
	Days     []string       `json:"days,omitempty"`
	Interval int            `json:"interval,omitempty"`
	Until    *time.Time     `json:"until,omitempty"`
	Times    int            `json:"times,omitempty"`
}

// Repeats reports whether the recurrence describes an actual series.
func (r *Recurrence) Repeats() bool {
	return r != nil && r.Type != "" && r.Type != RecurrenceNone
}

// Step returns the interval, treating missing or non-positive values as 1.
func (r *Recurrence) Step() int {
	if r == nil || r.Interval <= 0 {
		return 1
	}
	return r.Interval
}

// Clone returns a deep copy.
func (r *Recurrence) Clone() *Recurrence {
	if r == nil {
		return nil
	}
	out := *r
	if r.Days != nil {
		out.Days = append([]string(nil), r.Days...)
	}
	if r.Until != nil {
		until := *r.Until
		out.Until = &until
	}
	return &out
}

// UnmarshalJSON decodes leniently: the type is lower-cased, weekday tokens
// are upper-cased, numbers may arrive as strings, and a bad until is dropped.
func (r *Recurrence) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	*r = Recurrence{
		Type:     RecurrenceType(strings.ToLower(strings.TrimSpace(decodeString(fields["type"])))),
		Interval: decodeInt(fields["interval"]),
		Times:    decodeInt(fields["times"]),
		Until:    decodeTime(fields["until"]),
	}

	if raw, ok := fields["days"]; ok {
		var days []string
		if err := json.Unmarshal(raw, &days); err == nil {
			for _, d := range days {
				if d = strings.ToUpper(strings.TrimSpace(d)); d != "" {
					r.Days = append(r.Days, d)
				}
			}
		} else if single := decodeString(raw); single != "" {
			r.Days = []string{strings.ToUpper(strings.TrimSpace(single))}
		}
	}

	return nil
}

// MarshalJSON writes until in the wire layout.
func (r Recurrence) MarshalJSON() ([]byte, error) {
	type wire struct {
		Type     RecurrenceType `json:"type"`
		Days     []string       `json:"days,omitempty"`
		Interval int            `json:"interval,omitempty"`
		Until    string         `json:"until,omitempty"`
		Times    int            `json:"times,omitempty"`
	}
	w := wire{Type: r.Type, Days: r.Days, Interval: r.Interval, Times: r.Times}
	if r.Until != nil {
		w.Until = FormatWireTime(*r.Until)
	}
	return json.Marshal(w)
}
