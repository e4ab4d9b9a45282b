// Package recurrence converts between structured recurrence specs and the
// human-editable labels shown on proposal cards.
package recurrence

import (
	"fmt"
	"strings"
	"time"

	"github.com/capitalize-ai/calendar-agent/internal/model"
)

const (
	// LabelNone is the label for a single-occurrence event.
	LabelNone = "Does not repeat"

	labelDaily   = "Daily"
	labelMonthly = "Monthly"

	dateLayout = "1/2/2006"
)

var dayNames = map[string]string{
	model.Monday:    "Monday",
	model.Tuesday:   "Tuesday",
	model.Wednesday: "Wednesday",
	model.Thursday:  "Thursday",
	model.Friday:    "Friday",
	model.Saturday:  "Saturday",
	model.Sunday:    "Sunday",
}

var labels = []string{
	LabelNone,
	"Daily",
	"Weekly on Mondays",
	"Weekly on Tuesdays",
	"Weekly on Wednesdays",
	"Weekly on Thursdays",
	"Weekly on Fridays",
	"Bi-weekly",
	"Monthly",
	"Weekly until Dec 30",
	"Custom",
}

// Describe renders spec as a label. start anchors weekly specs that name no
// day; when start is nil the current time is used. Dates are rendered in loc
// (UTC when nil).
func Describe(spec *model.Recurrence, start *time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	if spec == nil || spec.Type == "" {
		return LabelNone
	}

	switch spec.Type {
	case model.RecurrenceDaily:
		if spec.Until != nil {
			return fmt.Sprintf("Daily until %s", spec.Until.In(loc).Format(dateLayout))
		}
		if spec.Times > 0 {
			return fmt.Sprintf("Daily for %d times", spec.Times)
		}
		return labelDaily

	case model.RecurrenceWeekly:
		if len(spec.Days) > 0 {
			day, ok := dayNames[spec.Days[0]]
			if !ok {
				day = dayNames[model.Monday]
			}
			if spec.Until != nil {
				return fmt.Sprintf("Weekly on %s until %s", day, spec.Until.In(loc).Format(dateLayout))
			}
			return "Weekly on " + day
		}
		anchor := time.Now()
		if start != nil && !start.IsZero() {
			anchor = *start
		}
		return "Weekly on " + anchor.In(loc).Weekday().String()

	case model.RecurrenceMonthly:
		return labelMonthly
	}

	return LabelNone
}

// Parse recovers a structured spec from an edited label. It is lossy: only
// weekly-on-a-day and plain daily labels are understood, and bounds are never
// recovered. Any other label yields nil.
func Parse(label string) *model.Recurrence {
	if strings.Contains(label, "Weekly") {
		day := model.Monday
		if _, after, ok := strings.Cut(label, "on "); ok {
			if fields := strings.Fields(after); len(fields) > 0 {
				if d, ok := matchWeekday(fields[0]); ok {
					day = d
				}
			}
		}
		return &model.Recurrence{
			Type:     model.RecurrenceWeekly,
			Days:     []string{day},
			Interval: 1,
		}
	}

	if label == labelDaily {
		return &model.Recurrence{Type: model.RecurrenceDaily, Interval: 1}
	}

	return nil
}

// Labels returns the canned choices offered by the editor.
func Labels() []string {
	out := make([]string, len(labels))
	copy(out, labels)
	return out
}

// matchWeekday accepts full names, plurals and abbreviations of at least
// three letters.
func matchWeekday(token string) (string, bool) {
	tok := strings.ToUpper(strings.Trim(token, ".,;:!?"))
	if tok == "" {
		return "", false
	}
	for _, day := range model.Weekdays {
		if strings.HasPrefix(tok, day) {
			return day, true
		}
		if len(tok) >= 3 && strings.HasPrefix(day, tok) {
			return day, true
		}
	}
	return "", false
}
