package recurrence

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/capitalize-ai/calendar-agent/internal/model"
)

var rruleWeekdays = map[string]rrule.Weekday{
	model.Monday:    rrule.MO,
	model.Tuesday:   rrule.TU,
	model.Wednesday: rrule.WE,
	model.Thursday:  rrule.TH,
	model.Friday:    rrule.FR,
	model.Saturday:  rrule.SA,
	model.Sunday:    rrule.SU,
}

// RRule renders spec as an RFC 5545 RRULE value (without the "RRULE:"
// prefix). Non-repeating specs render as "".
func RRule(spec *model.Recurrence) string {
	opt, ok := toOption(spec)
	if !ok {
		return ""
	}
	return opt.RRuleString()
}

// Occurrences returns up to n occurrence starts of spec anchored at start.
// A non-repeating spec has exactly one occurrence.
func Occurrences(spec *model.Recurrence, start time.Time, n int) ([]time.Time, error) {
	if n <= 0 {
		return nil, nil
	}

	opt, ok := toOption(spec)
	if !ok {
		return []time.Time{start}, nil
	}
	opt.Dtstart = start

	r, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("failed to build rrule: %w", err)
	}

	out := make([]time.Time, 0, n)
	next := r.Iterator()
	for len(out) < n {
		t, ok := next()
		if !ok {
			break
		}
		out = append(out, t)
	}
	return out, nil
}

// toOption maps a spec onto rrule options. UNTIL wins when both bounds are
// present, since RFC 5545 forbids combining them.
func toOption(spec *model.Recurrence) (rrule.ROption, bool) {
	if !spec.Repeats() {
		return rrule.ROption{}, false
	}

	opt := rrule.ROption{Interval: spec.Step()}

	switch spec.Type {
	case model.RecurrenceDaily:
		opt.Freq = rrule.DAILY
	case model.RecurrenceWeekly:
		opt.Freq = rrule.WEEKLY
		for _, d := range spec.Days {
			if wd, ok := rruleWeekdays[d]; ok {
				opt.Byweekday = append(opt.Byweekday, wd)
			}
		}
	case model.RecurrenceMonthly:
		opt.Freq = rrule.MONTHLY
	default:
		return rrule.ROption{}, false
	}

	switch {
	case spec.Until != nil:
		opt.Until = *spec.Until
	case spec.Times > 0:
		opt.Count = spec.Times
	}

	return opt, true
}
