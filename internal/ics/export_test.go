package ics

import (
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/capitalize-ai/calendar-agent/internal/color"
	"github.com/capitalize-ai/calendar-agent/internal/model"
	"github.com/capitalize-ai/calendar-agent/internal/proposal"
)

func TestExportRoundTrip(t *testing.T) {
	start := time.Date(2025, 11, 24, 15, 0, 0, 0, time.UTC)
	p := proposal.Proposal{
		ID:              "p-1",
		Title:           "Math class",
		StartTime:       start,
		EndTime:         start.Add(90 * time.Minute),
		ColorSlot:       color.SlotBlue,
		Description:     "Room 4",
		Location:        "Campus",
		SourceAction:    model.ActionCreateEventSeries,
		RecurrenceLabel: "Weekly on Monday",
		OriginalParams: model.EventParams{
			Recurrence: &model.Recurrence{Type: model.RecurrenceWeekly, Days: []string{model.Monday}, Times: 10},
		},
	}

	out := Export([]proposal.Proposal{p}, start)

	for _, want := range []string{
		"METHOD:PUBLISH",
		"UID:p-1@calendar-agent",
		"SUMMARY:Math class",
		"DTSTART:20251124T150000Z",
		"DTEND:20251124T163000Z",
		"COLOR:blue",
		"FREQ=WEEKLY",
		"BYDAY=MO",
		"COUNT=10",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("export missing %q:\n%s", want, out)
		}
	}

	cal, err := ical.ParseCalendar(strings.NewReader(out))
	if err != nil {
		t.Fatalf("ParseCalendar: %v", err)
	}
	events := cal.Events()
	if len(events) != 1 {
		t.Fatalf("events = %d", len(events))
	}
	if got := events[0].GetProperty(ical.ComponentPropertyLocation); got == nil || got.Value != "Campus" {
		t.Errorf("location = %+v", got)
	}
}

func TestExportSingleOccurrenceHasNoRule(t *testing.T) {
	start := time.Date(2025, 11, 24, 15, 0, 0, 0, time.UTC)
	p := proposal.Proposal{
		ID:              "p-2",
		Title:           "Lunch",
		StartTime:       start,
		EndTime:         start.Add(time.Hour),
		ColorSlot:       color.SlotGreen,
		SourceAction:    model.ActionCreateEvent,
		RecurrenceLabel: "Does not repeat",
	}

	out := Export([]proposal.Proposal{p}, start)
	if strings.Contains(out, "RRULE") {
		t.Errorf("unexpected RRULE:\n%s", out)
	}
	if strings.Contains(out, "DESCRIPTION") {
		t.Errorf("empty description should be omitted:\n%s", out)
	}
}
