// Package ics renders proposals as iCalendar documents so a reviewer can
// preview or import them before committing.
package ics

import (
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/capitalize-ai/calendar-agent/internal/color"
	"github.com/capitalize-ai/calendar-agent/internal/model"
	"github.com/capitalize-ai/calendar-agent/internal/proposal"
	"github.com/capitalize-ai/calendar-agent/internal/recurrence"
)

const (
	productID = "capitalize-ai calendar-agent"
	uidDomain = "calendar-agent"

	// ContentType is the media type of an exported document.
	ContentType = "text/calendar; charset=utf-8"
)

// Export renders proposals as a single VCALENDAR. now stamps DTSTAMP.
func Export(proposals []proposal.Proposal, now time.Time) string {
	cal := ical.NewCalendarFor(productID)
	cal.SetMethod(ical.MethodPublish)

	for _, p := range proposals {
		addEvent(cal, p, now)
	}
	return cal.Serialize()
}

func addEvent(cal *ical.Calendar, p proposal.Proposal, now time.Time) {
	ev := cal.AddEvent(p.ID + "@" + uidDomain)
	ev.SetDtStampTime(now)
	ev.SetSummary(p.Title)

	if p.SourceAction == model.ActionCreateAllDayEvent {
		ev.SetAllDayStartAt(p.StartTime)
		ev.SetAllDayEndAt(p.EndTime)
	} else {
		ev.SetStartAt(p.StartTime)
		ev.SetEndAt(p.EndTime)
	}

	if p.Description != "" {
		ev.SetDescription(p.Description)
	}
	if p.Location != "" {
		ev.SetLocation(p.Location)
	}
	ev.SetColor(strings.ToLower(color.NameFor(p.ColorSlot)))

	if rule := recurrence.RRule(proposal.ResolveRecurrence(p)); rule != "" {
		ev.AddRrule(rule)
	}
}
