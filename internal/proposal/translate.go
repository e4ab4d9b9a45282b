package proposal

import (
	"github.com/capitalize-ai/calendar-agent/internal/color"
	"github.com/capitalize-ai/calendar-agent/internal/model"
	"github.com/capitalize-ai/calendar-agent/internal/recurrence"
)

// ToAction converts an accepted proposal into the calendar sink's action
// shape. It never fails: an unresolvable recurrence degrades to a single
// occurrence.
func ToAction(p Proposal) model.CommitAction {
	params := model.CommitParams{
		Title:       p.Title,
		StartTime:   model.FormatWireTime(p.StartTime),
		EndTime:     model.FormatWireTime(p.EndTime),
		Color:       color.NameFor(p.ColorSlot),
		Description: p.Description,
		Location:    p.Location,
		Recurrence:  ResolveRecurrence(p),
	}

	action := p.SourceAction
	if action == "" {
		action = model.ActionCreateEvent
	}
	if params.Recurrence.Repeats() {
		action = model.ActionCreateEventSeries
	}

	return model.CommitAction{Action: action, Params: params}
}

// ResolveRecurrence picks the recurrence to commit: the structured spec the
// proposal was built from, else whatever the label parses to.
func ResolveRecurrence(p Proposal) *model.Recurrence {
	if orig := p.OriginalParams.Recurrence; orig != nil && orig.Type != "" {
		return orig.Clone()
	}
	return recurrence.Parse(p.RecurrenceLabel)
}
