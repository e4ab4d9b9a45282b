package proposal

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/capitalize-ai/calendar-agent/internal/color"
	"github.com/capitalize-ai/calendar-agent/internal/model"
	"github.com/capitalize-ai/calendar-agent/internal/recurrence"
)

// Factory builds proposals from decoded actions. It never fails: missing or
// malformed fields are defaulted.
type Factory struct {
	now      func() time.Time
	newID    func(index int) string
	location *time.Location
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithClock overrides the time source used for the missing-start default.
func WithClock(now func() time.Time) FactoryOption {
	return func(f *Factory) { f.now = now }
}

// WithIDSource overrides how proposal ids are minted.
func WithIDSource(newID func(index int) string) FactoryOption {
	return func(f *Factory) { f.newID = newID }
}

// WithLocation sets the location used to render recurrence labels.
func WithLocation(loc *time.Location) FactoryOption {
	return func(f *Factory) { f.location = loc }
}

// NewFactory creates a new proposal factory.
func NewFactory(opts ...FactoryOption) *Factory {
	f := &Factory{
		now:      time.Now,
		newID:    defaultID,
		location: time.UTC,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func defaultID(index int) string {
	return fmt.Sprintf("%s-%d", uuid.Must(uuid.NewV7()).String(), index)
}

// FromAction converts one action into a proposal. index only disambiguates
// identity within a batch.
func (f *Factory) FromAction(action model.Action, index int) Proposal {
	params := action.Params

	start := f.now().UTC()
	if params.StartTime != nil {
		start = params.StartTime.UTC()
	}
	end := start.Add(DefaultDuration)
	if params.EndTime != nil && params.EndTime.After(start) {
		end = params.EndTime.UTC()
	}

	title := strings.TrimSpace(params.Title)
	if title == "" {
		title = DefaultTitle
	}

	slot := color.DefaultSlot
	if params.Color != "" {
		slot = color.SlotFor(params.Color)
	}

	p := Proposal{
		ID:              f.newID(index),
		Title:           title,
		StartTime:       start,
		EndTime:         end,
		RecurrenceLabel: recurrence.Describe(params.Recurrence, params.StartTime, f.location),
		Description:     params.Description,
		Location:        params.Location,
		SourceAction:    action.Kind,
		OriginalParams:  params,
	}
	p.SetColorSlot(slot)

	return p
}

// FromActions converts a batch, preserving order.
func (f *Factory) FromActions(actions []model.Action) []Proposal {
	out := make([]Proposal, 0, len(actions))
	for i, action := range actions {
		out = append(out, f.FromAction(action, i))
	}
	return out
}
