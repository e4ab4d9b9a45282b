// Package proposal turns AI actions into reviewable event proposals, keeps
// them in review order, and translates accepted ones back into calendar
// actions.
package proposal

import (
	"time"

	"github.com/capitalize-ai/calendar-agent/internal/color"
	"github.com/capitalize-ai/calendar-agent/internal/model"
)

const (
	// DefaultTitle is used when the action carries no title.
	DefaultTitle = "Untitled Event"

	// DefaultDuration applies when the action carries no usable end time.
	DefaultDuration = 60 * time.Minute
)

// Proposal is a draft calendar event awaiting accept or reject.
type Proposal struct {
	ID              string           `json:"id"`
	Title           string           `json:"title"`
	StartTime       time.Time        `json:"start_time"`
	EndTime         time.Time        `json:"end_time"`
	ColorSlot       color.Slot       `json:"color_slot"`
	Swatch          string           `json:"swatch"`
	RecurrenceLabel string           `json:"recurrence_label"`
	Description     string           `json:"description"`
	Location        string           `json:"location,omitempty"`
	SourceAction    model.ActionKind `json:"source_action"`

	// OriginalParams is the decoded bag the proposal was built from. Its
	// recurrence outranks RecurrenceLabel at commit time.
	OriginalParams model.EventParams `json:"original_params"`

	// LastError is set when a failed commit put the proposal back.
	LastError string `json:"last_error,omitempty"`
}

func (p Proposal) clone() Proposal {
	p.OriginalParams = p.OriginalParams.Clone()
	return p
}

// SetColorSlot changes the slot and re-derives the swatch.
func (p *Proposal) SetColorSlot(slot color.Slot) {
	p.ColorSlot = slot
	p.Swatch = color.SwatchFor(slot)
}

// Duration returns EndTime - StartTime.
func (p *Proposal) Duration() time.Duration {
	return p.EndTime.Sub(p.StartTime)
}

// normalize restores the derived-field and time invariants after an edit.
func (p *Proposal) normalize() {
	p.Swatch = color.SwatchFor(p.ColorSlot)
	if p.Title == "" {
		p.Title = DefaultTitle
	}
	if !p.EndTime.After(p.StartTime) {
		p.EndTime = p.StartTime.Add(DefaultDuration)
	}
}
