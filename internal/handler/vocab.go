package handler

import (
	"net/http"
	"strings"

	"github.com/capitalize-ai/calendar-agent/internal/color"
	"github.com/capitalize-ai/calendar-agent/internal/model"
	"github.com/capitalize-ai/calendar-agent/internal/recurrence"
)

// Colors handles GET /api/v1/colors
func Colors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"options":      color.Options(),
		"names":        color.Names(),
		"default_slot": color.DefaultSlot,
	})
}

// recurrenceOptions is the editor vocabulary, with an optional parse preview
// of ?label=.
type recurrenceOptions struct {
	Labels []string          `json:"labels"`
	Label  string            `json:"label,omitempty"`
	Parsed *model.Recurrence `json:"parsed,omitempty"`
	RRule  string            `json:"rrule,omitempty"`
}

// RecurrenceOptions handles GET /api/v1/recurrence-options
func RecurrenceOptions(w http.ResponseWriter, r *http.Request) {
	resp := recurrenceOptions{Labels: recurrence.Labels()}

	if label := strings.TrimSpace(r.URL.Query().Get("label")); label != "" {
		resp.Label = label
		resp.Parsed = recurrence.Parse(label)
		resp.RRule = recurrence.RRule(resp.Parsed)
	}

	writeJSON(w, http.StatusOK, resp)
}
