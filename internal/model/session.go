// Package model defines the data structures shared by the proposal service.
package model

import (
	"time"
)

// Session is one onboarded user workspace: a target calendar, the user's
// timezone, and (held by the service) a proposal queue.
type Session struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	UserID     string    `json:"user_id"`
	CalendarID string    `json:"calendar_id"`
	Timezone   string    `json:"timezone"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

// CreateSessionRequest is the onboarding request.
type CreateSessionRequest struct {
	CalendarID string `json:"calendar_id"`
	Timezone   string `json:"timezone"`
}

// ProposeMessageRequest is the body of a proposal request from a client.
type ProposeMessageRequest struct {
	Message      string `json:"message"`
	ImageBase64  string `json:"image_base64,omitempty"`
	Instructions string `json:"instructions,omitempty"`
	ImageName    string `json:"image_name,omitempty"`
}

// UpdateProposalRequest carries user edits. Nil fields are left untouched.
type UpdateProposalRequest struct {
	Title           *string    `json:"title,omitempty"`
	StartTime       *time.Time `json:"start_time,omitempty"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	ColorSlot       *string    `json:"color_slot,omitempty"`
	RecurrenceLabel *string    `json:"recurrence_label,omitempty"`
	Description     *string    `json:"description,omitempty"`
	Location        *string    `json:"location,omitempty"`
}
