package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/capitalize-ai/calendar-agent/internal/activity"
	"github.com/capitalize-ai/calendar-agent/internal/color"
	"github.com/capitalize-ai/calendar-agent/internal/ics"
	"github.com/capitalize-ai/calendar-agent/internal/model"
	"github.com/capitalize-ai/calendar-agent/internal/planner"
	"github.com/capitalize-ai/calendar-agent/internal/proposal"
	"github.com/capitalize-ai/calendar-agent/internal/recurrence"
	"github.com/capitalize-ai/calendar-agent/internal/review"
	"github.com/capitalize-ai/calendar-agent/pkg/logger"
	"github.com/capitalize-ai/calendar-agent/pkg/metrics"
	"github.com/capitalize-ai/calendar-agent/pkg/tracing"
)

const (
	defaultTopLimit  = 3
	previewCount     = 5
	processingNotice = "Processing your request..."
)

// Planner turns a user request into calendar actions.
type Planner interface {
	Propose(ctx context.Context, req model.ProposeRequest) (*model.ProposeResponse, error)
}

// ProposeResult is what one proposal request produced.
type ProposeResult struct {
	Proposals []proposal.Proposal `json:"proposals"`
	Lookups   []review.Outcome    `json:"lookups,omitempty"`
	Entries   []model.ChatEntry   `json:"entries"`
	Dropped   int                 `json:"dropped,omitempty"`
}

// ProposalView is a queued proposal with its review state and a recurrence
// preview.
type ProposalView struct {
	proposal.Proposal
	State           review.State `json:"state"`
	RRule           string       `json:"rrule,omitempty"`
	NextOccurrences []time.Time  `json:"next_occurrences,omitempty"`
}

// ProposalService handles proposal operations of a session.
type ProposalService struct {
	sessions *SessionService
	planner  Planner
	logger   *logger.Logger
}

// NewProposalService creates a new proposal service.
func NewProposalService(sessions *SessionService, p Planner, log *logger.Logger) *ProposalService {
	if log == nil {
		log = logger.Nop()
	}
	return &ProposalService{
		sessions: sessions,
		planner:  p,
		logger:   log,
	}
}

// Propose asks the planner for actions, queues the mutating ones as
// proposals and runs read-only ones straight away. Only one request per
// input surface may be in flight.
func (s *ProposalService) Propose(ctx context.Context, tenantID, sessionID string, req *model.ProposeMessageRequest) (*ProposeResult, error) {
	sess, err := s.sessions.lookup(tenantID, sessionID)
	if err != nil {
		return nil, err
	}

	message := strings.TrimSpace(req.Message)
	hasImage := req.ImageBase64 != ""
	if message == "" && !hasImage {
		return nil, fmt.Errorf("%w: message or image is required", ErrInvalidInput)
	}

	surface := SurfaceText
	if hasImage {
		surface = SurfaceImage
	}
	release, err := sess.acquire(surface)
	if err != nil {
		return nil, err
	}
	defer release()

	ctx, span := tracing.Tracer("service").Start(ctx, "service.Propose")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("surface", string(surface)),
	)

	log := s.logger.WithSession(sessionID)
	machine := sess.machine
	result := &ProposeResult{Proposals: []proposal.Proposal{}}

	userContent := message
	if hasImage {
		name := strings.TrimSpace(req.ImageName)
		if name == "" {
			name = "image"
		}
		userContent = "📎 " + name
	}
	result.Entries = append(result.Entries,
		s.write(ctx, log, sessionID, model.ChatUser, userContent),
		s.write(ctx, log, sessionID, model.ChatSystem, processingNotice),
	)

	resp, err := s.planner.Propose(ctx, model.ProposeRequest{
		Message:      message,
		Timezone:     sess.loc.String(),
		ImageBase64:  req.ImageBase64,
		Instructions: req.Instructions,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn("planner failed", zap.String("surface", string(surface)), zap.Error(err))
		result.Entries = append(result.Entries,
			s.write(ctx, log, sessionID, model.ChatError, "Error: "+plannerFailureDetail(err)))
		return result, err
	}

	actions, dropped := model.DecodeActions(resp.Actions)
	dropped += resp.Dropped
	if dropped > 0 {
		metrics.ActionsDropped.Add(float64(dropped))
		log.Debug("dropped unknown actions", zap.Int("count", dropped))
	}
	result.Dropped = dropped

	var mutations []model.Action
	if resp.Success {
		for _, a := range actions {
			if a.Kind.IsMutation() {
				mutations = append(mutations, a)
				continue
			}
			out := machine.Lookup(ctx, a)
			result.Lookups = append(result.Lookups, out)
			result.Entries = append(result.Entries, out.Entry)
		}
	}

	// Lookups alone are an answer; the fallback is for requests that
	// produced nothing at all.
	if len(mutations) > 0 || len(result.Lookups) == 0 {
		result.Proposals = sess.factory.FromActions(mutations)
		result.Entries = append(result.Entries, machine.Enqueue(ctx, result.Proposals))
	}

	span.SetAttributes(
		attribute.Int("proposals", len(result.Proposals)),
		attribute.Int("lookups", len(result.Lookups)),
	)
	return result, nil
}

// plannerFailureDetail renders a planner error for the chat log.
func plannerFailureDetail(err error) string {
	if errors.Is(err, planner.ErrNotConfigured) {
		return "Server Configuration Error: " + err.Error() + "\n\n" +
			"Please check:\n" +
			"1. Set AI_PROVIDER to openai or anthropic\n" +
			"2. Set OPENAI_API_KEY or ANTHROPIC_API_KEY for that provider\n" +
			"3. Restart the server after updating the configuration"
	}
	return err.Error()
}

func (s *ProposalService) write(ctx context.Context, log *logger.Logger, sessionID string, kind model.ChatKind, content string) model.ChatEntry {
	entry, err := activity.Write(ctx, s.sessions.log, sessionID, kind, content)
	if err != nil {
		log.Error("failed to record activity", zap.String("kind", string(kind)), zap.Error(err))
	}
	return entry
}

// List returns the first limit queued proposals in review order.
func (s *ProposalService) List(ctx context.Context, tenantID, sessionID string, limit int) ([]ProposalView, error) {
	sess, err := s.sessions.lookup(tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultTopLimit
	}

	top := sess.machine.Queue().Top(limit)
	views := make([]ProposalView, 0, len(top))
	for _, p := range top {
		views = append(views, s.view(sess, p, false))
	}
	return views, nil
}

// Get returns one queued proposal with its recurrence preview.
func (s *ProposalService) Get(ctx context.Context, tenantID, sessionID, proposalID string) (*ProposalView, error) {
	sess, err := s.sessions.lookup(tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	p, ok := sess.machine.Queue().Get(proposalID)
	if !ok {
		return nil, review.ErrProposalNotFound
	}
	v := s.view(sess, p, true)
	return &v, nil
}

func (s *ProposalService) view(sess *session, p proposal.Proposal, preview bool) ProposalView {
	v := ProposalView{Proposal: p}
	v.State, _ = sess.machine.State(p.ID)

	spec := proposal.ResolveRecurrence(p)
	v.RRule = recurrence.RRule(spec)
	if preview && v.RRule != "" {
		next, err := recurrence.Occurrences(spec, p.StartTime, previewCount)
		if err != nil {
			s.logger.Debug("recurrence preview failed", zap.String("proposal_id", p.ID), zap.Error(err))
		}
		v.NextOccurrences = next
	}
	return v
}

// Update applies user edits to a queued proposal. An id that is no longer
// queued is a no-op and yields a nil view, matching Reject.
func (s *ProposalService) Update(ctx context.Context, tenantID, sessionID, proposalID string, req *model.UpdateProposalRequest) (*ProposalView, error) {
	sess, err := s.sessions.lookup(tenantID, sessionID)
	if err != nil {
		return nil, err
	}

	if req.ColorSlot != nil && !color.Known(color.Slot(*req.ColorSlot)) {
		return nil, fmt.Errorf("%w: unknown color slot %q", ErrInvalidInput, *req.ColorSlot)
	}

	p, err := sess.machine.Edit(proposalID, func(p *proposal.Proposal) {
		applyUpdate(p, req)
	})
	if errors.Is(err, review.ErrProposalNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	v := s.view(sess, p, true)
	return &v, nil
}

func applyUpdate(p *proposal.Proposal, req *model.UpdateProposalRequest) {
	if req.Title != nil {
		p.Title = strings.TrimSpace(*req.Title)
	}
	if req.StartTime != nil {
		p.StartTime = req.StartTime.UTC()
	}
	if req.EndTime != nil {
		p.EndTime = req.EndTime.UTC()
	}
	if req.ColorSlot != nil {
		p.SetColorSlot(color.Slot(*req.ColorSlot))
	}
	if req.RecurrenceLabel != nil {
		p.RecurrenceLabel = strings.TrimSpace(*req.RecurrenceLabel)
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.Location != nil {
		p.Location = strings.TrimSpace(*req.Location)
	}
}

// Focus marks a proposal as being edited.
func (s *ProposalService) Focus(ctx context.Context, tenantID, sessionID, proposalID string) error {
	sess, err := s.sessions.lookup(tenantID, sessionID)
	if err != nil {
		return err
	}
	return sess.machine.Focus(proposalID)
}

// Blur clears the editing mark.
func (s *ProposalService) Blur(ctx context.Context, tenantID, sessionID, proposalID string) error {
	sess, err := s.sessions.lookup(tenantID, sessionID)
	if err != nil {
		return err
	}
	return sess.machine.Blur(proposalID)
}

// Accept asks for confirmation of a proposal.
func (s *ProposalService) Accept(ctx context.Context, tenantID, sessionID, proposalID string) (*review.Prompt, error) {
	sess, err := s.sessions.lookup(tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	prompt, err := sess.machine.RequestAccept(proposalID)
	if err != nil {
		return nil, err
	}
	return &prompt, nil
}

// Confirm commits the proposal awaiting confirmation.
func (s *ProposalService) Confirm(ctx context.Context, tenantID, sessionID string) (*review.Outcome, error) {
	sess, err := s.sessions.lookup(tenantID, sessionID)
	if err != nil {
		return nil, err
	}

	ctx, span := tracing.Tracer("service").Start(ctx, "service.Confirm")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	out, err := sess.machine.Confirm(ctx)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("calendar.action", string(out.Action.Action)),
		attribute.Bool("committed", out.Committed),
	)
	if !out.Committed {
		span.SetStatus(codes.Error, out.Error)
	}
	return &out, nil
}

// Cancel dismisses the pending confirmation.
func (s *ProposalService) Cancel(ctx context.Context, tenantID, sessionID string) error {
	sess, err := s.sessions.lookup(tenantID, sessionID)
	if err != nil {
		return err
	}
	return sess.machine.CancelAccept()
}

// Reject discards a proposal. Rejecting an id that is no longer queued is
// not an error; the boolean reports whether anything was discarded.
func (s *ProposalService) Reject(ctx context.Context, tenantID, sessionID, proposalID string) (*model.ChatEntry, bool, error) {
	sess, err := s.sessions.lookup(tenantID, sessionID)
	if err != nil {
		return nil, false, err
	}
	entry, ok := sess.machine.Reject(ctx, proposalID)
	if !ok {
		return nil, false, nil
	}
	return &entry, true, nil
}

// ICS renders a queued proposal as an iCalendar document.
func (s *ProposalService) ICS(ctx context.Context, tenantID, sessionID, proposalID string) (string, error) {
	sess, err := s.sessions.lookup(tenantID, sessionID)
	if err != nil {
		return "", err
	}
	p, ok := sess.machine.Queue().Get(proposalID)
	if !ok {
		return "", review.ErrProposalNotFound
	}
	return ics.Export([]proposal.Proposal{p}, s.sessions.now()), nil
}
