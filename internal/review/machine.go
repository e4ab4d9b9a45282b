// Package review drives a session's proposals from draft to a terminal
// decision: committed to the calendar or discarded.
package review

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/calendar-agent/internal/activity"
	"github.com/capitalize-ai/calendar-agent/internal/calendar"
	"github.com/capitalize-ai/calendar-agent/internal/model"
	"github.com/capitalize-ai/calendar-agent/internal/proposal"
	"github.com/capitalize-ai/calendar-agent/pkg/logger"
	"github.com/capitalize-ai/calendar-agent/pkg/metrics"
)

// State is a proposal's position in the review lifecycle.
type State string

const (
	StateDraft          State = "draft"
	StateEditing        State = "editing"
	StatePendingConfirm State = "pending_confirm"
	StateCommitted      State = "committed"
	StateDiscarded      State = "discarded"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateDiscarded
}

var (
	// ErrProposalNotFound is returned for ids that are not queued.
	ErrProposalNotFound = errors.New("proposal not found")

	// ErrNothingPending is returned when confirm or cancel has no target.
	ErrNothingPending = errors.New("no proposal is awaiting confirmation")
)

const (
	notUnderstoodMessage = `I couldn't understand that request. Please try a clearer format like "Meeting tomorrow at 2pm"`

	promptDateLayout = "1/2/2006"
	promptTimeLayout = "3:04 PM"
)

// Sink receives resolved calendar actions.
type Sink interface {
	Commit(ctx context.Context, req model.CommitRequest) (*model.CommitResponse, error)
}

// Config scopes a machine to one session.
type Config struct {
	SessionID  string
	CalendarID string
	Location   *time.Location

	// RestoreOnFailure puts a proposal whose commit failed back at the front
	// of the queue instead of dropping it.
	RestoreOnFailure bool

	// CommitTimeout bounds a confirmed commit. The commit outlives the
	// caller's context, so zero leaves it unbounded.
	CommitTimeout time.Duration
}

// Prompt is the confirmation shown between accept and confirm.
type Prompt struct {
	ProposalID string `json:"proposal_id"`
	Title      string `json:"title"`
	Date       string `json:"date"`
	Time       string `json:"time"`
}

// Outcome reports what a confirm or lookup did.
type Outcome struct {
	Proposal  *proposal.Proposal    `json:"proposal,omitempty"`
	Action    model.CommitAction    `json:"action"`
	Response  *model.CommitResponse `json:"response,omitempty"`
	Entry     model.ChatEntry       `json:"entry"`
	Committed bool                  `json:"committed"`
	Restored  bool                  `json:"restored"`
	Error     string                `json:"error,omitempty"`
}

// Machine owns the review lifecycle of one session's queue.
type Machine struct {
	cfg    Config
	queue  *proposal.Queue
	log    activity.Log
	sink   Sink
	logger *logger.Logger

	mu      sync.Mutex
	states  map[string]State
	pending string
}

// New creates a machine over queue. Chat entries go to log and confirmed
// proposals go to sink.
func New(cfg Config, queue *proposal.Queue, log activity.Log, sink Sink, l *logger.Logger) *Machine {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if l == nil {
		l = logger.Nop()
	}
	return &Machine{
		cfg:    cfg,
		queue:  queue,
		log:    log,
		sink:   sink,
		logger: l.WithSession(cfg.SessionID),
		states: make(map[string]State),
	}
}

// Queue returns the machine's queue.
func (m *Machine) Queue() *proposal.Queue {
	return m.queue
}

// State returns the current state of a proposal. Terminal states stay
// answerable after the proposal has left the queue.
func (m *Machine) State(id string) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[id]
	return s, ok
}

// Pending returns the id awaiting confirmation, if any.
func (m *Machine) Pending() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending, m.pending != ""
}

// Enqueue appends proposals in order and writes the drafted summary. An
// empty batch writes the not-understood fallback instead.
func (m *Machine) Enqueue(ctx context.Context, proposals []proposal.Proposal) model.ChatEntry {
	if len(proposals) == 0 {
		return m.write(ctx, model.ChatSystem, notUnderstoodMessage)
	}

	m.mu.Lock()
	m.queue.EnqueueAll(proposals)
	for _, p := range proposals {
		m.states[p.ID] = StateDraft
		metrics.ProposalsDrafted.WithLabelValues(string(p.SourceAction)).Inc()
	}
	m.mu.Unlock()

	m.logger.Info("proposals drafted", zap.Int("count", len(proposals)))

	if len(proposals) == 1 {
		return m.write(ctx, model.ChatSystem, fmt.Sprintf(
			"I've drafted %q for you. Please review the card above and accept or reject it.", proposals[0].Title))
	}
	return m.write(ctx, model.ChatSystem, fmt.Sprintf(
		"I've drafted %d events for you. Please review the cards above.", len(proposals)))
}

// Focus marks a proposal as being edited. It never blocks accept or reject.
func (m *Machine) Focus(id string) error {
	return m.annotate(id, StateDraft, StateEditing)
}

// Blur clears the editing annotation.
func (m *Machine) Blur(id string) error {
	return m.annotate(id, StateEditing, StateDraft)
}

func (m *Machine) annotate(id string, from, to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.queue.Get(id); !ok {
		return ErrProposalNotFound
	}
	if m.states[id] == from {
		m.states[id] = to
	}
	return nil
}

// Edit mutates a queued proposal in place.
func (m *Machine) Edit(id string, fn func(*proposal.Proposal)) (proposal.Proposal, error) {
	p, ok := m.queue.Update(id, fn)
	if !ok {
		return proposal.Proposal{}, ErrProposalNotFound
	}
	return p, nil
}

// RequestAccept moves a proposal to PendingConfirm and returns the prompt to
// show. The proposal stays queued. An earlier pending proposal returns to
// draft.
func (m *Machine) RequestAccept(id string) (Prompt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.queue.Get(id)
	if !ok {
		return Prompt{}, ErrProposalNotFound
	}

	if m.pending != "" && m.pending != id {
		m.states[m.pending] = StateDraft
	}
	m.pending = id
	m.states[id] = StatePendingConfirm

	return m.prompt(p), nil
}

func (m *Machine) prompt(p proposal.Proposal) Prompt {
	start := p.StartTime.In(m.cfg.Location)
	end := p.EndTime.In(m.cfg.Location)
	return Prompt{
		ProposalID: p.ID,
		Title:      p.Title,
		Date:       start.Format(promptDateLayout),
		Time:       start.Format(promptTimeLayout) + " - " + end.Format(promptTimeLayout),
	}
}

// CancelAccept dismisses the confirmation prompt.
func (m *Machine) CancelAccept() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pending == "" {
		return ErrNothingPending
	}
	if m.states[m.pending] == StatePendingConfirm {
		m.states[m.pending] = StateDraft
	}
	m.pending = ""
	return nil
}

// Confirm commits the pending proposal. It is removed from the queue before
// the sink is called. A sink failure is reported through the outcome and the
// chat log, never as an error.
func (m *Machine) Confirm(ctx context.Context) (Outcome, error) {
	m.mu.Lock()
	id := m.pending
	if id == "" {
		m.mu.Unlock()
		return Outcome{}, ErrNothingPending
	}
	m.pending = ""
	p, ok := m.queue.Remove(id)
	if !ok {
		m.mu.Unlock()
		return Outcome{}, ErrNothingPending
	}
	m.states[id] = StateCommitted
	m.mu.Unlock()

	metrics.ReviewDecisions.WithLabelValues("accept").Inc()

	action := proposal.ToAction(p)
	out := Outcome{Proposal: &p, Action: action}

	// The proposal has left the queue; a client that goes away must not
	// abort the write halfway.
	ctx, cancel := m.commitContext(ctx)
	defer cancel()

	resp, err := m.sink.Commit(ctx, model.CommitRequest{
		CalendarID: m.cfg.CalendarID,
		Action:     action.Action,
		Params:     action.Params,
	})
	out.Response = resp

	if err != nil {
		detail := FailureDetail(err)
		out.Error = detail
		m.logger.Warn("commit failed",
			zap.String("proposal_id", p.ID),
			zap.String("action", string(action.Action)),
			zap.Error(err),
		)
		if m.cfg.RestoreOnFailure {
			m.restore(p, detail)
			out.Restored = true
		}
		out.Entry = m.write(ctx, model.ChatError, "Error creating event: "+detail)
		return out, nil
	}

	out.Committed = true
	m.logger.Info("proposal committed",
		zap.String("proposal_id", p.ID),
		zap.String("action", string(action.Action)),
	)
	out.Entry = m.write(ctx, model.ChatSuccess, fmt.Sprintf("Success: %q added to %s", p.Title, m.cfg.CalendarID))
	return out, nil
}

func (m *Machine) commitContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if m.cfg.CommitTimeout > 0 {
		return context.WithTimeout(ctx, m.cfg.CommitTimeout)
	}
	return ctx, func() {}
}

func (m *Machine) restore(p proposal.Proposal, detail string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p.LastError = detail
	m.queue.PushFront(p)
	m.states[p.ID] = StateDraft
}

// Reject discards a queued proposal without confirmation. An absent id is a
// no-op and writes nothing.
func (m *Machine) Reject(ctx context.Context, id string) (model.ChatEntry, bool) {
	m.mu.Lock()
	p, ok := m.queue.Remove(id)
	if !ok {
		m.mu.Unlock()
		return model.ChatEntry{}, false
	}
	if m.pending == id {
		m.pending = ""
	}
	m.states[id] = StateDiscarded
	m.mu.Unlock()

	metrics.ReviewDecisions.WithLabelValues("reject").Inc()
	m.logger.Info("proposal discarded", zap.String("proposal_id", id))

	return m.write(ctx, model.ChatSystem, fmt.Sprintf("Discarded %q", p.Title)), true
}

// Lookup sends a read-only action straight to the sink and logs the result.
func (m *Machine) Lookup(ctx context.Context, action model.Action) Outcome {
	out := Outcome{Action: model.CommitAction{Action: action.Kind}}

	var params any = action.Params
	if len(action.Params.Raw) > 0 {
		params = action.Params.Raw
	}
	resp, err := m.sink.Commit(ctx, model.CommitRequest{
		CalendarID: m.cfg.CalendarID,
		Action:     action.Kind,
		Params:     params,
	})
	out.Response = resp

	day := action.Params.Date
	if day == "" && action.Params.StartTime != nil {
		day = action.Params.StartTime.In(m.cfg.Location).Format(promptDateLayout)
	}

	if err != nil {
		out.Error = FailureDetail(err)
		out.Entry = m.write(ctx, model.ChatError, "Error fetching events: "+out.Error)
		return out
	}

	out.Committed = true
	content := "Fetched events"
	if day != "" {
		content += " for " + day
	}
	out.Entry = m.write(ctx, model.ChatSuccess, content)
	return out
}

// FailureDetail renders a sink error for the chat log. Configuration
// failures carry remediation steps.
func FailureDetail(err error) string {
	if errors.Is(err, calendar.ErrNotConfigured) {
		return "Server Configuration Error: " + err.Error() + "\n\n" +
			"Please check:\n" +
			"1. Set APPS_SCRIPT_URL in the environment or the config file\n" +
			"2. Use the URL of your deployed Google Apps Script Web App\n" +
			"3. Restart the server after updating the configuration"
	}
	var rejected *calendar.RejectedError
	if errors.As(err, &rejected) {
		return rejected.Error()
	}
	return err.Error()
}

func (m *Machine) write(ctx context.Context, kind model.ChatKind, content string) model.ChatEntry {
	entry, err := activity.Write(ctx, m.log, m.cfg.SessionID, kind, content)
	if err != nil {
		m.logger.Error("failed to record activity", zap.String("kind", string(kind)), zap.Error(err))
	}
	return entry
}
