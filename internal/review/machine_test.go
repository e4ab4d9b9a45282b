package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/capitalize-ai/calendar-agent/internal/activity"
	"github.com/capitalize-ai/calendar-agent/internal/calendar"
	"github.com/capitalize-ai/calendar-agent/internal/model"
	"github.com/capitalize-ai/calendar-agent/internal/proposal"
	"github.com/capitalize-ai/calendar-agent/pkg/logger"
)

type fakeSink struct {
	mu       sync.Mutex
	requests []model.CommitRequest
	err      error

	// queueLen, when set, records the queue length seen during the call.
	queue    *proposal.Queue
	queueLen int

	// during runs inside Commit with the context the sink received.
	during func(ctx context.Context) error
}

func (f *fakeSink) Commit(ctx context.Context, req model.CommitRequest) (*model.CommitResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.during != nil {
		if err := f.during(ctx); err != nil {
			return nil, err
		}
	}
	if f.queue != nil {
		f.queueLen = f.queue.Len()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &model.CommitResponse{Success: true}, nil
}

type fixture struct {
	machine *Machine
	queue   *proposal.Queue
	log     *activity.Memory
	sink    *fakeSink
	logs    *observer.ObservedLogs
	factory *proposal.Factory
}

func newFixture(t *testing.T, restore bool) *fixture {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	f := &fixture{
		queue: proposal.NewQueue(),
		log:   activity.NewMemory(),
		logs:  logs,
		factory: proposal.NewFactory(
			proposal.WithClock(func() time.Time { return time.Date(2025, 11, 24, 9, 0, 0, 0, time.UTC) }),
			proposal.WithIDSource(func(i int) string { return fmt.Sprintf("p-%d", i) }),
		),
	}
	f.sink = &fakeSink{queue: f.queue}
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		ny = time.FixedZone("EST", -5*3600)
	}
	f.machine = New(Config{
		SessionID:        "s1",
		CalendarID:       "me@example.com",
		Location:         ny,
		RestoreOnFailure: restore,
	}, f.queue, f.log, f.sink, logger.Wrap(zap.New(core)))
	return f
}

func (f *fixture) draft(t *testing.T, params ...string) []proposal.Proposal {
	t.Helper()
	raws := make([]model.RawAction, len(params))
	for i, p := range params {
		raws[i] = model.RawAction{Action: model.ActionCreateEvent, Params: json.RawMessage(p)}
	}
	actions, _ := model.DecodeActions(raws)
	return f.factory.FromActions(actions)
}

func (f *fixture) entries(t *testing.T) []model.ChatEntry {
	t.Helper()
	entries, _, _, err := f.log.List(context.Background(), "s1", 0, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	return entries
}

func TestEnqueueMessages(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	entry := f.machine.Enqueue(ctx, f.draft(t, `{"title":"Dentist"}`))
	want := `I've drafted "Dentist" for you. Please review the card above and accept or reject it.`
	if entry.Content != want || entry.Kind != model.ChatSystem {
		t.Errorf("single entry = %+v", entry)
	}

	entry = f.machine.Enqueue(ctx, f.draft(t, `{"title":"a"}`, `{"title":"b"}`, `{"title":"c"}`))
	if entry.Content != "I've drafted 3 events for you. Please review the cards above." {
		t.Errorf("batch entry = %q", entry.Content)
	}

	entry = f.machine.Enqueue(ctx, nil)
	if !strings.HasPrefix(entry.Content, "I couldn't understand that request.") {
		t.Errorf("empty entry = %q", entry.Content)
	}

	if s, _ := f.machine.State("p-0"); s != StateDraft {
		t.Errorf("state = %q", s)
	}
}

func TestAcceptFlowCommitsFirstProposal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.machine.Enqueue(ctx, f.draft(t,
		`{"title":"Lunch","startTime":"2025-11-25T17:00:00.000Z","endTime":"2025-11-25T18:00:00.000Z","color":"GREEN"}`,
		`{"title":"Gym"}`,
	))

	top := f.queue.Top(3)
	if len(top) != 2 || top[0].Title != "Lunch" || top[1].Title != "Gym" {
		t.Fatalf("Top(3) = %+v", top)
	}

	prompt, err := f.machine.RequestAccept(top[0].ID)
	if err != nil {
		t.Fatalf("RequestAccept: %v", err)
	}
	if prompt.Title != "Lunch" || prompt.Date != "11/25/2025" || prompt.Time != "12:00 PM - 1:00 PM" {
		t.Errorf("prompt = %+v", prompt)
	}
	if f.queue.Len() != 2 {
		t.Fatal("accept request must not remove the proposal")
	}
	if s, _ := f.machine.State(top[0].ID); s != StatePendingConfirm {
		t.Errorf("state = %q", s)
	}

	out, err := f.machine.Confirm(ctx)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if !out.Committed {
		t.Fatalf("outcome = %+v", out)
	}
	if f.sink.queueLen != 1 {
		t.Errorf("proposal should leave the queue before the sink call, saw len %d", f.sink.queueLen)
	}
	if f.queue.Len() != 1 || f.queue.Top(1)[0].Title != "Gym" {
		t.Errorf("queue after confirm = %+v", f.queue.Top(3))
	}

	req := f.sink.requests[0]
	if req.CalendarID != "me@example.com" || req.Action != model.ActionCreateEvent {
		t.Errorf("request = %+v", req)
	}
	params := req.Params.(model.CommitParams)
	if params.Title != "Lunch" || params.StartTime != "2025-11-25T17:00:00.000Z" || params.Color != "GREEN" || params.Recurrence != nil {
		t.Errorf("params = %+v", params)
	}

	if out.Entry.Kind != model.ChatSuccess || out.Entry.Content != `Success: "Lunch" added to me@example.com` {
		t.Errorf("entry = %+v", out.Entry)
	}
	if s, _ := f.machine.State(top[0].ID); s != StateCommitted {
		t.Errorf("state = %q", s)
	}
}

func TestConfirmStructuredRecurrenceOutranksLabel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.machine.Enqueue(ctx, f.draft(t, `{"title":"Sync","recurrence":{"type":"weekly","days":["MONDAY"]}}`))

	if _, err := f.machine.Edit("p-0", func(p *proposal.Proposal) { p.RecurrenceLabel = "Daily" }); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if _, err := f.machine.RequestAccept("p-0"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.machine.Confirm(ctx); err != nil {
		t.Fatal(err)
	}

	req := f.sink.requests[0]
	if req.Action != model.ActionCreateEventSeries {
		t.Errorf("action = %q", req.Action)
	}
	rec := req.Params.(model.CommitParams).Recurrence
	if rec == nil || rec.Type != model.RecurrenceWeekly || rec.Days[0] != model.Monday {
		t.Errorf("recurrence = %+v", rec)
	}
}

func TestConfirmFailureDropsProposal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.sink.err = &calendar.RejectedError{Detail: "Calendar not found"}
	f.machine.Enqueue(ctx, f.draft(t, `{"title":"Lunch"}`))

	_, _ = f.machine.RequestAccept("p-0")
	out, err := f.machine.Confirm(ctx)
	if err != nil {
		t.Fatalf("sink failures must not surface as errors: %v", err)
	}
	if out.Committed || out.Restored {
		t.Errorf("outcome = %+v", out)
	}
	if out.Entry.Kind != model.ChatError || out.Entry.Content != "Error creating event: Calendar not found" {
		t.Errorf("entry = %+v", out.Entry)
	}
	if f.queue.Len() != 0 {
		t.Error("failed proposal must not be restored by default")
	}
	if f.logs.FilterMessage("commit failed").Len() != 1 {
		t.Error("expected a commit failure log line")
	}
}

func TestConfirmSurvivesCallerCancel(t *testing.T) {
	f := newFixture(t, false)
	f.machine.cfg.CommitTimeout = time.Minute
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.machine.Enqueue(ctx, f.draft(t, `{"title":"Review"}`))
	_, _ = f.machine.RequestAccept("p-0")

	var sinkErr error
	var hasDeadline bool
	f.sink.during = func(sinkCtx context.Context) error {
		// The client disconnects while the write is in flight.
		cancel()
		_, hasDeadline = sinkCtx.Deadline()
		sinkErr = sinkCtx.Err()
		return sinkErr
	}

	out, err := f.machine.Confirm(ctx)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if sinkErr != nil {
		t.Errorf("sink saw a cancelled context: %v", sinkErr)
	}
	if !hasDeadline {
		t.Error("commit context has no deadline")
	}
	if !out.Committed || out.Entry.Kind != model.ChatSuccess {
		t.Errorf("outcome = %+v", out)
	}
	if ctx.Err() == nil {
		t.Error("caller context should be cancelled")
	}
	if st, _ := f.machine.State("p-0"); st != StateCommitted {
		t.Errorf("state = %s", st)
	}
}

func TestConfirmBoundedByCommitTimeout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	f.machine.cfg.CommitTimeout = 20 * time.Millisecond
	f.sink.during = func(sinkCtx context.Context) error {
		<-sinkCtx.Done()
		return sinkCtx.Err()
	}

	f.machine.Enqueue(ctx, f.draft(t, `{"title":"Slow"}`))
	_, _ = f.machine.RequestAccept("p-0")

	out, err := f.machine.Confirm(ctx)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if out.Committed || !out.Restored || out.Error == "" {
		t.Errorf("outcome = %+v", out)
	}
	if f.queue.Len() != 1 {
		t.Errorf("queue len = %d, want restored proposal", f.queue.Len())
	}
}

func TestConfirmFailureRestoresWhenEnabled(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	f.sink.err = errors.New("timeout")
	f.machine.Enqueue(ctx, f.draft(t, `{"title":"a"}`, `{"title":"b"}`))

	_, _ = f.machine.RequestAccept("p-1")
	out, _ := f.machine.Confirm(ctx)
	if !out.Restored {
		t.Fatalf("outcome = %+v", out)
	}

	top := f.queue.Top(2)
	if len(top) != 2 || top[0].ID != "p-1" || top[0].LastError != "timeout" {
		t.Errorf("queue = %+v", top)
	}
	if s, _ := f.machine.State("p-1"); s != StateDraft {
		t.Errorf("state = %q", s)
	}
}

func TestConfirmNotConfiguredCarriesRemediation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.sink.err = calendar.ErrNotConfigured
	f.machine.Enqueue(ctx, f.draft(t, `{"title":"Lunch"}`))

	_, _ = f.machine.RequestAccept("p-0")
	out, _ := f.machine.Confirm(ctx)
	if !strings.Contains(out.Entry.Content, "Server Configuration Error") || !strings.Contains(out.Entry.Content, "APPS_SCRIPT_URL") {
		t.Errorf("entry = %q", out.Entry.Content)
	}
}

func TestRejectIsImmediateAndIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.machine.Enqueue(ctx, f.draft(t, `{"title":"Dentist"}`))

	entry, ok := f.machine.Reject(ctx, "p-0")
	if !ok || entry.Content != `Discarded "Dentist"` || entry.Kind != model.ChatSystem {
		t.Fatalf("Reject = %+v, %v", entry, ok)
	}
	before := len(f.entries(t))

	if _, ok := f.machine.Reject(ctx, "p-0"); ok {
		t.Error("second reject should be a no-op")
	}
	if len(f.entries(t)) != before {
		t.Error("second reject should not log")
	}
	if s, _ := f.machine.State("p-0"); s != StateDiscarded {
		t.Errorf("state = %q", s)
	}
	if len(f.sink.requests) != 0 {
		t.Error("reject must not reach the sink")
	}
}

func TestRejectWhilePendingClosesPrompt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.machine.Enqueue(ctx, f.draft(t, `{"title":"a"}`))

	_, _ = f.machine.RequestAccept("p-0")
	f.machine.Reject(ctx, "p-0")

	if _, err := f.machine.Confirm(ctx); !errors.Is(err, ErrNothingPending) {
		t.Fatalf("Confirm after reject = %v", err)
	}
}

func TestSecondAcceptReplacesPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.machine.Enqueue(ctx, f.draft(t, `{"title":"a"}`, `{"title":"b"}`))

	_, _ = f.machine.RequestAccept("p-0")
	_, _ = f.machine.RequestAccept("p-1")

	if s, _ := f.machine.State("p-0"); s != StateDraft {
		t.Errorf("p-0 state = %q", s)
	}
	if id, ok := f.machine.Pending(); !ok || id != "p-1" {
		t.Errorf("pending = %q", id)
	}

	if err := f.machine.CancelAccept(); err != nil {
		t.Fatal(err)
	}
	if err := f.machine.CancelAccept(); !errors.Is(err, ErrNothingPending) {
		t.Errorf("second cancel = %v", err)
	}
	if f.queue.Len() != 2 {
		t.Error("cancel must keep both proposals")
	}
}

func TestFocusDoesNotBlockDecisions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.machine.Enqueue(ctx, f.draft(t, `{"title":"a"}`))

	if err := f.machine.Focus("p-0"); err != nil {
		t.Fatal(err)
	}
	if s, _ := f.machine.State("p-0"); s != StateEditing {
		t.Errorf("state = %q", s)
	}
	if _, err := f.machine.RequestAccept("p-0"); err != nil {
		t.Fatalf("accept while editing: %v", err)
	}
	if err := f.machine.Blur("p-0"); err != nil {
		t.Fatal(err)
	}
	if s, _ := f.machine.State("p-0"); s != StatePendingConfirm {
		t.Errorf("blur must not clear a pending accept, state = %q", s)
	}
	if err := f.machine.Focus("missing"); !errors.Is(err, ErrProposalNotFound) {
		t.Errorf("Focus(missing) = %v", err)
	}
}

func TestEditMissingProposal(t *testing.T) {
	f := newFixture(t, false)
	if _, err := f.machine.Edit("gone", func(*proposal.Proposal) {}); !errors.Is(err, ErrProposalNotFound) {
		t.Fatalf("Edit = %v", err)
	}
	if _, err := f.machine.RequestAccept("gone"); !errors.Is(err, ErrProposalNotFound) {
		t.Fatalf("RequestAccept = %v", err)
	}
}

func TestLookupSendsRawParams(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	action, _ := model.DecodeAction(model.RawAction{
		Action: model.ActionGetEventsForDay,
		Params: json.RawMessage(`{"date":"2025-11-24"}`),
	})

	out := f.machine.Lookup(ctx, action)
	if !out.Committed || out.Entry.Content != "Fetched events for 2025-11-24" {
		t.Errorf("outcome = %+v", out)
	}
	raw, ok := f.sink.requests[0].Params.(json.RawMessage)
	if !ok || string(raw) != `{"date":"2025-11-24"}` {
		t.Errorf("params = %#v", f.sink.requests[0].Params)
	}
	if f.queue.Len() != 0 {
		t.Error("lookups are never queued")
	}
}
