package proposal

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/capitalize-ai/calendar-agent/internal/color"
	"github.com/capitalize-ai/calendar-agent/internal/model"
)

var fixedNow = time.Date(2025, 11, 24, 9, 30, 0, 0, time.UTC)

func newTestFactory() *Factory {
	return NewFactory(
		WithClock(func() time.Time { return fixedNow }),
		WithIDSource(func(i int) string { return fmt.Sprintf("p-%d", i) }),
	)
}

func decode(t *testing.T, kind model.ActionKind, params string) model.Action {
	t.Helper()
	action, ok := model.DecodeAction(model.RawAction{Action: kind, Params: json.RawMessage(params)})
	if !ok {
		t.Fatalf("DecodeAction(%s) rejected", kind)
	}
	return action
}

func TestFromActionDefaults(t *testing.T) {
	f := newTestFactory()
	p := f.FromAction(decode(t, model.ActionCreateEvent, `{}`), 0)

	if p.Duration() != 60*time.Minute {
		t.Errorf("duration = %v, want 60m", p.Duration())
	}
	if !p.StartTime.Equal(fixedNow) {
		t.Errorf("start = %v, want now", p.StartTime)
	}
	if p.ColorSlot != color.DefaultSlot {
		t.Errorf("slot = %q, want default", p.ColorSlot)
	}
	if p.Swatch != color.SwatchFor(color.DefaultSlot) {
		t.Errorf("swatch = %q", p.Swatch)
	}
	if p.Title != DefaultTitle {
		t.Errorf("title = %q", p.Title)
	}
	if p.Description != "" {
		t.Errorf("description = %q", p.Description)
	}
	if p.RecurrenceLabel != "Does not repeat" {
		t.Errorf("recurrence label = %q", p.RecurrenceLabel)
	}
	if p.SourceAction != model.ActionCreateEvent {
		t.Errorf("source action = %q", p.SourceAction)
	}
}

func TestFromActionCarriesFields(t *testing.T) {
	f := newTestFactory()
	p := f.FromAction(decode(t, model.ActionCreateEventSeries, `{
		"title": "Math class",
		"startTime": "2025-11-26T19:00:00.000Z",
		"endTime": "2025-11-26T20:30:00.000Z",
		"color": "CYAN",
		"description": "Room 4",
		"recurrence": {"type": "weekly", "days": ["MONDAY", "WEDNESDAY"], "interval": 1}
	}`), 3)

	if p.ID != "p-3" {
		t.Errorf("id = %q", p.ID)
	}
	if p.Title != "Math class" || p.Description != "Room 4" {
		t.Errorf("title/description = %q/%q", p.Title, p.Description)
	}
	if p.Duration() != 90*time.Minute {
		t.Errorf("duration = %v", p.Duration())
	}
	if p.ColorSlot != color.SlotBlue {
		t.Errorf("slot = %q", p.ColorSlot)
	}
	if p.RecurrenceLabel != "Weekly on Monday" {
		t.Errorf("label = %q", p.RecurrenceLabel)
	}
	if p.OriginalParams.Recurrence == nil || p.OriginalParams.Recurrence.Days[1] != "WEDNESDAY" {
		t.Errorf("original params lost recurrence: %+v", p.OriginalParams.Recurrence)
	}
	if len(p.OriginalParams.Raw) == 0 {
		t.Error("original raw params not retained")
	}
}

func TestFromActionRepairsEndBeforeStart(t *testing.T) {
	f := newTestFactory()
	p := f.FromAction(decode(t, model.ActionCreateEvent, `{
		"startTime": "2025-11-26T19:00:00Z",
		"endTime": "2025-11-26T18:00:00Z"
	}`), 0)
	if p.Duration() != DefaultDuration {
		t.Errorf("duration = %v", p.Duration())
	}
}

func TestFromActionMalformedFieldsAreDefaulted(t *testing.T) {
	f := newTestFactory()
	p := f.FromAction(decode(t, model.ActionCreateEvent, `{
		"title": 42,
		"startTime": "next tuesday",
		"color": ["RED"],
		"recurrence": "weekly"
	}`), 0)

	if p.Title != DefaultTitle {
		t.Errorf("title = %q", p.Title)
	}
	if !p.StartTime.Equal(fixedNow) {
		t.Errorf("start = %v", p.StartTime)
	}
	if p.ColorSlot != color.DefaultSlot {
		t.Errorf("slot = %q", p.ColorSlot)
	}
	if p.RecurrenceLabel != "Does not repeat" {
		t.Errorf("label = %q", p.RecurrenceLabel)
	}
}

func TestFromActionIdentityOnly(t *testing.T) {
	f := NewFactory(WithClock(func() time.Time { return fixedNow }))
	action := decode(t, model.ActionCreateEvent, `{"title": "Standup", "color": "GREEN"}`)

	a := f.FromAction(action, 0)
	b := f.FromAction(action, 1)

	if a.ID == b.ID {
		t.Fatalf("ids should differ, both %q", a.ID)
	}
	b.ID = a.ID
	if fmt.Sprintf("%+v", a) != fmt.Sprintf("%+v", b) {
		t.Errorf("proposals differ beyond id:\n%+v\n%+v", a, b)
	}
}

func TestFromActionsPreservesOrder(t *testing.T) {
	f := newTestFactory()
	ps := f.FromActions([]model.Action{
		decode(t, model.ActionCreateEvent, `{"title": "first"}`),
		decode(t, model.ActionCreateEvent, `{"title": "second"}`),
	})
	if len(ps) != 2 || ps[0].Title != "first" || ps[1].Title != "second" {
		t.Fatalf("unexpected order: %+v", ps)
	}
}

func TestQueue(t *testing.T) {
	f := newTestFactory()
	q := NewQueue()
	ps := f.FromActions([]model.Action{
		decode(t, model.ActionCreateEvent, `{"title": "a"}`),
		decode(t, model.ActionCreateEvent, `{"title": "b"}`),
		decode(t, model.ActionCreateEvent, `{"title": "a"}`),
	})
	q.EnqueueAll(ps)

	if q.Len() != 3 {
		t.Fatalf("len = %d, duplicates must be kept", q.Len())
	}

	top := q.Top(2)
	if len(top) != 2 || top[0].ID != "p-0" || top[1].ID != "p-1" {
		t.Fatalf("Top(2) = %+v", top)
	}
	top[0].Title = "mutated"
	if got, _ := q.Get("p-0"); got.Title != "a" {
		t.Error("Top must not expose queue storage")
	}
	if len(q.Top(10)) != 3 {
		t.Error("Top(n > len) should return everything")
	}
	if len(q.Top(0)) != 0 {
		t.Error("Top(0) should be empty")
	}

	removed, ok := q.Remove("p-1")
	if !ok || removed.Title != "b" {
		t.Fatalf("Remove = %+v, %v", removed, ok)
	}
	if _, ok := q.Remove("p-1"); ok {
		t.Error("second Remove should report absent")
	}
	if q.Len() != 2 {
		t.Errorf("len after double remove = %d", q.Len())
	}
}

func TestQueueReplace(t *testing.T) {
	f := newTestFactory()
	q := NewQueue()
	q.EnqueueAll(f.FromActions([]model.Action{decode(t, model.ActionCreateEvent, `{"title": "x"}`)}))

	updated, _ := q.Get("p-0")
	updated.ID = "ignored"
	updated.Title = "renamed"
	updated.ColorSlot = color.SlotRed

	if !q.Replace("p-0", updated) {
		t.Fatal("Replace returned false for present id")
	}
	got, ok := q.Get("p-0")
	if !ok {
		t.Fatal("replace must preserve id")
	}
	if got.Title != "renamed" {
		t.Errorf("title = %q", got.Title)
	}
	if got.Swatch != color.SwatchFor(color.SlotRed) {
		t.Errorf("swatch not re-derived: %q", got.Swatch)
	}

	if q.Replace("missing", updated) {
		t.Error("Replace of absent id should be a no-op")
	}
	if q.Len() != 1 {
		t.Errorf("len = %d", q.Len())
	}
}

func TestQueueCopiesAreIndependent(t *testing.T) {
	f := newTestFactory()
	q := NewQueue()
	q.EnqueueAll(f.FromActions([]model.Action{decode(t, model.ActionCreateEventSeries, `{
		"title": "Gym",
		"startTime": "2025-11-25T11:00:00.000Z",
		"recurrence": {"type": "weekly", "days": ["MONDAY", "WEDNESDAY"], "until": "2025-12-31T00:00:00.000Z"}
	}`)}))

	top := q.Top(1)
	top[0].OriginalParams.Recurrence.Days[0] = "FRIDAY"
	top[0].OriginalParams.Recurrence.Interval = 9
	*top[0].OriginalParams.StartTime = time.Time{}

	got, _ := q.Get("p-0")
	rec := got.OriginalParams.Recurrence
	if rec.Days[0] != "MONDAY" || rec.Interval == 9 {
		t.Errorf("Top shares recurrence with the queue: %+v", rec)
	}
	if got.OriginalParams.StartTime.IsZero() {
		t.Error("Top shares start time with the queue")
	}

	got.OriginalParams.Recurrence.Days = append(got.OriginalParams.Recurrence.Days[:0], "SUNDAY")
	*got.OriginalParams.Recurrence.Until = time.Time{}

	updated, _ := q.Update("p-0", func(p *Proposal) { p.Title = "Gym class" })
	updated.OriginalParams.Recurrence.Days[1] = "SATURDAY"

	again, _ := q.Get("p-0")
	rec = again.OriginalParams.Recurrence
	if len(rec.Days) != 2 || rec.Days[0] != "MONDAY" || rec.Days[1] != "WEDNESDAY" {
		t.Errorf("days = %v", rec.Days)
	}
	if rec.Until == nil || rec.Until.IsZero() {
		t.Errorf("until = %v", rec.Until)
	}
	if again.Title != "Gym class" {
		t.Errorf("title = %q", again.Title)
	}
}

func TestQueuePushFront(t *testing.T) {
	f := newTestFactory()
	q := NewQueue()
	ps := f.FromActions([]model.Action{
		decode(t, model.ActionCreateEvent, `{"title": "a"}`),
		decode(t, model.ActionCreateEvent, `{"title": "b"}`),
	})
	q.EnqueueAll(ps)

	first, _ := q.Remove("p-0")
	q.PushFront(first)
	q.PushFront(first)

	top := q.Top(3)
	if len(top) != 2 || top[0].ID != "p-0" {
		t.Fatalf("PushFront result = %+v", top)
	}
}

func TestToActionSingleOccurrence(t *testing.T) {
	f := newTestFactory()
	p := f.FromAction(decode(t, model.ActionCreateEvent, `{
		"title": "Lunch",
		"startTime": "2025-11-25T17:00:00.000Z",
		"endTime": "2025-11-25T18:00:00.000Z",
		"color": "PALE_GREEN"
	}`), 0)

	got := ToAction(p)
	if got.Action != model.ActionCreateEvent {
		t.Errorf("action = %q", got.Action)
	}
	want := model.CommitParams{
		Title:     "Lunch",
		StartTime: "2025-11-25T17:00:00.000Z",
		EndTime:   "2025-11-25T18:00:00.000Z",
		Color:     "GREEN",
	}
	if got.Params != want {
		t.Errorf("params = %+v, want %+v", got.Params, want)
	}
}

func TestToActionStructuredRecurrenceWins(t *testing.T) {
	f := newTestFactory()
	p := f.FromAction(decode(t, model.ActionCreateEvent, `{
		"title": "Sync",
		"recurrence": {"type": "weekly", "days": ["MONDAY"]}
	}`), 0)
	p.RecurrenceLabel = "Daily"

	got := ToAction(p)
	if got.Action != model.ActionCreateEventSeries {
		t.Fatalf("action = %q", got.Action)
	}
	rec := got.Params.Recurrence
	if rec == nil || rec.Type != model.RecurrenceWeekly || len(rec.Days) != 1 || rec.Days[0] != "MONDAY" {
		t.Fatalf("recurrence = %+v", rec)
	}
	rec.Days[0] = "SUNDAY"
	if p.OriginalParams.Recurrence.Days[0] != "MONDAY" {
		t.Error("ToAction must not alias the original recurrence")
	}
}

func TestToActionParsesEditedLabel(t *testing.T) {
	f := newTestFactory()
	p := f.FromAction(decode(t, model.ActionCreateAllDayEvent, `{"title": "Review"}`), 0)

	p.RecurrenceLabel = "Weekly on Fridays"
	got := ToAction(p)
	if got.Action != model.ActionCreateEventSeries {
		t.Errorf("action = %q", got.Action)
	}
	if got.Params.Recurrence == nil || got.Params.Recurrence.Days[0] != "FRIDAY" || got.Params.Recurrence.Interval != 1 {
		t.Errorf("recurrence = %+v", got.Params.Recurrence)
	}

	p.RecurrenceLabel = "Every other blue moon"
	got = ToAction(p)
	if got.Action != model.ActionCreateAllDayEvent {
		t.Errorf("unparseable label should keep source action, got %q", got.Action)
	}
	if got.Params.Recurrence != nil {
		t.Errorf("recurrence = %+v", got.Params.Recurrence)
	}
}

func TestToActionDefaultsMissingSourceAction(t *testing.T) {
	p := Proposal{Title: "x", StartTime: fixedNow, EndTime: fixedNow.Add(time.Hour), ColorSlot: "99"}
	got := ToAction(p)
	if got.Action != model.ActionCreateEvent {
		t.Errorf("action = %q", got.Action)
	}
	if got.Params.Color != "YELLOW" {
		t.Errorf("color = %q", got.Params.Color)
	}
}
