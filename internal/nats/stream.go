package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/capitalize-ai/calendar-agent/internal/model"
	"github.com/capitalize-ai/calendar-agent/pkg/logger"
	"github.com/capitalize-ai/calendar-agent/pkg/metrics"
)

const (
	// StreamName is the name of the activity stream.
	StreamName = "CALENDAR_ACTIVITY"

	// SubjectPrefix is the prefix for all activity subjects.
	SubjectPrefix = "cal"

	defaultFetchLimit = 100
)

// ActivityStream is a JetStream backed activity log. Entries are published
// on cal.<session>.activity.<kind> and read back with ephemeral pull
// consumers that are reused while a reader keeps tailing.
type ActivityStream struct {
	js     jetstream.JetStream
	maxAge time.Duration
	tails  *tailCache
	logger *logger.Logger
}

// NewActivityStream creates an activity log on the client's JetStream
// context. Entries older than maxAge are expired by the server.
func NewActivityStream(client *Client, maxAge time.Duration) *ActivityStream {
	return &ActivityStream{
		js:     client.JetStream(),
		maxAge: maxAge,
		tails:  newTailCache(tailIdle, maxTails),
		logger: client.logger,
	}
}

// EnsureStream creates the activity stream if it does not exist yet.
func (s *ActivityStream) EnsureStream(ctx context.Context) error {
	if _, err := s.js.Stream(ctx, StreamName); err == nil {
		return nil
	} else if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream: %w", err)
	}

	_, err := s.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{SubjectPrefix + ".*.activity.>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      s.maxAge,
		MaxBytes:    1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		DenyDelete:  true,
		Description: "Per-session calendar activity log",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	s.logger.Info("created activity stream", zap.String("stream", StreamName), zap.Duration("max_age", s.maxAge))
	return nil
}

// ActivitySubject returns the subject an entry is published on.
func ActivitySubject(sessionID string, kind model.ChatKind) string {
	return fmt.Sprintf("%s.%s.activity.%s", SubjectPrefix, sessionID, kind)
}

// SessionFilter returns the filter subject for every entry of a session.
func SessionFilter(sessionID string) string {
	return fmt.Sprintf("%s.%s.activity.>", SubjectPrefix, sessionID)
}

func validToken(s string) bool {
	return s != "" && !strings.ContainsAny(s, ".*> \t\r\n")
}

// Append implements activity.Log.
func (s *ActivityStream) Append(ctx context.Context, entry *model.ChatEntry) (uint64, error) {
	if !validToken(entry.SessionID) {
		return 0, fmt.Errorf("invalid session id %q", entry.SessionID)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal entry: %w", err)
	}

	ack, err := s.js.Publish(ctx, ActivitySubject(entry.SessionID, entry.Kind), data,
		jetstream.WithMsgID(entry.ID))
	if err != nil {
		return 0, fmt.Errorf("failed to publish entry: %w", err)
	}

	return ack.Sequence, nil
}

// List implements activity.Log. The consumer that served a page is parked
// at the last sequence it delivered, so a reader tailing the session reuses
// one consumer across calls.
func (s *ActivityStream) List(ctx context.Context, sessionID string, afterSequence uint64, limit int) ([]model.ChatEntry, uint64, bool, error) {
	if !validToken(sessionID) {
		return nil, 0, false, fmt.Errorf("invalid session id %q", sessionID)
	}
	if limit <= 0 {
		limit = defaultFetchLimit
	}

	s.retire(ctx, s.tails.prune()...)

	if consumer, ok := s.tails.take(tailKey{sessionID: sessionID, position: afterSequence}); ok {
		p, err := s.fetchPage(consumer, limit)
		if err == nil {
			s.park(ctx, sessionID, afterSequence, consumer, p)
			return p.entries, p.lastSequence, p.delivered == limit, nil
		}
		s.logger.Debug("parked consumer failed, recreating",
			zap.String("session_id", sessionID), zap.Error(err))
		s.retire(ctx, consumer)
	}

	consumerConfig := jetstream.ConsumerConfig{
		FilterSubject:     SessionFilter(sessionID),
		AckPolicy:         jetstream.AckNonePolicy,
		DeliverPolicy:     jetstream.DeliverAllPolicy,
		InactiveThreshold: consumerInactiveThreshold,
	}

	if afterSequence > 0 {
		consumerConfig.DeliverPolicy = jetstream.DeliverByStartSequencePolicy
		consumerConfig.OptStartSeq = afterSequence + 1
	}

	consumer, err := s.js.CreateConsumer(ctx, StreamName, consumerConfig)
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to create consumer: %w", err)
	}

	p, err := s.fetchPage(consumer, limit)
	if err != nil {
		s.retire(ctx, consumer)
		return nil, 0, false, err
	}
	s.park(ctx, sessionID, afterSequence, consumer, p)
	return p.entries, p.lastSequence, p.delivered == limit, nil
}

type page struct {
	entries      []model.ChatEntry
	lastSequence uint64

	// position is the last stream sequence delivered, malformed entries
	// included.
	position  uint64
	delivered int
}

// fetchPage reads what is already available without waiting for new
// entries.
func (s *ActivityStream) fetchPage(consumer jetstream.Consumer, limit int) (page, error) {
	batch, err := consumer.FetchNoWait(limit)
	if err != nil {
		return page{}, fmt.Errorf("failed to fetch entries: %w", err)
	}

	p := page{entries: make([]model.ChatEntry, 0, limit)}
	for msg := range batch.Messages() {
		p.delivered++

		meta, metaErr := msg.Metadata()
		if metaErr == nil {
			p.position = meta.Sequence.Stream
		}

		var entry model.ChatEntry
		if err := json.Unmarshal(msg.Data(), &entry); err != nil {
			s.logger.Warn("skipping malformed activity entry", zap.String("subject", msg.Subject()), zap.Error(err))
			continue
		}

		if metaErr == nil {
			entry.Sequence = meta.Sequence.Stream
			p.lastSequence = meta.Sequence.Stream
		}

		p.entries = append(p.entries, entry)
	}

	if err := batch.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, jetstream.ErrNoMessages) {
		return page{}, fmt.Errorf("batch error: %w", err)
	}

	return p, nil
}

func (s *ActivityStream) park(ctx context.Context, sessionID string, afterSequence uint64, consumer jetstream.Consumer, p page) {
	position := afterSequence
	if p.position > position {
		position = p.position
	}
	if displaced := s.tails.put(tailKey{sessionID: sessionID, position: position}, consumer); displaced != nil {
		s.retire(ctx, displaced)
	}
}

// retire deletes consumers that are no longer parked. Failures are left to
// the server's inactivity threshold.
func (s *ActivityStream) retire(ctx context.Context, consumers ...jetstream.Consumer) {
	for _, c := range consumers {
		info := c.CachedInfo()
		if info == nil {
			continue
		}
		deleteCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		err := s.js.DeleteConsumer(deleteCtx, StreamName, info.Name)
		cancel()
		if err != nil && !errors.Is(err, jetstream.ErrConsumerNotFound) {
			s.logger.Debug("failed to delete activity consumer", zap.String("consumer", info.Name), zap.Error(err))
		}
	}
}

// ReportMetrics records the stream's size.
func (s *ActivityStream) ReportMetrics(ctx context.Context) error {
	stream, err := s.js.Stream(ctx, StreamName)
	if err != nil {
		return fmt.Errorf("failed to look up stream: %w", err)
	}
	info, err := stream.Info(ctx)
	if err != nil {
		return fmt.Errorf("failed to read stream info: %w", err)
	}
	metrics.RecordStream(StreamName, info.State.Msgs, info.State.Bytes)
	return nil
}
