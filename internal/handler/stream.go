package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/calendar-agent/internal/middleware"
	"github.com/capitalize-ai/calendar-agent/internal/service"
	"github.com/capitalize-ai/calendar-agent/pkg/logger"
	"github.com/capitalize-ai/calendar-agent/pkg/metrics"
)

const (
	replayBatch       = 50
	heartbeatInterval = 30 * time.Second
)

// StreamHandler serves a session's activity log as server-sent events.
type StreamHandler struct {
	sessions     *service.SessionService
	pollInterval time.Duration
	logger       *logger.Logger
}

// NewStreamHandler creates a new stream handler. New entries are picked up
// every pollInterval.
func NewStreamHandler(sessions *service.SessionService, pollInterval time.Duration, log *logger.Logger) *StreamHandler {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &StreamHandler{
		sessions:     sessions,
		pollInterval: pollInterval,
		logger:       log,
	}
}

// ReplayCompleteEvent marks the end of the backlog.
type ReplayCompleteEvent struct {
	LastSequence uint64 `json:"last_sequence"`
	EntryCount   int    `json:"entry_count"`
}

// HeartbeatEvent keeps idle connections open.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// Stream handles GET /api/v1/sessions/{id}/activity/stream
// Supports ?after_sequence=N for resuming from a specific point
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)
	sessionID, _, ok := ids(w, r, false)
	if !ok {
		return
	}

	// Verify session exists and belongs to tenant
	if _, err := h.sessions.Get(ctx, tenantID, sessionID); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	log := h.logger.WithSession(sessionID)

	sendSSEEvent(w, flusher, "connected", map[string]string{
		"session_id": sessionID,
	})

	cursor := queryUint(r, "after_sequence")
	replayed, err := h.drain(w, r, flusher, tenantID, sessionID, &cursor)
	if err != nil {
		log.Error("failed to replay activity", zap.Error(err))
		sendSSEEvent(w, flusher, "error", map[string]string{
			"code":    "replay_error",
			"message": "Failed to replay activity",
		})
		return
	}

	sendSSEEvent(w, flusher, "replay_complete", &ReplayCompleteEvent{
		LastSequence: cursor,
		EntryCount:   replayed,
	})

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	poll := time.NewTicker(h.pollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("SSE client disconnected")
			return

		case <-heartbeat.C:
			sendSSEEvent(w, flusher, "heartbeat", &HeartbeatEvent{Timestamp: time.Now().UTC()})

		case <-poll.C:
			if _, err := h.drain(w, r, flusher, tenantID, sessionID, &cursor); err != nil {
				// The session was evicted or the log is unavailable.
				sendSSEEvent(w, flusher, "error", map[string]string{
					"code":    "stream_closed",
					"message": err.Error(),
				})
				return
			}
		}
	}
}

// drain sends every entry after *cursor and advances it.
func (h *StreamHandler) drain(w http.ResponseWriter, r *http.Request, flusher http.Flusher, tenantID, sessionID string, cursor *uint64) (int, error) {
	sent := 0
	for {
		resp, err := h.sessions.Activity(r.Context(), tenantID, sessionID, *cursor, replayBatch)
		if err != nil {
			return sent, err
		}

		for _, entry := range resp.Entries {
			if err := r.Context().Err(); err != nil {
				return sent, nil
			}
			sendSSEEvent(w, flusher, "entry", entry)
			*cursor = entry.Sequence
			sent++
		}

		if !resp.HasMore || len(resp.Entries) == 0 {
			return sent, nil
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()

	return nil
}
