package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/rail-support-bot/internal/middleware"
	"github.com/capitalize-ai/rail-support-bot/pkg/metrics"
)

const (
	streamBatchSize   = 50
	heartbeatInterval = 30 * time.Second
)

// ReplayCompleteEvent marks the end of the ticket replay.
type ReplayCompleteEvent struct {
	LastSequence uint64 `json:"last_sequence"`
	TicketCount  int    `json:"ticket_count"`
}

// HeartbeatEvent keeps idle streams open.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// ErrorEvent reports a failure on an open stream.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Stream handles GET /api/v1/sessions/{key}/stream
// Replays the ticket events of a conversation, then pushes new ones as
// they are created. Supports ?after_sequence=N for resuming.
func (h *SessionHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := chi.URLParam(r, "key")

	if err := middleware.ValidateConversationKey(key); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if h.tickets == nil {
		writeError(w, http.StatusServiceUnavailable, "event stream disabled")
		return
	}

	var afterSequence uint64
	if seqStr := r.URL.Query().Get("after_sequence"); seqStr != "" {
		if seq, err := strconv.ParseUint(seqStr, 10, 64); err == nil {
			afterSequence = seq
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Streams outlive the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	log := h.logger.With(zap.String("conversation_key", key))

	sendSSEEvent(w, flusher, "connected", map[string]string{
		"conversation_key": key,
	})

	cursor, replayed, err := h.pushTickets(ctx, w, flusher, key, afterSequence)
	if err != nil {
		log.Error("failed to replay tickets", zap.Error(err))
		sendSSEEvent(w, flusher, "error", &ErrorEvent{
			Code:    "replay_error",
			Message: "Failed to replay tickets",
		})
		return
	}

	sendSSEEvent(w, flusher, "replay_complete", &ReplayCompleteEvent{
		LastSequence: cursor,
		TicketCount:  replayed,
	})
	log.Debug("ticket replay complete", zap.Int("tickets", replayed), zap.Uint64("last_sequence", cursor))

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
			sendSSEEvent(w, flusher, "heartbeat", &HeartbeatEvent{
				Timestamp: time.Now().UTC(),
			})

		case <-poll.C:
			next, _, err := h.pushTickets(ctx, w, flusher, key, cursor)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Warn("failed to poll tickets", zap.Error(err))
				sendSSEEvent(w, flusher, "error", &ErrorEvent{
					Code:    "poll_error",
					Message: "Failed to read new tickets",
				})
				return
			}
			cursor = next
		}
	}
}

// pushTickets sends every ticket after the cursor and returns the new
// cursor and how many were sent.
func (h *SessionHandler) pushTickets(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, key string, after uint64) (uint64, int, error) {
	sent := 0
	for {
		events, last, err := h.tickets.Tickets(ctx, key, after, streamBatchSize)
		if err != nil {
			return after, sent, err
		}
		for _, ev := range events {
			if ctx.Err() != nil {
				return after, sent, ctx.Err()
			}
			sendSSEEvent(w, flusher, "ticket", ev)
			sent++
		}
		if last > after {
			after = last
		}
		if len(events) < streamBatchSize {
			return after, sent, nil
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()

	return nil
}
