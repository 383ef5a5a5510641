package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/rail-support-bot/internal/middleware"
	"github.com/capitalize-ai/rail-support-bot/internal/model"
	"github.com/capitalize-ai/rail-support-bot/pkg/logger"
)

// SessionStore is the session access the ops API needs.
type SessionStore interface {
	GetSession(ctx context.Context, key string) (*model.Session, error)
	ResetSession(ctx context.Context, key string) error
}

// MessageLog lists logged messages of a conversation.
type MessageLog interface {
	ListMessages(ctx context.Context, key string, limit int) ([]model.MessageRecord, error)
}

// TicketFeed reads ticket events of a conversation from the event stream.
type TicketFeed interface {
	Tickets(ctx context.Context, conversationKey string, afterSequence uint64, limit int) ([]model.TicketEvent, uint64, error)
}

// SessionHandler handles session endpoints.
type SessionHandler struct {
	sessions SessionStore
	messages MessageLog
	tickets  TicketFeed
	logger   *logger.Logger

	pollInterval time.Duration
}

// NewSessionHandler creates a new session handler. tickets may be nil when
// the event stream is disabled.
func NewSessionHandler(sessions SessionStore, messages MessageLog, tickets TicketFeed, log *logger.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		messages: messages,
		tickets:  tickets,
		logger:   log,

		pollInterval: 5 * time.Second,
	}
}

// SessionResponse is the ops view of one conversation.
type SessionResponse struct {
	Key      string                `json:"key"`
	Phase    model.Phase           `json:"phase"`
	Session  *model.Session        `json:"session"`
	Messages []model.MessageRecord `json:"messages"`
}

// Get handles GET /api/v1/sessions/{key}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := chi.URLParam(r, "key")

	if err := middleware.ValidateConversationKey(key); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := h.sessions.GetSession(ctx, key)
	if err != nil {
		h.logger.Error("failed to load session", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if sess == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	msgs, err := h.messages.ListMessages(ctx, key, queryLimit(r, 20))
	if err != nil {
		h.logger.Error("failed to list messages", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	if msgs == nil {
		msgs = []model.MessageRecord{}
	}

	writeJSON(w, http.StatusOK, SessionResponse{
		Key:      key,
		Phase:    sess.Phase(),
		Session:  sess,
		Messages: msgs,
	})
}

// Reset handles DELETE /api/v1/sessions/{key}
func (h *SessionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := chi.URLParam(r, "key")

	if err := middleware.ValidateConversationKey(key); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.sessions.ResetSession(ctx, key); err != nil {
		h.logger.Error("failed to reset session", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to reset session")
		return
	}

	h.logger.Info("session reset by operator",
		zap.String("conversation_key", key),
		zap.String("operator_id", middleware.GetOperatorID(ctx)),
	)
	w.WriteHeader(http.StatusNoContent)
}

// TicketsResponse is a page of ticket events.
type TicketsResponse struct {
	Tickets      []model.TicketEvent `json:"tickets"`
	LastSequence uint64              `json:"last_sequence"`
}

// Tickets handles GET /api/v1/sessions/{key}/tickets
func (h *SessionHandler) Tickets(w http.ResponseWriter, r *http.Request) {
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

	afterSequence := uint64(0)
	if seq := r.URL.Query().Get("after_sequence"); seq != "" {
		if parsed, err := strconv.ParseUint(seq, 10, 64); err == nil {
			afterSequence = parsed
		}
	}

	events, last, err := h.tickets.Tickets(ctx, key, afterSequence, queryLimit(r, 50))
	if err != nil {
		h.logger.Error("failed to read ticket events", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read ticket events")
		return
	}
	if events == nil {
		events = []model.TicketEvent{}
	}

	writeJSON(w, http.StatusOK, TicketsResponse{Tickets: events, LastSequence: last})
}
