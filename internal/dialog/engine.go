// Package dialog implements the multi-case conversation state machine: it
// drives one turn against a persisted session, asks at most one question
// and finalizes tickets once every required field is known.
package dialog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/rail-support-bot/internal/model"
	"github.com/capitalize-ai/rail-support-bot/internal/nlu"
	"github.com/capitalize-ai/rail-support-bot/pkg/logger"
)

// Engine runs conversation turns. It holds no per-conversation state;
// turns for the same key must be serialized by the caller.
type Engine struct {
	store    Store
	analyzer *nlu.Analyzer
	logger   *logger.Logger
	now      func() time.Time
}

// NewEngine creates a new dialog engine.
func NewEngine(store Store, analyzer *nlu.Analyzer, log *logger.Logger) *Engine {
	return &Engine{
		store:    store,
		analyzer: analyzer,
		logger:   log,
		now:      time.Now,
	}
}

// HandleTurn processes one inbound message. Any store error aborts the turn
// and is returned; in that case no ticket must be reported to the user.
func (e *Engine) HandleTurn(ctx context.Context, in model.TurnInput) (*model.TurnResult, error) {
	sess, err := e.store.GetSession(ctx, in.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if sess == nil {
		sess = model.NewSession()
	}

	res := e.analyzer.Analyze(in.Text, nlu.Context{
		PendingSlots: sess.Pending.Slots,
		Moderation:   sess.Moderation,
	})
	result := &model.TurnResult{
		Intents:      res.Intents,
		MeaningScore: res.MeaningScore,
		Tone:         res.Tone,
	}

	if res.Reset {
		if err := e.store.ResetSession(ctx, in.Key); err != nil {
			return nil, fmt.Errorf("failed to reset session: %w", err)
		}
		result.Reset = true
		result.Reply = model.BotReply{Text: resetText}
		result.Phase = model.PhaseNoCase
		return result, nil
	}

	if err := e.store.AddMessage(ctx, e.inboundRecord(in)); err != nil {
		return nil, fmt.Errorf("failed to log inbound message: %w", err)
	}

	sess.Moderation = res.Moderation
	raw := strings.TrimSpace(in.Text)

	var reply model.BotReply
	switch {
	case res.GreetingOnly:
		sess.Pending = model.Pending{}
		reply = model.BotReply{Text: menuText}

	case res.MeaningScore < nlu.MeaningThreshold && !sess.Pending.Active():
		reply = model.BotReply{Text: clarifyText}

	default:
		if sess.Pending.Active() && e.fillPending(sess, res, raw) {
			sess.Pending = model.Pending{}
		}
		mergeShared(&sess.Shared, res)
		result.OpenedCases = openCases(sess, res.Intents)
		e.captureFreeText(sess, res, raw)
		propagateShared(sess)

		reply, result.Tickets, err = e.nextStep(ctx, in, sess, res.Angry)
		if err != nil {
			return nil, err
		}
	}

	sess.LastBot = model.LastBot{Text: reply.Text, AskedSlots: reply.AskedSlots}
	if err := e.store.UpsertSession(ctx, in.Key, sess); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	result.Reply = reply
	result.Phase = sess.Phase()

	e.logger.Debug("turn processed",
		zap.String("conversation_key", in.Key),
		zap.String("phase", string(result.Phase)),
		zap.Int("meaning_score", res.MeaningScore),
		zap.String("score_rule", res.ScoreRule),
		zap.String("tone", string(res.Tone)),
		zap.Int("intents", len(res.Intents)),
		zap.Int("tickets", len(result.Tickets)),
	)

	return result, nil
}

// turnTime is the channel timestamp of the message, or now when the channel
// sent none.
func (e *Engine) turnTime(in model.TurnInput) time.Time {
	if in.Chat.Timestamp.IsZero() {
		return e.now().UTC()
	}
	return in.Chat.Timestamp
}

func (e *Engine) inboundRecord(in model.TurnInput) *model.MessageRecord {
	return &model.MessageRecord{
		ConversationKey: in.Key,
		ChatID:          in.Chat.ChatID,
		ChannelID:       in.Chat.ChannelID,
		ChatType:        in.Chat.ChatType,
		Direction:       model.DirectionIn,
		Text:            in.Text,
		Timestamp:       e.turnTime(in),
		RawPayload:      in.Chat.RawPayload,
	}
}
