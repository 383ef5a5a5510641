package dialog

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/capitalize-ai/rail-support-bot/internal/model"
)

// nextStep decides the single bot action for the turn. Branches are
// evaluated in priority order:
//
//  1. no cases: the open menu
//  2. a collecting case lacks train or car: the combined train/car question
//  3. every complete case without a ticket is finalized, even when another
//     case still needs a question
//  4. the first incomplete case in [lost_and_found, complaint, gratitude]
//     gets its bundle question; ticket lines from step 3 come first and the
//     question is the last line of the reply
//  5. tickets without a follow-up question: the ticket lines
//  6. otherwise a generic acknowledgement; when the conversation already has
//     a ticket the message is recorded against the latest one
func (e *Engine) nextStep(ctx context.Context, in model.TurnInput, sess *model.Session, angry bool) (model.BotReply, []model.CreatedTicket, error) {
	active := sess.Cases.Active()
	if len(active) == 0 {
		sess.Pending = model.Pending{}
		return model.BotReply{Text: menuText}, nil, nil
	}

	if targets := awaitingShared(active); len(targets) > 0 {
		slots := bundleSlots(model.BundleTrainCar)
		sess.Pending = model.Pending{Slots: slots, Bundle: model.BundleTrainCar, Targets: targets}
		return model.BotReply{Text: trainCarQuestion(targets, sess.Shared), AskedSlots: slots}, nil, nil
	}

	tickets, err := e.finalize(ctx, in.Key, sess, active)
	if err != nil {
		return model.BotReply{}, nil, err
	}

	var parts []string
	for _, t := range tickets {
		parts = append(parts, ticketLine(t))
	}

	for _, c := range active {
		if c.Done() || len(e.missingSlots(c)) == 0 {
			continue
		}
		bundle := caseBundles[c.Type]
		slots := bundleSlots(bundle)
		sess.Pending = model.Pending{Slots: slots, Bundle: bundle, Targets: []model.CaseType{c.Type}}
		parts = append(parts, bundleQuestion(bundle, angry))
		return model.BotReply{Text: joinReply(parts), AskedSlots: slots}, tickets, nil
	}

	if len(tickets) > 0 {
		sess.Pending = model.Pending{}
		return model.BotReply{Text: joinReply(parts)}, tickets, nil
	}

	if hasDone(active) {
		if err := e.appendFollowup(ctx, in); err != nil {
			return model.BotReply{}, nil, err
		}
	}
	return model.BotReply{Text: ackText}, nil, nil
}

func hasDone(active []*model.CaseState) bool {
	for _, c := range active {
		if c.Done() {
			return true
		}
	}
	return false
}

// appendFollowup records the message against the conversation's latest
// ticket. Session state is not touched.
func (e *Engine) appendFollowup(ctx context.Context, in model.TurnInput) error {
	f := &model.CaseFollowup{
		ConversationKey: in.Key,
		Text:            strings.TrimSpace(in.Text),
		ChatID:          in.Chat.ChatID,
		ChannelID:       in.Chat.ChannelID,
		ChatType:        in.Chat.ChatType,
		CreatedAt:       e.turnTime(in),
	}
	if err := e.store.AppendFollowup(ctx, f); err != nil {
		return fmt.Errorf("failed to record followup: %w", err)
	}
	e.logger.Info("followup recorded",
		zap.String("conversation_key", in.Key),
		zap.String("ticket_id", f.TicketID),
	)
	return nil
}

// awaitingShared returns the collecting cases still missing train or car.
func awaitingShared(active []*model.CaseState) []model.CaseType {
	var out []model.CaseType
	for _, c := range active {
		if c.Done() {
			continue
		}
		if c.Slots.Train == "" || c.Slots.CarNumber == 0 {
			out = append(out, c.Type)
		}
	}
	return out
}

// finalize creates a ticket for every complete case that has none. A case
// that already carries a ticket id is never submitted again.
func (e *Engine) finalize(ctx context.Context, key string, sess *model.Session, active []*model.CaseState) ([]model.CreatedTicket, error) {
	var created []model.CreatedTicket
	for _, c := range active {
		if c.Done() || len(e.missingSlots(c)) > 0 {
			continue
		}
		payload := model.CasePayload{Type: c.Type, Shared: sess.Shared, Slots: c.Slots}
		ticketID, err := e.store.CreateCase(ctx, key, c.Type, payload)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s case: %w", c.Type, err)
		}
		c.MarkDone(ticketID)
		created = append(created, model.CreatedTicket{CaseType: c.Type, TicketID: ticketID, Payload: payload})

		e.logger.Info("ticket created",
			zap.String("conversation_key", key),
			zap.String("case_type", string(c.Type)),
			zap.String("ticket_id", ticketID),
		)
	}
	return created, nil
}
