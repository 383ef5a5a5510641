package service

import (
	"strconv"
	"strings"

	"github.com/capitalize-ai/rail-support-bot/internal/model"
)

// OpsSummary renders the operator notification for a created ticket.
func OpsSummary(ev *model.TicketEvent) string {
	var b strings.Builder
	line := func(label, value string) {
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteByte('\n')
	}
	optional := func(label, value string) {
		if value != "" {
			line(label, value)
		}
	}
	orDash := func(v string) string {
		if v == "" {
			return "-"
		}
		return v
	}

	p := ev.Payload
	line("New ticket", ev.TicketID)
	line("Type", ev.CaseType.Title())

	b.WriteString("\nSource\n")
	line("channelId", orDash(ev.ChannelID))
	line("chatId", orDash(ev.ChatID))
	line("chatType", orDash(ev.ChatType))

	car := ""
	if p.Shared.CarNumber > 0 {
		car = strconv.Itoa(p.Shared.CarNumber)
	}
	b.WriteString("\nTrip\n")
	line("Train", orDash(p.Shared.Train))
	line("Car", orDash(car))
	optional("Where", p.Slots.Place)
	optional("When", p.Slots.When)

	b.WriteString("\nDetails\n")
	switch ev.CaseType {
	case model.CaseLostAndFound:
		line("Item", orDash(p.Slots.Item))
		optional("Description", p.Slots.ItemDetails)
	case model.CaseComplaint:
		line("Complaint", orDash(p.Slots.ComplaintText))
	case model.CaseGratitude:
		optional("Staff", p.Slots.StaffName)
		line("Gratitude", orDash(p.Slots.GratitudeText))
	}

	return strings.TrimSpace(b.String())
}
