package dialog

import (
	"fmt"
	"strings"

	"github.com/capitalize-ai/rail-support-bot/internal/model"
)

const (
	menuText = "Hello! I am the railway passenger support assistant. I can help you:\n" +
		"1. File a complaint\n" +
		"2. Find an item left on the train\n" +
		"3. Pass your gratitude to the staff\n" +
		"Please describe what happened in one message."

	resetText = "Your previous request has been cleared. Let's start over.\n\n" + menuText

	clarifyText = "Sorry, I did not quite understand. Please tell me what happened: " +
		"a complaint, a lost item or gratitude to the staff, and the train and car number if you know them."

	ackText = "Thank you, your request has been registered. If you want to add something, just write it here."

	lostQuestion = "To search for your item, please send in one message: " +
		"1) where in the car you left it (seat, compartment, shelf, vestibule), " +
		"2) what the item is and how it looks, " +
		"3) roughly when you left it."

	lostQuestionShort = "Where in the car, what exactly and when? For example: seat 12, black bag, yesterday 14:30."

	complaintQuestion = "Please describe what happened in one message: what went wrong and, if possible, when."

	gratitudeQuestion = "Who would you like to thank and what for? " +
		"Please send the staff member's name or position and a few words in one message."
)

var trainCarPrefix = map[model.CaseType]string{
	model.CaseComplaint:    "To file your complaint",
	model.CaseLostAndFound: "To help find your item",
	model.CaseGratitude:    "To pass on your gratitude",
}

// trainCarQuestion asks for the shared trip details on behalf of the first
// targeted case.
func trainCarQuestion(targets []model.CaseType, shared model.SharedSlots) string {
	prefix := "To continue"
	if len(targets) > 0 {
		prefix = trainCarPrefix[targets[0]]
	}
	switch {
	case shared.Train == "" && shared.CarNumber == 0:
		return prefix + ", please send the train number and car number in one message (for example: T58, car 7)."
	case shared.Train == "":
		return prefix + ", please send the train number (for example: T58)."
	default:
		return prefix + ", please send the car number (for example: car 7)."
	}
}

func bundleQuestion(b model.Bundle, angry bool) string {
	switch b {
	case model.BundleLost:
		if angry {
			return lostQuestionShort
		}
		return lostQuestion
	case model.BundleComplaintText:
		return complaintQuestion
	case model.BundleGratitude:
		return gratitudeQuestion
	}
	return clarifyText
}

func ticketLine(t model.CreatedTicket) string {
	return fmt.Sprintf("%s registered. Ticket number: %s.", t.CaseType.Title(), t.TicketID)
}

func joinReply(parts []string) string {
	return strings.Join(parts, "\n\n")
}
