package middleware

import (
	"errors"
	"regexp"
	"unicode/utf8"
)

var (
	conversationKeyPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)
	ticketIDPattern        = regexp.MustCompile(`^[A-Za-z0-9]+(-[A-Za-z0-9]+){1,4}$`)
)

// ValidateMessageText validates inbound chat text. Length is not checked;
// the webhook body limit already bounds it.
func ValidateMessageText(text string) error {
	if len(text) == 0 {
		return errors.New("text cannot be empty")
	}
	if !utf8.ValidString(text) {
		return errors.New("text must be valid UTF-8")
	}
	return nil
}

// ValidateConversationKey validates an anonymized conversation key.
func ValidateConversationKey(key string) error {
	if !conversationKeyPattern.MatchString(key) {
		return errors.New("invalid conversation key format")
	}
	return nil
}

// ValidateTicketID validates a ticket id.
func ValidateTicketID(id string) error {
	if len(id) > 64 || !ticketIDPattern.MatchString(id) {
		return errors.New("invalid ticket ID format")
	}
	return nil
}
