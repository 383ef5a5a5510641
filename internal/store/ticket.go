package store

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// DefaultTicketPrefix starts every ticket id unless configured otherwise.
const DefaultTicketPrefix = "KTZH"

// newTicketID builds "<PREFIX>-<YYYYMMDD>-<KEY6>-<RND6>" where KEY6 is the
// head of the anonymized conversation key and RND6 is random hex.
func newTicketID(prefix, key string, now time.Time) (string, error) {
	if prefix == "" {
		prefix = DefaultTicketPrefix
	}
	head := key
	if len(head) > 6 {
		head = head[:6]
	}
	b := make([]byte, 3)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate ticket suffix: %w", err)
	}
	return fmt.Sprintf("%s-%s-%s-%s",
		prefix,
		now.UTC().Format("20060102"),
		strings.ToUpper(head),
		strings.ToUpper(hex.EncodeToString(b)),
	), nil
}
