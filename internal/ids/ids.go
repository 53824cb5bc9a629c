// Package ids generates the prefixed string identifiers used for every record.
package ids

import (
	"strings"

	"github.com/google/uuid"
)

// Record id prefixes.
const (
	User        = "user"
	Club        = "club"
	Member      = "member"
	Event       = "event"
	RSVP        = "rsvp"
	Achievement = "ach"
	Message     = "msg"
)

// New returns "<prefix>_<uuid>". The random UUID makes ids collision-resistant
// across concurrent clients.
func New(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ChatID derives the conversation id for a user's chat with one assistant
// persona. It is stable, so a user has exactly one chat per persona.
func ChatID(chatType, userID string) string {
	return "chat_" + chatType + "_" + userID
}

// HasPrefix reports whether id was generated with prefix.
func HasPrefix(id, prefix string) bool {
	return strings.HasPrefix(id, prefix+"_")
}
