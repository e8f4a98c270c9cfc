package model

import (
	"strings"
	"time"
)

// TempIDPrefix marks an optimistic local message that has not been
// confirmed by the store yet. The entry is replaced once the remote
// write returns the server-assigned identity.
const TempIDPrefix = "temp-"

type MessageList []Message

type Message struct {
	ID             string    `db:"id" json:"id"`
	ConversationID string    `db:"conversation_id" json:"conversation_id"`
	SenderID       string    `db:"sender_id" json:"sender_id"`
	Body           *string   `db:"body" json:"body,omitempty"`
	AudioURL       *string   `db:"audio_url" json:"audio_url,omitempty"`
	Read           bool      `db:"read" json:"read"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// IsTemp reports whether the message still carries an optimistic local identity.
func (m *Message) IsTemp() bool {
	return strings.HasPrefix(m.ID, TempIDPrefix)
}

// MessageDraft is the write shape of a message. Identity and creation
// timestamp are assigned by the store on insert.
type MessageDraft struct {
	ConversationID string
	SenderID       string
	Body           *string
	AudioURL       *string
}
