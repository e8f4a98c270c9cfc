package model

import (
	"time"
)

type ConversationPreviewList []ConversationPreview

// ConversationPreview is the listing shape: the companion's profile
// plus the most recent message, if any.
type ConversationPreview struct {
	ConversationID string     `db:"conversation_id"`
	CompanionName  string     `db:"companion_name"`
	AvatarURL      string     `db:"avatar_url"`
	LastMessage    *string    `db:"last_message"`
	LastMessageAt  *time.Time `db:"last_message_at"`
}

// Conversation carries the optional active-call descriptor inline;
// the call columns are null when no call was ever started.
type Conversation struct {
	ID             string     `db:"id"`
	CreatedAt      time.Time  `db:"created_at"`
	LastActivityAt time.Time  `db:"last_activity_at"`
	CallRoomName   *string    `db:"call_room_name"`
	CallRoomURL    *string    `db:"call_room_url"`
	CallStartedAt  *time.Time `db:"call_started_at"`
	CallEndedAt    *time.Time `db:"call_ended_at"`
	CallStartedBy  *string    `db:"call_started_by"`
}

// ActiveCall returns the call descriptor if a call was started and has
// not ended, nil otherwise.
func (c *Conversation) ActiveCall() *CallDescriptor {
	if c.CallStartedAt == nil || c.CallEndedAt != nil {
		return nil
	}

	desc := &CallDescriptor{
		ConversationID: c.ID,
		StartedAt:      *c.CallStartedAt,
	}
	if c.CallRoomName != nil {
		desc.RoomName = *c.CallRoomName
	}
	if c.CallRoomURL != nil {
		desc.RoomURL = *c.CallRoomURL
	}
	if c.CallStartedBy != nil {
		desc.StartedBy = *c.CallStartedBy
	}

	return desc
}
