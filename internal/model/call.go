package model

import "time"

type CallDescriptorList []CallDescriptor

// CallDescriptor is the active-call state stored on a conversation.
// At most one non-ended descriptor exists per conversation.
type CallDescriptor struct {
	ConversationID string     `db:"conversation_id"`
	RoomName       string     `db:"call_room_name"`
	RoomURL        string     `db:"call_room_url"`
	StartedAt      time.Time  `db:"call_started_at"`
	EndedAt        *time.Time `db:"call_ended_at"`
	StartedBy      string     `db:"call_started_by"`
}

// Room is a video room resource at the external provider.
type Room struct {
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the room is past its provider-side expiry.
func (r *Room) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}
