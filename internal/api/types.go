// Package api holds the JSON contract types of the messaging edge surface.
package api

// Stable error codes returned in the Error envelope so callers can
// branch programmatically.
const (
	CodeNoAuthHeader          = "NO_AUTH_HEADER"
	CodeInvalidJWT            = "INVALID_JWT"
	CodeMissingConversationID = "MISSING_CONVERSATION_ID"
	CodeConversationNotFound  = "CONVERSATION_NOT_FOUND"
	CodeNotParticipant        = "NOT_PARTICIPANT"
	CodeInvalidBody           = "INVALID_BODY"
	CodeDBUpdateFailed        = "DB_UPDATE_FAILED"
	CodeInternalError         = "INTERNAL_ERROR"
)

type Error struct {
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

type Message struct {
	Id             string  `json:"id"`
	ConversationId string  `json:"conversation_id"`
	SenderId       string  `json:"sender_id"`
	Body           *string `json:"body,omitempty"`
	AudioUrl       *string `json:"audio_url,omitempty"`
	Read           bool    `json:"read"`
	CreatedAt      string  `json:"created_at"`
}

type SendMessageRequest struct {
	Body     *string `json:"body,omitempty"`
	AudioUrl *string `json:"audio_url,omitempty"`
}

type SendMessageResponse struct {
	Message Message `json:"message"`
}

type GetMessagesResponse struct {
	Messages []Message `json:"messages"`
}

type MarkReadResponse struct {
	Updated int64 `json:"updated"`
}

type CreateConversationRequest struct {
	CompanionId string `json:"companion_id"`
}

type CreateConversationResponse struct {
	Id string `json:"id"`
}

type ConversationPreview struct {
	ConversationId string  `json:"conversation_id"`
	CompanionName  string  `json:"companion_name"`
	AvatarUrl      *string `json:"avatar_url,omitempty"`
	LastMessage    *string `json:"last_message,omitempty"`
	LastMessageAt  *string `json:"last_message_at,omitempty"`
}

type GetConversationsResponse struct {
	Conversations []ConversationPreview `json:"conversations"`
}

type RequestCallRequest struct {
	ConversationId string `json:"conversation_id"`
	Force          bool   `json:"force,omitempty"`
}

type RequestCallResponse struct {
	RoomName string `json:"room_name"`
	RoomUrl  string `json:"room_url"`
	Reused   bool   `json:"reused"`
}

type EndCallRequest struct {
	ConversationId string `json:"conversation_id"`
	Reason         string `json:"reason,omitempty"`
}

type EndCallResponse struct {
	Success      bool  `json:"success"`
	Ended        bool  `json:"ended"`
	AlreadyEnded *bool `json:"already_ended,omitempty"`
}

type CleanupCounters struct {
	Ended                int `json:"ended"`
	Stale                int `json:"stale"`
	RoomsDeleted         int `json:"rooms_deleted"`
	ConversationsUpdated int `json:"conversations_updated"`
}

type CleanupResponse struct {
	Success bool            `json:"success"`
	Cleaned CleanupCounters `json:"cleaned"`
	Errors  []string        `json:"errors,omitempty"`
}

type GetConnectTokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

type GetSubscribeTokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
	Channel   string `json:"channel"`
}
