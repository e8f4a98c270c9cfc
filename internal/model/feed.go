package model

import "github.com/golang-jwt/jwt/v5"

const (
	FeedEventInsert = "insert"
	FeedEventUpdate = "update"
)

// FeedEvent is a single change-feed notification for a conversation
// channel: a new message row or an update to a known one.
type FeedEvent struct {
	Type    string  `json:"type"`
	Message Message `json:"message"`
}

type FeedConnectClaims struct {
	jwt.RegisteredClaims
}

type FeedSubscribeClaims struct {
	jwt.RegisteredClaims

	Channel string `json:"channel"`

	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id"`
}
