//go:generate mockgen -destination=mock_contract_test.go -package=${GOPACKAGE} -source=contract.go
package rest

import (
	"context"
	"time"

	"github.com/consultdesk/messaging-service/internal/api"
	"github.com/consultdesk/messaging-service/internal/call"
	"github.com/consultdesk/messaging-service/internal/model"
	"github.com/consultdesk/messaging-service/internal/realtime"
)

type DBRepo interface {
	InsertMessageReturning(ctx context.Context, draft *model.MessageDraft) (*model.Message, error)
	GetRecentMessages(ctx context.Context, conversationID string, before string, limit int32) (*model.MessageList, error)
	MarkMessagesRead(ctx context.Context, conversationID, readerID string) (int64, error)
	CreateConversation(ctx context.Context, createdBy string) (string, error)
	AddParticipants(ctx context.Context, conversationID string, userIDs []string) error
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
	GetConversations(ctx context.Context, requesterID string) (*model.ConversationPreviewList, error)
	TouchConversation(ctx context.Context, conversationID string, at time.Time) error

	WithTx(ctx context.Context, cb func(ctx context.Context) error) error
}

type FeedPublisher interface {
	Publish(ctx context.Context, conversationID string, event model.FeedEvent) error
}

type CallCoordinator interface {
	RequestRoom(ctx context.Context, conversationID, userID string, force bool) (*model.CallDescriptor, bool, error)
	End(ctx context.Context, conversationID, userID, reason string) (*call.EndResult, error)
	Sweep(ctx context.Context) (*call.SweepResult, error)
}

type SessionOpener interface {
	Open(ctx context.Context, userID, conversationID string) (*realtime.Session, error)
}

type Validator interface {
	ValidateSendMessage(req *api.SendMessageRequest) error
	ValidateCreateConversation(req *api.CreateConversationRequest, creatorID string) error
}

type JWTGenerator interface {
	GenerateConnectToken(userID string) (string, int64, error)
	GenerateSubscribeToken(userID, conversationID string) (string, int64, error)
}
