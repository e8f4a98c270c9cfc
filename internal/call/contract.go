//go:generate mockgen -destination=mock_contract_test.go -package=${GOPACKAGE} -source=contract.go
package call

import (
	"context"
	"time"

	"github.com/consultdesk/messaging-service/internal/model"
)

type CallRepo interface {
	GetConversation(ctx context.Context, conversationID string) (*model.Conversation, error)
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
	SetActiveCall(ctx context.Context, conversationID string, call *model.CallDescriptor) error
	EndActiveCall(ctx context.Context, conversationID string, endedAt time.Time) (bool, error)
	ListStaleCalls(ctx context.Context, olderThan time.Time) (*model.CallDescriptorList, error)
	ListEndedCallsPendingCleanup(ctx context.Context) (*model.CallDescriptorList, error)
	ClearCallRoom(ctx context.Context, conversationID string) error
}

type RoomsProvider interface {
	CreateRoom(ctx context.Context, name string, ttl time.Duration) (*model.Room, error)
	GetRoom(ctx context.Context, name string) (*model.Room, error)
	DeleteRoom(ctx context.Context, name string) error
}
