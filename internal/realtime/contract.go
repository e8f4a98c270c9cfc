//go:generate mockgen -destination=mock_contract_test.go -package=${GOPACKAGE} -source=contract.go
package realtime

import (
	"context"
	"time"

	"github.com/consultdesk/messaging-service/internal/model"
)

// Store is the message-store surface a delivery session needs: the
// backlog query, the poll query and the confirming write. All return
// server-assigned identities and timestamps.
type Store interface {
	GetRecentMessages(ctx context.Context, conversationID string, before string, limit int32) (*model.MessageList, error)
	MessagesSince(ctx context.Context, conversationID string, after time.Time, limit int32) (*model.MessageList, error)
	InsertMessageReturning(ctx context.Context, draft *model.MessageDraft) (*model.Message, error)
}

// Subscription is one live change-feed channel. Connected fires once
// after the handshake is acked; Done fires once when the channel
// dies. Close must be idempotent.
type Subscription interface {
	Events() <-chan model.FeedEvent
	Connected() <-chan struct{}
	Done() <-chan error
	Close() error
}

// Subscriber opens change-feed subscriptions, one per conversation view.
type Subscriber interface {
	Subscribe(ctx context.Context, userID, conversationID string) (Subscription, error)
}

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc func(ctx context.Context, userID, conversationID string) (Subscription, error)

func (f SubscriberFunc) Subscribe(ctx context.Context, userID, conversationID string) (Subscription, error) {
	return f(ctx, userID, conversationID)
}
