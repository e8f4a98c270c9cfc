package realtime

import (
	"context"

	"github.com/consultdesk/messaging-service/internal/metrics"
)

// Manager builds delivery sessions. Each open conversation view gets
// its own session; the session's message list is never shared across
// views.
type Manager struct {
	store      Store
	subscriber Subscriber
	cfg        Config
	metrics    *metrics.Metrics
}

func NewManager(store Store, subscriber Subscriber, cfg Config, m *metrics.Metrics) *Manager {
	return &Manager{
		store:      store,
		subscriber: subscriber,
		cfg:        cfg,
		metrics:    m,
	}
}

// Open starts a delivery session for one conversation view: backlog
// load, change-feed subscription, and fallback arming. The caller
// must Close the session when the view goes away.
func (m *Manager) Open(ctx context.Context, userID, conversationID string) (*Session, error) {
	session := newSession(m.store, m.cfg, m.metrics, userID, conversationID)
	if err := session.open(ctx, m.subscriber); err != nil {
		return nil, err
	}
	return session, nil
}
