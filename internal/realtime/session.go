package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/consultdesk/messaging-service/internal/metrics"
	"github.com/consultdesk/messaging-service/internal/model"
)

// DefaultGrace is how long the subscribe handshake may stay silent
// before the fallback poller engages.
const DefaultGrace = 3 * time.Second

const (
	defaultPollLimit  = 100
	defaultUpdateBuf  = 64
	defaultBacklogCap = 100
)

var (
	ErrEmptyMessage       = errors.New("message requires body or audio attachment")
	ErrConflictingContent = errors.New("message cannot carry both body and audio attachment")
	ErrSessionClosed      = errors.New("delivery session is closed")
)

// State is the transient delivery-channel state of one session.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

type Config struct {
	Grace       time.Duration
	PollFloor   time.Duration
	PollCeiling time.Duration
	PollFactor  float64
	PollLimit   int32
}

func (c Config) withDefaults() Config {
	if c.Grace <= 0 {
		c.Grace = DefaultGrace
	}
	if c.PollFloor <= 0 {
		c.PollFloor = DefaultPollFloor
	}
	if c.PollCeiling <= 0 {
		c.PollCeiling = DefaultPollCeiling
	}
	if c.PollFactor <= 1 {
		c.PollFactor = DefaultPollFactor
	}
	if c.PollLimit <= 0 {
		c.PollLimit = defaultPollLimit
	}
	return c
}

// Session is one conversation view's delivery state machine. It owns
// the reconciliation buffer exclusively, runs the change-feed
// subscription, engages the fallback poller when the push channel
// stays silent past the grace period, and carries the optimistic send
// pipeline.
type Session struct {
	conversationID string
	userID         string

	store   Store
	cfg     Config
	metrics *metrics.Metrics

	buffer  *Buffer
	updates chan model.Message

	state atomic.Int32

	mu            sync.Mutex
	sub           Subscription
	poller        *Poller
	pollingBarred bool
	cancel        context.CancelFunc
	closed        bool
}

func newSession(store Store, cfg Config, m *metrics.Metrics, userID, conversationID string) *Session {
	return &Session{
		conversationID: conversationID,
		userID:         userID,
		store:          store,
		cfg:            cfg.withDefaults(),
		metrics:        m,
		buffer:         NewBuffer(),
		updates:        make(chan model.Message, defaultUpdateBuf),
	}
}

func (s *Session) State() State {
	return State(s.state.Load())
}

// Snapshot returns the reconciled, ordered message list.
func (s *Session) Snapshot() []model.Message {
	return s.buffer.Snapshot()
}

// Updates emits every message the buffer accepted after the initial
// backlog, already reconciled and de-duplicated.
func (s *Session) Updates() <-chan model.Message {
	return s.updates
}

// open loads the backlog, opens the subscription and starts the run
// loop. A failed subscribe dial is not fatal: the session degrades to
// polling straight away.
func (s *Session) open(ctx context.Context, subscriber Subscriber) error {
	// the newest rows: an old conversation must open on its most
	// recent history, watermarked so the poller only fetches newer
	backlog, err := s.store.GetRecentMessages(ctx, s.conversationID, "", defaultBacklogCap)
	if err != nil {
		return fmt.Errorf("failed to load message backlog: %w", err)
	}
	for _, msg := range *backlog {
		s.buffer.Upsert(msg)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.state.Store(int32(StateConnecting))

	sub, err := subscriber.Subscribe(runCtx, s.userID, s.conversationID)
	if err != nil {
		sub = nil
	}

	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SessionsOpen.Inc()
	}

	go s.run(runCtx, sub)

	return nil
}

func (s *Session) run(ctx context.Context, sub Subscription) {
	defer func() {
		if s.metrics != nil {
			s.metrics.SessionsOpen.Dec()
		}
	}()

	grace := time.NewTimer(s.cfg.Grace)
	defer grace.Stop()

	var (
		connected <-chan struct{}
		events    <-chan model.FeedEvent
		failed    <-chan error
	)
	if sub != nil {
		connected = sub.Connected()
		events = sub.Events()
		failed = sub.Done()
	}

	for {
		select {
		case <-ctx.Done():
			return

		case <-connected:
			// push path is live: the fallback stops for good
			s.state.Store(int32(StateConnected))
			grace.Stop()
			s.barPolling()
			connected = nil

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.apply(ctx, ev.Message, metrics.PathPush)

		case <-failed:
			failed = nil
			s.engageFallback(ctx)

		case <-grace.C:
			s.engageFallback(ctx)
		}
	}
}

// engageFallback starts the poller unless the push channel already
// connected; once connected, polling stays off for the session's
// lifetime.
func (s *Session) engageFallback(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.pollingBarred || s.poller != nil {
		return
	}

	s.state.Store(int32(StateDegraded))
	s.poller = NewPoller(s.cfg.PollFloor, s.cfg.PollCeiling, s.cfg.PollFactor, s.pollOnce)

	// catch up immediately, then back off from the floor
	go func() {
		_, _ = s.pollOnce(ctx)
		s.mu.Lock()
		poller := s.poller
		s.mu.Unlock()
		if poller != nil {
			poller.Run(ctx)
		}
	}()
}

func (s *Session) barPolling() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pollingBarred = true
	if s.poller != nil {
		s.poller.Stop()
	}
}

// pollOnce is the fallback fetch: rows newer than the confirmed
// watermark, applied through the same reconciliation path as push
// events.
func (s *Session) pollOnce(ctx context.Context) (int, error) {
	list, err := s.store.MessagesSince(ctx, s.conversationID, s.buffer.Latest(), s.cfg.PollLimit)
	if err != nil {
		s.countPoll(metrics.ResultError)
		return 0, err
	}

	applied := 0
	for _, msg := range *list {
		if s.apply(ctx, msg, metrics.PathPoll) {
			applied++
		}
	}

	if applied > 0 {
		s.countPoll(metrics.ResultDelivered)
	} else {
		s.countPoll(metrics.ResultEmpty)
	}

	return applied, nil
}

// apply runs a message through the reconciliation buffer and emits it
// to the update stream if the buffer changed.
func (s *Session) apply(ctx context.Context, msg model.Message, path string) bool {
	if !s.buffer.Upsert(msg) {
		return false
	}

	if s.metrics != nil {
		s.metrics.MessagesDelivered.WithLabelValues(path).Inc()
	}

	select {
	case s.updates <- msg:
	case <-ctx.Done():
	}
	return true
}

// Send runs the optimistic pipeline: validate, insert a temp entry,
// write remotely, then swap in the server record. On failure the temp
// entry is rolled back and the error surfaced; the caller decides
// whether to resubmit.
func (s *Session) Send(ctx context.Context, body, audioURL *string) (*model.Message, error) {
	hasBody := body != nil && *body != ""
	hasAudio := audioURL != nil && *audioURL != ""
	if !hasBody && !hasAudio {
		return nil, ErrEmptyMessage
	}
	if hasBody && hasAudio {
		return nil, ErrConflictingContent
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	s.mu.Unlock()

	optimistic := model.Message{
		ID:             model.TempIDPrefix + uuid.New().String(),
		ConversationID: s.conversationID,
		SenderID:       s.userID,
		Body:           body,
		AudioURL:       audioURL,
		CreatedAt:      time.Now(),
	}

	s.buffer.Upsert(optimistic)
	s.emit(ctx, optimistic)

	saved, err := s.store.InsertMessageReturning(ctx, &model.MessageDraft{
		ConversationID: s.conversationID,
		SenderID:       s.userID,
		Body:           body,
		AudioURL:       audioURL,
	})
	if err != nil {
		s.buffer.Remove(optimistic.ID)
		s.countSend(metrics.ResultRolledBack)
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	s.buffer.ReplaceTemp(optimistic.ID, *saved)
	s.countSend(metrics.ResultConfirmed)
	s.emit(ctx, *saved)

	return saved, nil
}

func (s *Session) emit(ctx context.Context, msg model.Message) {
	select {
	case s.updates <- msg:
	case <-ctx.Done():
	}
}

// Close tears the session down: subscription, poll timer, run loop.
// Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.cancel != nil {
		s.cancel()
	}
	if s.sub != nil {
		_ = s.sub.Close()
	}
	if s.poller != nil {
		s.poller.Stop()
	}

	s.state.Store(int32(StateIdle))
	return nil
}

func (s *Session) countPoll(result string) {
	if s.metrics != nil {
		s.metrics.PollsTotal.WithLabelValues(result).Inc()
	}
}

func (s *Session) countSend(result string) {
	if s.metrics != nil {
		s.metrics.SendsTotal.WithLabelValues(result).Inc()
	}
}
