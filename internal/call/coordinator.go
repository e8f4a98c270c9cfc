// Package call coordinates the video-call lifecycle per conversation:
// room creation and reuse, idempotent ending, and the sweep that keeps
// the database's active-call descriptor from pointing at a dead room.
// The database is the source of truth; provider cleanup is best-effort
// and retried by the next sweep.
package call

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	logger_lib "github.com/s21platform/logger-lib"

	"github.com/consultdesk/messaging-service/internal/config"
	"github.com/consultdesk/messaging-service/internal/metrics"
	"github.com/consultdesk/messaging-service/internal/model"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrNotParticipant       = errors.New("user is not a participant of the conversation")
)

type Coordinator struct {
	repo    CallRepo
	rooms   RoomsProvider
	logger  *logger_lib.Logger
	metrics *metrics.Metrics

	staleness time.Duration
	roomTTL   time.Duration
}

func New(cfg *config.Config, repo CallRepo, rooms RoomsProvider, logger *logger_lib.Logger, m *metrics.Metrics) *Coordinator {
	return &Coordinator{
		repo:      repo,
		rooms:     rooms,
		logger:    logger,
		metrics:   m,
		staleness: time.Duration(cfg.Calls.StalenessHours) * time.Hour,
		roomTTL:   time.Duration(cfg.Rooms.TTL) * time.Second,
	}
}

// EndResult is the outcome of an end-call request.
type EndResult struct {
	Ended        bool
	AlreadyEnded bool
}

// SweepResult carries the counters of one cleanup sweep plus any
// non-fatal errors collected along the way.
type SweepResult struct {
	Ended                int
	Stale                int
	RoomsDeleted         int
	ConversationsUpdated int
	Errors               []string
}

// RequestRoom returns the conversation's video room, creating one when
// none is active. An unexpired existing room is reused; force always
// replaces it.
func (c *Coordinator) RequestRoom(ctx context.Context, conversationID, userID string, force bool) (*model.CallDescriptor, bool, error) {
	conversation, err := c.getConversation(ctx, conversationID, userID)
	if err != nil {
		return nil, false, err
	}

	if active := conversation.ActiveCall(); active != nil {
		if !force && c.roomAlive(ctx, active.RoomName) {
			return active, true, nil
		}

		// stale descriptor or forced replace: end it, then start fresh
		if _, err := c.repo.EndActiveCall(ctx, conversationID, time.Now()); err != nil {
			return nil, false, fmt.Errorf("failed to end previous call: %w", err)
		}
		c.deleteRoomBestEffort(ctx, active.RoomName)
	}

	name := roomName(conversationID)
	room, err := c.rooms.CreateRoom(ctx, name, c.roomTTL)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create room: %w", err)
	}

	descriptor := &model.CallDescriptor{
		ConversationID: conversationID,
		RoomName:       room.Name,
		RoomURL:        room.URL,
		StartedAt:      time.Now(),
		StartedBy:      userID,
	}

	if err := c.repo.SetActiveCall(ctx, conversationID, descriptor); err != nil {
		c.deleteRoomBestEffort(ctx, room.Name)
		return nil, false, fmt.Errorf("failed to persist call descriptor: %w", err)
	}

	return descriptor, false, nil
}

// End finishes the conversation's call. Ending a call that is already
// over is success: both participants may race to end it, and the
// ended_at IS NULL guard in the store picks the winner.
func (c *Coordinator) End(ctx context.Context, conversationID, userID, reason string) (*EndResult, error) {
	conversation, err := c.getConversation(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}

	active := conversation.ActiveCall()
	if active == nil {
		return &EndResult{Ended: true, AlreadyEnded: true}, nil
	}

	ended, err := c.repo.EndActiveCall(ctx, conversationID, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to end call: %w", err)
	}
	if !ended {
		// the other participant won the race
		return &EndResult{Ended: true, AlreadyEnded: true}, nil
	}

	c.logInfo(fmt.Sprintf("call ended for conversation %s (reason: %s)", conversationID, reason))
	c.deleteRoomBestEffort(ctx, active.RoomName)

	return &EndResult{Ended: true}, nil
}

// Sweep ends calls that ran past the staleness threshold and deletes
// provider rooms left behind by ended calls. Provider failures are
// collected, never fatal: the next sweep retries them.
func (c *Coordinator) Sweep(ctx context.Context) (*SweepResult, error) {
	result := &SweepResult{}
	now := time.Now()

	stale, err := c.repo.ListStaleCalls(ctx, now.Add(-c.staleness))
	if err != nil {
		return nil, fmt.Errorf("failed to list stale calls: %w", err)
	}

	for _, desc := range *stale {
		ended, err := c.repo.EndActiveCall(ctx, desc.ConversationID, now)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("end stale call %s: %v", desc.ConversationID, err))
			continue
		}
		if !ended {
			continue
		}

		result.Stale++
		result.ConversationsUpdated++
		c.logInfo(fmt.Sprintf("swept stale call for conversation %s (started %s)", desc.ConversationID, desc.StartedAt.Format(time.RFC3339)))

		if c.sweepRoom(ctx, result, desc) {
			result.RoomsDeleted++
		}
	}

	pending, err := c.repo.ListEndedCallsPendingCleanup(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list ended calls: %w", err)
	}

	for _, desc := range *pending {
		if c.sweepRoom(ctx, result, desc) {
			result.Ended++
			result.RoomsDeleted++
			result.ConversationsUpdated++
		}
	}

	if c.metrics != nil {
		c.metrics.SweepRuns.Inc()
		c.metrics.SweepCallsEnded.Add(float64(result.Stale))
		c.metrics.SweepRoomsDeleted.Add(float64(result.RoomsDeleted))
	}

	return result, nil
}

// sweepRoom deletes the provider room and detaches it from the
// conversation. "Already deleted" counts as success.
func (c *Coordinator) sweepRoom(ctx context.Context, result *SweepResult, desc model.CallDescriptor) bool {
	if desc.RoomName == "" {
		return false
	}

	if err := c.rooms.DeleteRoom(ctx, desc.RoomName); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("delete room %s: %v", desc.RoomName, err))
		return false
	}

	if err := c.repo.ClearCallRoom(ctx, desc.ConversationID); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("clear room for conversation %s: %v", desc.ConversationID, err))
		return false
	}

	return true
}

func (c *Coordinator) getConversation(ctx context.Context, conversationID, userID string) (*model.Conversation, error) {
	conversation, err := c.repo.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	isParticipant, err := c.repo.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to check conversation membership: %w", err)
	}
	if !isParticipant {
		return nil, ErrNotParticipant
	}

	return conversation, nil
}

// roomAlive reports whether the provider still knows the room and it
// has not expired.
func (c *Coordinator) roomAlive(ctx context.Context, name string) bool {
	if name == "" {
		return false
	}

	room, err := c.rooms.GetRoom(ctx, name)
	if err != nil {
		return false
	}

	return !room.Expired(time.Now())
}

func (c *Coordinator) deleteRoomBestEffort(ctx context.Context, name string) {
	if name == "" {
		return
	}

	if err := c.rooms.DeleteRoom(ctx, name); err != nil {
		c.logWarn(fmt.Sprintf("failed to delete room %s, next sweep retries: %v", name, err))
	}
}

func (c *Coordinator) logInfo(msg string) {
	if c.logger != nil {
		c.logger.Info(msg)
	}
}

func (c *Coordinator) logWarn(msg string) {
	if c.logger != nil {
		c.logger.Warn(msg)
	}
}

func roomName(conversationID string) string {
	short := conversationID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("consult-%s-%d", short, time.Now().Unix())
}
