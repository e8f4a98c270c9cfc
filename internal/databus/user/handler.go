//go:generate mockgen -destination=mock_handler_test.go -package=${GOPACKAGE} -source=handler.go
package user

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/consultdesk/messaging-service/internal/model"
)

type DBRepo interface {
	UpdateUserNickname(ctx context.Context, userID, newNickname string) error
	UpdateUserAvatar(ctx context.Context, userID, avatarLink string) error
}

// Handler applies user-profile change events from the platform topic
// to the local users table.
type Handler struct {
	repository DBRepo
}

func New(repo DBRepo) *Handler {
	return &Handler{
		repository: repo,
	}
}

func (h *Handler) Handle(ctx context.Context, in []byte) error {
	var event model.UserProfileEvent
	if err := json.Unmarshal(in, &event); err != nil {
		return fmt.Errorf("failed to decode user profile event: %w", err)
	}

	if event.UserID == "" {
		return fmt.Errorf("user profile event without user_id")
	}

	if event.Nickname != nil {
		if err := h.repository.UpdateUserNickname(ctx, event.UserID, *event.Nickname); err != nil {
			return fmt.Errorf("failed to update nickname for %s: %w", event.UserID, err)
		}
	}

	if event.AvatarURL != nil {
		if err := h.repository.UpdateUserAvatar(ctx, event.UserID, *event.AvatarURL); err != nil {
			return fmt.Errorf("failed to update avatar for %s: %w", event.UserID, err)
		}
	}

	return nil
}
