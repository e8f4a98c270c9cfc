package validator

import (
	"fmt"
	"strings"

	"github.com/consultdesk/messaging-service/internal/api"
)

const maxBodyLength = 2000

type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// ValidateSendMessage enforces the content invariant: exactly one of
// body and audio_url must be non-empty.
func (v *Validator) ValidateSendMessage(req *api.SendMessageRequest) error {
	hasBody := req.Body != nil && strings.TrimSpace(*req.Body) != ""
	hasAudio := req.AudioUrl != nil && strings.TrimSpace(*req.AudioUrl) != ""

	if !hasBody && !hasAudio {
		return fmt.Errorf("message requires body or audio_url")
	}

	if hasBody && hasAudio {
		return fmt.Errorf("message cannot carry both body and audio_url")
	}

	if hasBody && len([]rune(*req.Body)) > maxBodyLength {
		return fmt.Errorf("body exceeds maximum length of %d characters", maxBodyLength)
	}

	return nil
}

func (v *Validator) ValidateCreateConversation(req *api.CreateConversationRequest, creatorID string) error {
	if strings.TrimSpace(req.CompanionId) == "" {
		return fmt.Errorf("companion_id is required")
	}

	if req.CompanionId == creatorID {
		return fmt.Errorf("conversation requires two distinct participants")
	}

	return nil
}
