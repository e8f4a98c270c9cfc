package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	logger_lib "github.com/s21platform/logger-lib"

	"github.com/consultdesk/messaging-service/internal/api"
	"github.com/consultdesk/messaging-service/internal/call"
	"github.com/consultdesk/messaging-service/internal/config"
	"github.com/consultdesk/messaging-service/internal/model"
	"github.com/consultdesk/messaging-service/internal/pkg/jwt"
	"github.com/consultdesk/messaging-service/internal/pkg/tx"
)

type Handler struct {
	repository   DBRepo
	feedClient   FeedPublisher
	coordinator  CallCoordinator
	sessions     SessionOpener
	validator    Validator
	jwtGenerator JWTGenerator
	cronSecret   string
}

func New(
	repo DBRepo,
	feedClient FeedPublisher,
	coordinator CallCoordinator,
	sessions SessionOpener,
	validator Validator,
	jwtGenerator JWTGenerator,
	cronSecret string,
) *Handler {
	return &Handler{
		repository:   repo,
		feedClient:   feedClient,
		coordinator:  coordinator,
		sessions:     sessions,
		validator:    validator,
		jwtGenerator: jwtGenerator,
		cronSecret:   cronSecret,
	}
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request, conversationID string) {
	logger := logger_lib.FromContext(r.Context(), config.KeyLogger)
	logger.AddFuncName("SendMessage")

	var req api.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error(fmt.Sprintf("failed to decode request: %v", err))
		h.writeError(w, api.CodeInvalidBody, "invalid request body", http.StatusBadRequest)
		return
	}

	senderID, ok := r.Context().Value(config.KeyUUID).(string)
	if !ok {
		logger.Error("failed to get sender ID")
		h.writeError(w, api.CodeInternalError, "failed to get sender ID", http.StatusInternalServerError)
		return
	}

	if err := h.validator.ValidateSendMessage(&req); err != nil {
		logger.Error(fmt.Sprintf("message validation failed: %v", err))
		h.writeError(w, api.CodeInvalidBody, fmt.Sprintf("message validation failed: %v", err), http.StatusBadRequest)
		return
	}

	var message *model.Message
	err := tx.TxExecute(r.Context(), func(ctx context.Context) error {
		isParticipant, err := h.repository.IsParticipant(ctx, conversationID, senderID)
		if err != nil {
			logger.Error(fmt.Sprintf("failed to check conversation membership: %v", err))
			return fmt.Errorf("failed to check conversation membership: %v", err)
		}

		if !isParticipant {
			logger.Error(fmt.Sprintf("user %s is not a participant of conversation %s", senderID, conversationID))
			return call.ErrNotParticipant
		}

		message, err = h.repository.InsertMessageReturning(ctx, &model.MessageDraft{
			ConversationID: conversationID,
			SenderID:       senderID,
			Body:           req.Body,
			AudioURL:       req.AudioUrl,
		})
		if err != nil {
			logger.Error(fmt.Sprintf("failed to save message: %v", err))
			return fmt.Errorf("failed to save message: %v", err)
		}

		if err := h.repository.TouchConversation(ctx, conversationID, message.CreatedAt); err != nil {
			logger.Error(fmt.Sprintf("failed to touch conversation: %v", err))
			return fmt.Errorf("failed to touch conversation: %v", err)
		}

		return nil
	})

	if errors.Is(err, call.ErrNotParticipant) {
		h.writeError(w, api.CodeNotParticipant, "user is not a participant of this conversation", http.StatusForbidden)
		return
	}

	if err != nil {
		logger.Error(fmt.Sprintf("failed to send message transaction: %v", err))
		h.writeError(w, api.CodeInternalError, fmt.Sprintf("failed to send message: %v", err), http.StatusInternalServerError)
		return
	}

	err = h.feedClient.Publish(r.Context(), conversationID, model.FeedEvent{
		Type:    model.FeedEventInsert,
		Message: *message,
	})
	if err != nil {
		// subscribers catch up through the fallback poller
		logger.Error(fmt.Sprintf("failed to publish message to feed: %v", err))
	}

	h.writeJSON(w, api.SendMessageResponse{Message: toAPIMessage(message)}, http.StatusOK)
}

func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request, conversationID string) {
	logger := logger_lib.FromContext(r.Context(), config.KeyLogger)
	logger.AddFuncName("GetMessages")

	userUUID, ok := r.Context().Value(config.KeyUUID).(string)
	if !ok {
		logger.Error("failed to find uuid")
		h.writeError(w, api.CodeInternalError, "failed to find uuid", http.StatusInternalServerError)
		return
	}

	isParticipant, err := h.repository.IsParticipant(r.Context(), conversationID, userUUID)
	if err != nil {
		logger.Error(fmt.Sprintf("failed to check conversation membership: %v", err))
		h.writeError(w, api.CodeInternalError, fmt.Sprintf("failed to check conversation membership: %v", err), http.StatusInternalServerError)
		return
	}

	if !isParticipant {
		logger.Error("user is not a participant of the conversation")
		h.writeError(w, api.CodeNotParticipant, "user is not a participant of the conversation", http.StatusForbidden)
		return
	}

	before := r.URL.Query().Get("before")

	limit := int32(50)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = int32(parsed)
		}
	}

	messages, err := h.repository.GetRecentMessages(r.Context(), conversationID, before, limit)
	if err != nil {
		logger.Error(fmt.Sprintf("failed to fetch messages: %v", err))
		h.writeError(w, api.CodeInternalError, fmt.Sprintf("failed to fetch messages: %v", err), http.StatusInternalServerError)
		return
	}

	apiMessages := make([]api.Message, len(*messages))
	for i, msg := range *messages {
		apiMessages[i] = toAPIMessage(&msg)
	}

	h.writeJSON(w, api.GetMessagesResponse{Messages: apiMessages}, http.StatusOK)
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request, conversationID string) {
	logger := logger_lib.FromContext(r.Context(), config.KeyLogger)
	logger.AddFuncName("MarkRead")

	userUUID, ok := r.Context().Value(config.KeyUUID).(string)
	if !ok {
		logger.Error("failed to find uuid")
		h.writeError(w, api.CodeInternalError, "failed to find uuid", http.StatusInternalServerError)
		return
	}

	isParticipant, err := h.repository.IsParticipant(r.Context(), conversationID, userUUID)
	if err != nil {
		logger.Error(fmt.Sprintf("failed to check conversation membership: %v", err))
		h.writeError(w, api.CodeInternalError, fmt.Sprintf("failed to check conversation membership: %v", err), http.StatusInternalServerError)
		return
	}

	if !isParticipant {
		logger.Error("user is not a participant of the conversation")
		h.writeError(w, api.CodeNotParticipant, "user is not a participant of the conversation", http.StatusForbidden)
		return
	}

	updated, err := h.repository.MarkMessagesRead(r.Context(), conversationID, userUUID)
	if err != nil {
		logger.Error(fmt.Sprintf("failed to mark messages read: %v", err))
		h.writeError(w, api.CodeDBUpdateFailed, fmt.Sprintf("failed to mark messages read: %v", err), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, api.MarkReadResponse{Updated: updated}, http.StatusOK)
}

func (h *Handler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	logger := logger_lib.FromContext(r.Context(), config.KeyLogger)
	logger.AddFuncName("CreateConversation")

	var req api.CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error(fmt.Sprintf("failed to decode request: %v", err))
		h.writeError(w, api.CodeInvalidBody, "invalid request body", http.StatusBadRequest)
		return
	}

	creatorID, ok := r.Context().Value(config.KeyUUID).(string)
	if !ok {
		logger.Error("failed to get creator ID")
		h.writeError(w, api.CodeInternalError, "failed to get creator ID", http.StatusInternalServerError)
		return
	}

	if err := h.validator.ValidateCreateConversation(&req, creatorID); err != nil {
		logger.Error(fmt.Sprintf("conversation validation failed: %v", err))
		h.writeError(w, api.CodeInvalidBody, fmt.Sprintf("conversation validation failed: %v", err), http.StatusBadRequest)
		return
	}

	var conversationID string
	err := tx.TxExecute(r.Context(), func(ctx context.Context) error {
		var err error
		conversationID, err = h.repository.CreateConversation(ctx, creatorID)
		if err != nil {
			logger.Error(fmt.Sprintf("failed to create conversation: %v", err))
			return err
		}

		err = h.repository.AddParticipants(ctx, conversationID, []string{creatorID, req.CompanionId})
		if err != nil {
			logger.Error(fmt.Sprintf("failed to add participants: %v", err))
			return err
		}

		return nil
	})

	if err != nil {
		logger.Error(fmt.Sprintf("failed to complete conversation creation transaction: %v", err))
		h.writeError(w, api.CodeInternalError, fmt.Sprintf("failed to create conversation: %v", err), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, api.CreateConversationResponse{Id: conversationID}, http.StatusOK)
}

func (h *Handler) GetConversations(w http.ResponseWriter, r *http.Request) {
	logger := logger_lib.FromContext(r.Context(), config.KeyLogger)
	logger.AddFuncName("GetConversations")

	requesterID, ok := r.Context().Value(config.KeyUUID).(string)
	if !ok {
		logger.Error("failed to get requester id")
		h.writeError(w, api.CodeInternalError, "failed to get requester id", http.StatusInternalServerError)
		return
	}

	conversations, err := h.repository.GetConversations(r.Context(), requesterID)
	if err != nil {
		logger.Error(fmt.Sprintf("failed to get conversations: %v", err))
		h.writeError(w, api.CodeInternalError, fmt.Sprintf("failed to get conversations: %v", err), http.StatusInternalServerError)
		return
	}

	previews := make([]api.ConversationPreview, len(*conversations))
	for i, conversation := range *conversations {
		var lastMessageAt *string
		if conversation.LastMessageAt != nil {
			timestamp := conversation.LastMessageAt.Format(time.RFC3339)
			lastMessageAt = &timestamp
		}

		previews[i] = api.ConversationPreview{
			ConversationId: conversation.ConversationID,
			CompanionName:  conversation.CompanionName,
			AvatarUrl:      &conversation.AvatarURL,
			LastMessage:    conversation.LastMessage,
			LastMessageAt:  lastMessageAt,
		}
	}

	h.writeJSON(w, api.GetConversationsResponse{Conversations: previews}, http.StatusOK)
}

func (h *Handler) RequestCall(w http.ResponseWriter, r *http.Request) {
	logger := logger_lib.FromContext(r.Context(), config.KeyLogger)
	logger.AddFuncName("RequestCall")

	var req api.RequestCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error(fmt.Sprintf("failed to decode request: %v", err))
		h.writeError(w, api.CodeInvalidBody, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.ConversationId == "" {
		h.writeError(w, api.CodeMissingConversationID, "conversation_id is required", http.StatusBadRequest)
		return
	}

	userUUID, ok := r.Context().Value(config.KeyUUID).(string)
	if !ok {
		logger.Error("failed to get user UUID")
		h.writeError(w, api.CodeInternalError, "failed to get user UUID", http.StatusInternalServerError)
		return
	}

	descriptor, reused, err := h.coordinator.RequestRoom(r.Context(), req.ConversationId, userUUID, req.Force)
	if err != nil {
		h.writeCallError(w, logger, err, "failed to request call room")
		return
	}

	h.writeJSON(w, api.RequestCallResponse{
		RoomName: descriptor.RoomName,
		RoomUrl:  descriptor.RoomURL,
		Reused:   reused,
	}, http.StatusOK)
}

func (h *Handler) EndCall(w http.ResponseWriter, r *http.Request) {
	logger := logger_lib.FromContext(r.Context(), config.KeyLogger)
	logger.AddFuncName("EndCall")

	var req api.EndCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error(fmt.Sprintf("failed to decode request: %v", err))
		h.writeError(w, api.CodeInvalidBody, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.ConversationId == "" {
		h.writeError(w, api.CodeMissingConversationID, "conversation_id is required", http.StatusBadRequest)
		return
	}

	userUUID, ok := r.Context().Value(config.KeyUUID).(string)
	if !ok {
		logger.Error("failed to get user UUID")
		h.writeError(w, api.CodeInternalError, "failed to get user UUID", http.StatusInternalServerError)
		return
	}

	result, err := h.coordinator.End(r.Context(), req.ConversationId, userUUID, req.Reason)
	if err != nil {
		h.writeCallError(w, logger, err, "failed to end call")
		return
	}

	response := api.EndCallResponse{
		Success: true,
		Ended:   result.Ended,
	}
	if result.AlreadyEnded {
		alreadyEnded := true
		response.AlreadyEnded = &alreadyEnded
	}

	h.writeJSON(w, response, http.StatusOK)
}

func (h *Handler) Cleanup(w http.ResponseWriter, r *http.Request) {
	logger := logger_lib.FromContext(r.Context(), config.KeyLogger)
	logger.AddFuncName("Cleanup")

	secret := r.Header.Get("x-cron-secret")
	if secret == "" {
		h.writeError(w, api.CodeNoAuthHeader, "x-cron-secret header is required", http.StatusUnauthorized)
		return
	}

	if secret != h.cronSecret {
		logger.Warn("cleanup called with wrong cron secret")
		h.writeError(w, api.CodeInvalidJWT, "invalid cron secret", http.StatusUnauthorized)
		return
	}

	result, err := h.coordinator.Sweep(r.Context())
	if err != nil {
		logger.Error(fmt.Sprintf("sweep failed: %v", err))
		h.writeError(w, api.CodeInternalError, fmt.Sprintf("sweep failed: %v", err), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, api.CleanupResponse{
		Success: true,
		Cleaned: api.CleanupCounters{
			Ended:                result.Ended,
			Stale:                result.Stale,
			RoomsDeleted:         result.RoomsDeleted,
			ConversationsUpdated: result.ConversationsUpdated,
		},
		Errors: result.Errors,
	}, http.StatusOK)
}

func (h *Handler) GetConnectToken(w http.ResponseWriter, r *http.Request) {
	logger := logger_lib.FromContext(r.Context(), config.KeyLogger)
	logger.AddFuncName("GetConnectToken")

	userUUID, ok := r.Context().Value(config.KeyUUID).(string)
	if !ok {
		logger.Error("failed to get user UUID")
		h.writeError(w, api.CodeInternalError, "failed to get user UUID", http.StatusInternalServerError)
		return
	}

	token, expiresAt, err := h.jwtGenerator.GenerateConnectToken(userUUID)
	if err != nil {
		logger.Error(fmt.Sprintf("failed to generate access token: %v", err))
		h.writeError(w, api.CodeInternalError, fmt.Sprintf("failed to generate access token: %v", err), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, api.GetConnectTokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
	}, http.StatusOK)
}

func (h *Handler) GetSubscribeToken(w http.ResponseWriter, r *http.Request, conversationID string) {
	logger := logger_lib.FromContext(r.Context(), config.KeyLogger)
	logger.AddFuncName("GetSubscribeToken")

	userUUID, ok := r.Context().Value(config.KeyUUID).(string)
	if !ok {
		logger.Error("failed to get user UUID")
		h.writeError(w, api.CodeInternalError, "failed to get user UUID", http.StatusInternalServerError)
		return
	}

	isParticipant, err := h.repository.IsParticipant(r.Context(), conversationID, userUUID)
	if err != nil {
		logger.Error(fmt.Sprintf("failed to check conversation membership: %v", err))
		h.writeError(w, api.CodeInternalError, fmt.Sprintf("failed to check conversation membership: %v", err), http.StatusInternalServerError)
		return
	}

	if !isParticipant {
		logger.Error("user is not a participant of the conversation")
		h.writeError(w, api.CodeNotParticipant, "user is not a participant of the conversation", http.StatusForbidden)
		return
	}

	token, expiresAt, err := h.jwtGenerator.GenerateSubscribeToken(userUUID, conversationID)
	if err != nil {
		logger.Error(fmt.Sprintf("failed to generate subscribe token: %v", err))
		h.writeError(w, api.CodeInternalError, fmt.Sprintf("failed to generate subscribe token: %v", err), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, api.GetSubscribeTokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		Channel:   jwt.Channel(conversationID),
	}, http.StatusOK)
}

// StreamConversation serves the reconciled message stream over SSE: a
// snapshot event first, then one event per delivered message. The
// delivery session behind it handles push, fallback polling and
// de-duplication.
func (h *Handler) StreamConversation(w http.ResponseWriter, r *http.Request, conversationID string) {
	logger := logger_lib.FromContext(r.Context(), config.KeyLogger)
	logger.AddFuncName("StreamConversation")

	userUUID, ok := r.Context().Value(config.KeyUUID).(string)
	if !ok {
		logger.Error("failed to get user UUID")
		h.writeError(w, api.CodeInternalError, "failed to get user UUID", http.StatusInternalServerError)
		return
	}

	isParticipant, err := h.repository.IsParticipant(r.Context(), conversationID, userUUID)
	if err != nil {
		logger.Error(fmt.Sprintf("failed to check conversation membership: %v", err))
		h.writeError(w, api.CodeInternalError, fmt.Sprintf("failed to check conversation membership: %v", err), http.StatusInternalServerError)
		return
	}

	if !isParticipant {
		logger.Error("user is not a participant of the conversation")
		h.writeError(w, api.CodeNotParticipant, "user is not a participant of the conversation", http.StatusForbidden)
		return
	}

	session, err := h.sessions.Open(r.Context(), userUUID, conversationID)
	if err != nil {
		logger.Error(fmt.Sprintf("failed to open delivery session: %v", err))
		h.writeError(w, api.CodeInternalError, fmt.Sprintf("failed to open delivery session: %v", err), http.StatusInternalServerError)
		return
	}
	defer session.Close() //nolint:errcheck // .

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, api.CodeInternalError, "streaming is not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	snapshot := session.Snapshot()
	apiSnapshot := make([]api.Message, len(snapshot))
	for i, msg := range snapshot {
		apiSnapshot[i] = toAPIMessage(&msg)
	}
	if err := writeSSE(w, "snapshot", apiSnapshot); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg := <-session.Updates():
			apiMsg := toAPIMessage(&msg)
			if err := writeSSE(w, "message", apiMsg); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// ----------------------------- helpers -----------------------------

func toAPIMessage(msg *model.Message) api.Message {
	return api.Message{
		Id:             msg.ID,
		ConversationId: msg.ConversationID,
		SenderId:       msg.SenderID,
		Body:           msg.Body,
		AudioUrl:       msg.AudioURL,
		Read:           msg.Read,
		CreatedAt:      msg.CreatedAt.Format(time.RFC3339Nano),
	}
}

func writeSSE(w http.ResponseWriter, event string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}

	return nil
}

func (h *Handler) writeCallError(w http.ResponseWriter, logger logger_lib.LoggerInterface, err error, prefix string) {
	switch {
	case errors.Is(err, call.ErrConversationNotFound):
		h.writeError(w, api.CodeConversationNotFound, "conversation not found", http.StatusNotFound)
	case errors.Is(err, call.ErrNotParticipant):
		h.writeError(w, api.CodeNotParticipant, "user is not a participant of this conversation", http.StatusForbidden)
	default:
		logger.Error(fmt.Sprintf("%s: %v", prefix, err))
		h.writeError(w, api.CodeDBUpdateFailed, fmt.Sprintf("%s: %v", prefix, err), http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, code, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(api.Error{Code: code, Error: message})
}
