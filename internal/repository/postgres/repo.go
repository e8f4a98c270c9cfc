package postgres

import (
	"context"
	"fmt"
	"log"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/consultdesk/messaging-service/internal/config"
	"github.com/consultdesk/messaging-service/internal/model"
)

type Repository struct {
	connection *sqlx.DB
}

func New(cfg *config.Config) *Repository {
	conStr := fmt.Sprintf("user=%s password=%s dbname=%s host=%s port=%s sslmode=disable",
		cfg.Postgres.User, cfg.Postgres.Password, cfg.Postgres.Database, cfg.Postgres.Host, cfg.Postgres.Port)

	conn, err := sqlx.Connect("postgres", conStr)
	if err != nil {
		log.Fatal("error connect: ", err)
	}

	return &Repository{
		connection: conn,
	}
}

func (r *Repository) Close() {
	_ = r.connection.Close()
}

func (r *Repository) InsertMessageReturning(ctx context.Context, draft *model.MessageDraft) (*model.Message, error) {
	query, args, err := sq.Insert("messages").
		Columns("conversation_id", "sender_id", "body", "audio_url").
		Values(draft.ConversationID, draft.SenderID, draft.Body, draft.AudioURL).
		Suffix(`RETURNING id, conversation_id, sender_id, body, audio_url, "read", created_at`).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build sql query: %v", err)
	}

	var message model.Message
	err = r.Chk(ctx).GetContext(ctx, &message, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to save message: %v", err)
	}

	return &message, nil
}

func (r *Repository) MessagesSince(ctx context.Context, conversationID string, after time.Time, limit int32) (*model.MessageList, error) {
	queryBuilder := sq.Select(
		"id",
		"conversation_id",
		"sender_id",
		"body",
		"audio_url",
		`"read"`,
		"created_at",
	).
		From("messages").
		Where(sq.Eq{"conversation_id": conversationID}).
		OrderBy("created_at ASC")

	if !after.IsZero() {
		queryBuilder = queryBuilder.Where(sq.Gt{"created_at": after})
	}

	if limit > 0 {
		queryBuilder = queryBuilder.Limit(uint64(limit))
	} else {
		queryBuilder = queryBuilder.Limit(100)
	}

	query, args, err := queryBuilder.PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build sql query: %v", err)
	}

	var messages model.MessageList
	err = r.Chk(ctx).SelectContext(ctx, &messages, query, args...)
	if err != nil {
		return nil, err
	}

	return &messages, nil
}

func (r *Repository) GetRecentMessages(ctx context.Context, conversationID string, before string, limit int32) (*model.MessageList, error) {
	queryBuilder := sq.Select(
		"id",
		"conversation_id",
		"sender_id",
		"body",
		"audio_url",
		`"read"`,
		"created_at",
	).
		From("messages").
		Where(sq.Eq{"conversation_id": conversationID}).
		OrderBy("created_at DESC")

	if before != "" {
		queryBuilder = queryBuilder.Where(sq.LtOrEq{"created_at": before})
	}

	if limit > 0 {
		queryBuilder = queryBuilder.Limit(uint64(limit))
	} else {
		queryBuilder = queryBuilder.Limit(50)
	}

	query, args, err := queryBuilder.PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build sql query: %v", err)
	}

	var messages model.MessageList
	err = r.Chk(ctx).SelectContext(ctx, &messages, query, args...)
	if err != nil {
		return nil, err
	}

	return &messages, nil
}

// MarkMessagesRead flags the companion's messages as read. The
// reader's own messages are left untouched.
func (r *Repository) MarkMessagesRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	query, args, err := sq.Update("messages").
		Set(`"read"`, true).
		Where(sq.And{
			sq.Eq{"conversation_id": conversationID},
			sq.NotEq{"sender_id": readerID},
			sq.Eq{`"read"`: false},
		}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build sql query: %v", err)
	}

	result, err := r.Chk(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}

	updated, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	return updated, nil
}

func (r *Repository) CreateConversation(ctx context.Context, createdBy string) (string, error) {
	query, args, err := sq.Insert("conversations").
		Columns("created_by").
		Values(createdBy).
		Suffix("RETURNING id").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("failed to build sql query: %v", err)
	}

	var conversationID string
	err = r.Chk(ctx).GetContext(ctx, &conversationID, query, args...)
	if err != nil {
		return "", err
	}

	return conversationID, nil
}

func (r *Repository) AddParticipants(ctx context.Context, conversationID string, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}

	query := sq.Insert("conversation_participants").
		Columns("conversation_id", "user_id").
		Suffix("ON CONFLICT (conversation_id, user_id) DO NOTHING").
		PlaceholderFormat(sq.Dollar)

	for _, userID := range userIDs {
		query = query.Values(conversationID, userID)
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build sql query: %v", err)
	}

	_, err = r.Chk(ctx).ExecContext(ctx, sql, args...)
	return err
}

func (r *Repository) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	query, args, err := sq.
		Select("COUNT(*) > 0").
		From("conversation_participants").
		Where(sq.And{
			sq.Eq{"conversation_id": conversationID},
			sq.Eq{"user_id": userID},
		}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build sql query: %v", err)
	}

	var isParticipant bool
	err = r.Chk(ctx).GetContext(ctx, &isParticipant, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to check conversation membership: %v", err)
	}

	return isParticipant, nil
}

func (r *Repository) GetConversation(ctx context.Context, conversationID string) (*model.Conversation, error) {
	query, args, err := sq.Select(
		"id",
		"created_at",
		"last_activity_at",
		"call_room_name",
		"call_room_url",
		"call_started_at",
		"call_ended_at",
		"call_started_by",
	).
		From("conversations").
		Where(sq.Eq{"id": conversationID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build sql query: %v", err)
	}

	var conversation model.Conversation
	err = r.Chk(ctx).GetContext(ctx, &conversation, query, args...)
	if err != nil {
		return nil, err
	}

	return &conversation, nil
}

func (r *Repository) GetConversations(ctx context.Context, requesterID string) (*model.ConversationPreviewList, error) {
	query := sq.Select(
		"c.id as conversation_id",
		"u_companion.nickname as companion_name",
		"u_companion.avatar_url",
		"("+func() string {
			sql, _, _ := sq.Select("body").
				From("messages m2").
				Where("m2.conversation_id = c.id").
				OrderBy("m2.created_at DESC").
				Limit(1).ToSql()
			return sql
		}()+") as last_message",
		"("+func() string {
			sql, _, _ := sq.Select("created_at").
				From("messages m2").
				Where("m2.conversation_id = c.id").
				OrderBy("m2.created_at DESC").
				Limit(1).ToSql()
			return sql
		}()+") as last_message_at",
	).
		From("conversations c").
		Join("conversation_participants cp1 ON c.id = cp1.conversation_id").
		Join("conversation_participants cp2 ON c.id = cp2.conversation_id").
		Join("users u_companion ON cp2.user_id = u_companion.id").
		Where(sq.And{
			sq.Eq{"cp1.user_id": requesterID},
			sq.NotEq{"cp2.user_id": requesterID},
		}).
		OrderBy("c.last_activity_at DESC").
		PlaceholderFormat(sq.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build sql query: %v", err)
	}

	var conversations model.ConversationPreviewList
	err = r.Chk(ctx).SelectContext(ctx, &conversations, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversations: %v", err)
	}

	return &conversations, nil
}

func (r *Repository) TouchConversation(ctx context.Context, conversationID string, at time.Time) error {
	query, args, err := sq.Update("conversations").
		Set("last_activity_at", at).
		Where(sq.Eq{"id": conversationID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build sql query: %v", err)
	}

	_, err = r.Chk(ctx).ExecContext(ctx, query, args...)
	return err
}

// SetActiveCall overwrites the conversation's call descriptor with a
// fresh, non-ended one. Last write wins at the row level.
func (r *Repository) SetActiveCall(ctx context.Context, conversationID string, call *model.CallDescriptor) error {
	query, args, err := sq.Update("conversations").
		Set("call_room_name", call.RoomName).
		Set("call_room_url", call.RoomURL).
		Set("call_started_at", call.StartedAt).
		Set("call_ended_at", nil).
		Set("call_started_by", call.StartedBy).
		Where(sq.Eq{"id": conversationID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build sql query: %v", err)
	}

	_, err = r.Chk(ctx).ExecContext(ctx, query, args...)
	return err
}

// EndActiveCall sets ended_at on the running call. The ended_at IS
// NULL guard makes concurrent ends idempotent: only the first one
// reports an affected row.
func (r *Repository) EndActiveCall(ctx context.Context, conversationID string, endedAt time.Time) (bool, error) {
	query, args, err := sq.Update("conversations").
		Set("call_ended_at", endedAt).
		Where(sq.And{
			sq.Eq{"id": conversationID},
			sq.NotEq{"call_started_at": nil},
			sq.Eq{"call_ended_at": nil},
		}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build sql query: %v", err)
	}

	result, err := r.Chk(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}

func (r *Repository) ListStaleCalls(ctx context.Context, olderThan time.Time) (*model.CallDescriptorList, error) {
	query, args, err := sq.Select(
		"id as conversation_id",
		"call_room_name",
		"call_room_url",
		"call_started_at",
		"call_ended_at",
		"call_started_by",
	).
		From("conversations").
		Where(sq.And{
			sq.NotEq{"call_started_at": nil},
			sq.Eq{"call_ended_at": nil},
			sq.Lt{"call_started_at": olderThan},
		}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build sql query: %v", err)
	}

	var calls model.CallDescriptorList
	err = r.Chk(ctx).SelectContext(ctx, &calls, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale calls: %v", err)
	}

	return &calls, nil
}

// ListEndedCallsPendingCleanup returns ended calls whose provider room
// has not been deleted yet.
func (r *Repository) ListEndedCallsPendingCleanup(ctx context.Context) (*model.CallDescriptorList, error) {
	query, args, err := sq.Select(
		"id as conversation_id",
		"call_room_name",
		"call_room_url",
		"call_started_at",
		"call_ended_at",
		"call_started_by",
	).
		From("conversations").
		Where(sq.And{
			sq.NotEq{"call_ended_at": nil},
			sq.NotEq{"call_room_name": nil},
		}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build sql query: %v", err)
	}

	var calls model.CallDescriptorList
	err = r.Chk(ctx).SelectContext(ctx, &calls, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list ended calls: %v", err)
	}

	return &calls, nil
}

// ClearCallRoom detaches the provider room from an ended call once the
// external resource is gone.
func (r *Repository) ClearCallRoom(ctx context.Context, conversationID string) error {
	query, args, err := sq.Update("conversations").
		Set("call_room_name", nil).
		Set("call_room_url", nil).
		Where(sq.Eq{"id": conversationID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build sql query: %v", err)
	}

	_, err = r.Chk(ctx).ExecContext(ctx, query, args...)
	return err
}

func (r *Repository) AddNewUser(ctx context.Context, userInfo *model.UserParams) error {
	query, args, err := sq.Insert("users").
		Columns("id", "nickname", "avatar_url").
		Values(userInfo.UserID, userInfo.Nickname, userInfo.AvatarURL).
		Suffix("ON CONFLICT (id) DO NOTHING").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build sql query: %v", err)
	}

	_, err = r.Chk(ctx).ExecContext(ctx, query, args...)

	return err
}

func (r *Repository) UpdateUserNickname(ctx context.Context, userID, newNickname string) error {
	query, args, err := sq.Update("users").
		Set("nickname", newNickname).
		Where(sq.Eq{"id": userID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build sql query: %v", err)
	}

	_, err = r.Chk(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	return nil
}

func (r *Repository) UpdateUserAvatar(ctx context.Context, userID, avatarLink string) error {
	query, args, err := sq.Update("users").
		Set("avatar_url", avatarLink).
		Where(sq.Eq{"id": userID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build sql query: %v", err)
	}

	_, err = r.Chk(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	return nil
}
