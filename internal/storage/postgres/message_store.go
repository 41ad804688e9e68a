package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chorus-chat/chorus/internal/storage"
	"github.com/chorus-chat/chorus/pkg/types"
)

const messageSelectColumns = `
	id, content, sender_user_id, sender_ai_id, sender_name,
	room_id, conversation_id, message_type, sent_at, in_reply_to_id
`

// Append persists a new message, assigning an ID when empty.
func (s *Store) Append(ctx context.Context, msg *types.Message) error {
	if msg == nil {
		return storage.ErrInvalidInput
	}
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}
	if msg.Type == "" {
		msg.Type = types.MessageTypeText
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (
			id, content, sender_user_id, sender_ai_id, sender_name,
			room_id, conversation_id, message_type, sent_at, in_reply_to_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		msg.ID,
		msg.Content,
		nullString(msg.SenderUserID),
		nullString(msg.SenderAIID),
		nullString(msg.SenderName),
		nullString(msg.RoomID),
		nullString(msg.ConversationID),
		string(msg.Type),
		msg.SentAt,
		nullString(msg.InReplyToID),
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to append message: %w", err)
	}
	return nil
}

// RecentHistory returns the latest messages for the context in
// chronological order.
func (s *Store) RecentHistory(ctx context.Context, chatCtx types.ChatContext, limit int) ([]*types.Message, error) {
	if err := chatCtx.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	if limit < 1 {
		limit = storage.DefaultSearchLimit
	}

	column := "conversation_id"
	value := chatCtx.ConversationID
	if chatCtx.IsRoom() {
		column = "room_id"
		value = chatCtx.RoomID
	}

	// Newest N, then flipped to chronological.
	query := `
		SELECT ` + messageSelectColumns + `
		FROM messages
		WHERE ` + column + ` = $1
		ORDER BY sent_at DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, value, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to load recent history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages, err := scanMessageRows(rows)
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// History returns the full message window for the context, oldest first.
func (s *Store) History(ctx context.Context, chatCtx types.ChatContext) ([]*types.Message, error) {
	if err := chatCtx.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	column := "conversation_id"
	value := chatCtx.ConversationID
	if chatCtx.IsRoom() {
		column = "room_id"
		value = chatCtx.RoomID
	}

	query := `
		SELECT ` + messageSelectColumns + `
		FROM messages
		WHERE ` + column + ` = $1
		ORDER BY sent_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, value)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to load history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanMessageRows(rows)
}

func scanMessageRows(rows *sql.Rows) ([]*types.Message, error) {
	var messages []*types.Message
	for rows.Next() {
		var msg types.Message
		var senderUserID, senderAIID, senderName sql.NullString
		var roomID, conversationID, inReplyToID sql.NullString
		var messageType string

		err := rows.Scan(
			&msg.ID,
			&msg.Content,
			&senderUserID,
			&senderAIID,
			&senderName,
			&roomID,
			&conversationID,
			&messageType,
			&msg.SentAt,
			&inReplyToID,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan message row: %w", err)
		}

		msg.SenderUserID = senderUserID.String
		msg.SenderAIID = senderAIID.String
		msg.SenderName = senderName.String
		msg.RoomID = roomID.String
		msg.ConversationID = conversationID.String
		msg.InReplyToID = inReplyToID.String
		msg.Type = types.MessageType(messageType)

		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: row iteration failed: %w", err)
	}
	return messages, nil
}
