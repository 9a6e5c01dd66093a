package database

import (
	"database/sql"
	"encoding/json"
	"sort"
	"time"

	"github.com/pkg/errors"
)

const messageColumns = "id, sender_id, receiver_id, conversation_id, content, message_type, status, " +
	"is_read, read_at, reply_to, original_message, reactions, edited, edited_at, deleted, deleted_at, " +
	"created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (Message, error) {
	var (
		msg             Message
		readAt          sql.NullTime
		replyTo         sql.NullString
		originalMessage sql.NullString
		reactions       []byte
		editedAt        sql.NullTime
		deletedAt       sql.NullTime
	)

	err := row.Scan(
		&msg.Id,
		&msg.SenderId,
		&msg.ReceiverId,
		&msg.ConversationId,
		&msg.Content,
		&msg.MessageType,
		&msg.Status,
		&msg.IsRead,
		&readAt,
		&replyTo,
		&originalMessage,
		&reactions,
		&msg.Edited,
		&editedAt,
		&msg.Deleted,
		&deletedAt,
		&msg.CreatedAt,
		&msg.UpdatedAt,
	)
	if err != nil {
		return Message{}, err
	}

	if readAt.Valid {
		msg.ReadAt = &readAt.Time
	}
	if editedAt.Valid {
		msg.EditedAt = &editedAt.Time
	}
	if deletedAt.Valid {
		msg.DeletedAt = &deletedAt.Time
	}
	msg.ReplyTo = replyTo.String
	msg.OriginalMessage = originalMessage.String

	msg.Reactions = make(map[string]string)
	if len(reactions) > 0 {
		if err := json.Unmarshal(reactions, &msg.Reactions); err != nil {
			return Message{}, errors.Wrap(err, "decode reactions")
		}
	}

	return msg, nil
}

func (db *PgChatRepository) GetUserById(id string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, display_name, avatar_url, created_at, updated_at FROM users "+
			"WHERE id = $1 LIMIT 1",
		id,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.DisplayName,
		&user.AvatarUrl,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	return user, err
}

func (db *PgChatRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	now := time.Now().UTC()
	row := db.conn.QueryRow(
		"INSERT INTO messages (id, sender_id, receiver_id, conversation_id, content, message_type, "+
			"status, reply_to, original_message, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, 'sent', NULLIF($7, ''), NULLIF($8, ''), $9, $9) "+
			"RETURNING "+messageColumns,
		params.Id,
		params.SenderId,
		params.ReceiverId,
		params.ConversationId,
		params.Content,
		params.MessageType,
		params.ReplyTo,
		params.OriginalMessage,
		now,
	)

	msg, err := scanMessage(row)
	if err != nil {
		return Message{}, errors.Wrap(err, "create message")
	}

	return msg, nil
}

func (db *PgChatRepository) GetMessageById(id string) (Message, error) {
	row := db.conn.QueryRow(
		"SELECT "+messageColumns+" FROM messages WHERE id = $1 LIMIT 1",
		id,
	)

	return scanMessage(row)
}

// MarkMessageDelivered advances a message from sent to delivered. The
// status guard lives in the query itself, so a message that has already
// moved past sent is returned unchanged.
func (db *PgChatRepository) MarkMessageDelivered(id string) (Message, error) {
	row := db.conn.QueryRow(
		"UPDATE messages SET status = 'delivered', updated_at = $2 "+
			"WHERE id = $1 AND status = 'sent' RETURNING "+messageColumns,
		id,
		time.Now().UTC(),
	)

	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		// already delivered or read; hand back the current row
		return db.GetMessageById(id)
	}

	return msg, err
}

func (db *PgChatRepository) MarkMessageRead(id string, readAt time.Time) (Message, error) {
	row := db.conn.QueryRow(
		"UPDATE messages SET status = 'read', is_read = TRUE, read_at = $2, updated_at = $2 "+
			"WHERE id = $1 AND status IN ('sent', 'delivered') RETURNING "+messageColumns,
		id,
		readAt,
	)

	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return db.GetMessageById(id)
	}

	return msg, err
}

// SetReaction upserts a single reaction keyed by user id. The jsonb
// concatenation replaces any previous reaction from the same user.
func (db *PgChatRepository) SetReaction(id, userId, reaction string) (Message, error) {
	row := db.conn.QueryRow(
		"UPDATE messages SET reactions = reactions || jsonb_build_object($2::text, $3::text), "+
			"updated_at = $4 WHERE id = $1 RETURNING "+messageColumns,
		id,
		userId,
		reaction,
		time.Now().UTC(),
	)

	return scanMessage(row)
}

func (db *PgChatRepository) UpdateMessageContent(id, content string, editedAt time.Time) (Message, error) {
	row := db.conn.QueryRow(
		"UPDATE messages SET content = $2, edited = TRUE, edited_at = $3, updated_at = $3 "+
			"WHERE id = $1 RETURNING "+messageColumns,
		id,
		content,
		editedAt,
	)

	return scanMessage(row)
}

func (db *PgChatRepository) SoftDeleteMessage(id string, deletedAt time.Time) (Message, error) {
	row := db.conn.QueryRow(
		"UPDATE messages SET deleted = TRUE, deleted_at = $2, updated_at = $2 "+
			"WHERE id = $1 RETURNING "+messageColumns,
		id,
		deletedAt,
	)

	return scanMessage(row)
}

func (db *PgChatRepository) GetConversationMessages(conversationId string, before *time.Time, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}

	var upper time.Time
	if before != nil {
		upper = *before
	} else {
		// far-future bound keeps the query shape uniform
		upper = time.Now().UTC().Add(time.Hour)
	}

	rows, err := db.conn.Query(
		"SELECT "+messageColumns+" FROM messages "+
			"WHERE conversation_id = $1 AND created_at < $2 "+
			"ORDER BY created_at DESC LIMIT $3",
		conversationId,
		upper,
		limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "query conversation messages")
	}
	defer rows.Close()

	messages := make([]Message, 0, limit)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan message")
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// ListConversations builds the derived conversation view for a user:
// the newest message of every thread the user participates in plus the
// count of unread messages addressed to them.
func (db *PgChatRepository) ListConversations(userId string) ([]ConversationSummary, error) {
	rows, err := db.conn.Query(
		"SELECT DISTINCT ON (conversation_id) "+messageColumns+" FROM messages "+
			"WHERE sender_id = $1 OR receiver_id = $1 "+
			"ORDER BY conversation_id, created_at DESC",
		userId,
	)
	if err != nil {
		return nil, errors.Wrap(err, "query conversations")
	}
	defer rows.Close()

	var summaries []ConversationSummary
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan last message")
		}
		summaries = append(summaries, ConversationSummary{
			ConversationId: msg.ConversationId,
			LastMessage:    msg,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "rows error")
	}

	unreadRows, err := db.conn.Query(
		"SELECT conversation_id, COUNT(*) FROM messages "+
			"WHERE receiver_id = $1 AND is_read = FALSE AND deleted = FALSE "+
			"GROUP BY conversation_id",
		userId,
	)
	if err != nil {
		return nil, errors.Wrap(err, "query unread counts")
	}
	defer unreadRows.Close()

	unread := make(map[string]int)
	for unreadRows.Next() {
		var (
			conversationId string
			count          int
		)
		if err := unreadRows.Scan(&conversationId, &count); err != nil {
			return nil, errors.Wrap(err, "scan unread count")
		}
		unread[conversationId] = count
	}
	if err := unreadRows.Err(); err != nil {
		return nil, errors.Wrap(err, "rows error")
	}

	for i := range summaries {
		summaries[i].UnreadCount = unread[summaries[i].ConversationId]
	}

	// newest conversations first
	sortSummaries(summaries)

	return summaries, nil
}

func sortSummaries(summaries []ConversationSummary) {
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LastMessage.CreatedAt.After(summaries[j].LastMessage.CreatedAt)
	})
}

func (db *PgChatRepository) SearchMessages(params SearchMessagesParams) ([]Message, int, error) {
	var (
		scopeClause string
		scopeArg    string
	)
	if params.ConversationId != "" {
		scopeClause = "conversation_id = $1"
		scopeArg = params.ConversationId
	} else {
		scopeClause = "(sender_id = $1 OR receiver_id = $1)"
		scopeArg = params.UserId
	}

	where := "WHERE " + scopeClause + " AND content ILIKE '%' || $2 || '%' AND deleted = FALSE"

	rows, err := db.conn.Query(
		"SELECT "+messageColumns+" FROM messages "+where+
			" ORDER BY created_at DESC LIMIT $3 OFFSET $4",
		scopeArg,
		params.Query,
		params.Limit,
		params.Offset,
	)
	if err != nil {
		return nil, 0, errors.Wrap(err, "search messages")
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, "scan message")
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, "rows error")
	}

	var total int
	row := db.conn.QueryRow("SELECT COUNT(*) FROM messages "+where, scopeArg, params.Query)
	if err := row.Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "count matches")
	}

	return messages, total, nil
}
