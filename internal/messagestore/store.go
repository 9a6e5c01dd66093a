package messagestore

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/omnivibe/go-chatserver/internal/database"
	"github.com/omnivibe/go-chatserver/internal/types"
	"github.com/teris-io/shortid"
)

const defaultPageSize = 20

// Store validates, persists, and retrieves messages and enforces the
// forward-only status state machine on top of the repository.
type Store struct {
	log        *log.Logger
	db         database.ChatRepository
	generateId func() (string, error)
}

func NewStore(logger *log.Logger, db database.ChatRepository) *Store {
	return &Store{
		log:        logger,
		db:         db,
		generateId: shortid.Generate,
	}
}

// Send validates and persists a new message with status sent. The
// conversation id is derived from the participant pair, never taken
// from the caller.
func (s *Store) Send(senderId, receiverId, content, messageType, replyTo string) (types.Message, error) {
	if senderId == "" || receiverId == "" {
		return types.Message{}, newValidationError("sender and receiver are required")
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return types.Message{}, newValidationError("content is required")
	}
	if utf8.RuneCountInString(content) > types.MaxContentLength {
		return types.Message{}, newValidationError(fmt.Sprintf("content exceeds %d characters", types.MaxContentLength))
	}

	if messageType == "" {
		messageType = types.TypeText
	}
	if !types.ValidMessageType(messageType) {
		return types.Message{}, newValidationError(fmt.Sprintf("unsupported message type %q", messageType))
	}

	conversationId := types.ConversationId(senderId, receiverId)

	if replyTo != "" {
		parent, err := s.db.GetMessageById(replyTo)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return types.Message{}, newValidationError("reply target does not exist")
			}
			return types.Message{}, fmt.Errorf("fetch reply target: %w", err)
		}
		if parent.ConversationId != conversationId {
			return types.Message{}, newValidationError("reply target belongs to another conversation")
		}
		messageType = types.TypeReply
	}

	id, err := s.generateId()
	if err != nil {
		return types.Message{}, fmt.Errorf("generate message id: %w", err)
	}

	msg, err := s.db.CreateMessage(database.CreateMessageParams{
		Id:             id,
		SenderId:       senderId,
		ReceiverId:     receiverId,
		ConversationId: conversationId,
		Content:        content,
		MessageType:    messageType,
		ReplyTo:        replyTo,
	})
	if err != nil {
		return types.Message{}, fmt.Errorf("create message: %w", err)
	}

	return toTypesMessage(msg), nil
}

// MarkDelivered advances a message from sent to delivered. Calling it
// on a message that is already delivered or read is a no-op; the status
// never regresses.
func (s *Store) MarkDelivered(messageId string) (types.Message, error) {
	msg, err := s.getMessage(messageId)
	if err != nil {
		return types.Message{}, err
	}

	if types.StatusRank(msg.Status) >= types.StatusRank(types.StatusDelivered) {
		return toTypesMessage(msg), nil
	}

	updated, err := s.db.MarkMessageDelivered(messageId)
	if err != nil {
		return types.Message{}, fmt.Errorf("mark delivered: %w", err)
	}

	return toTypesMessage(updated), nil
}

// MarkRead moves a message to read and stamps readAt. Reading an
// already-read message is a no-op.
func (s *Store) MarkRead(messageId, readerId string) (types.Message, error) {
	if readerId == "" {
		return types.Message{}, newValidationError("reader id is required")
	}

	msg, err := s.getMessage(messageId)
	if err != nil {
		return types.Message{}, err
	}

	if msg.Status == types.StatusRead {
		return toTypesMessage(msg), nil
	}

	updated, err := s.db.MarkMessageRead(messageId, time.Now().UTC())
	if err != nil {
		return types.Message{}, fmt.Errorf("mark read: %w", err)
	}

	return toTypesMessage(updated), nil
}

// SetStatus applies an arbitrary status transition, rejecting backward
// moves. The gateway uses MarkDelivered/MarkRead; this exists for
// callers replaying status updates.
func (s *Store) SetStatus(messageId, status string) (types.Message, error) {
	if types.StatusRank(status) == 0 {
		return types.Message{}, newValidationError(fmt.Sprintf("unknown status %q", status))
	}

	msg, err := s.getMessage(messageId)
	if err != nil {
		return types.Message{}, err
	}

	if types.StatusRank(status) < types.StatusRank(msg.Status) {
		return types.Message{}, ErrStatusRegression
	}

	switch status {
	case types.StatusDelivered:
		return s.MarkDelivered(messageId)
	case types.StatusRead:
		return s.MarkRead(messageId, msg.ReceiverId)
	default:
		return toTypesMessage(msg), nil
	}
}

// AddReaction upserts the caller's reaction on a message. A user holds
// at most one reaction per message; a second reaction replaces the
// first.
func (s *Store) AddReaction(messageId, userId, reaction string) (types.Message, error) {
	if userId == "" || reaction == "" {
		return types.Message{}, newValidationError("user and reaction are required")
	}

	if _, err := s.getMessage(messageId); err != nil {
		return types.Message{}, err
	}

	updated, err := s.db.SetReaction(messageId, userId, reaction)
	if err != nil {
		return types.Message{}, fmt.Errorf("set reaction: %w", err)
	}

	return toTypesMessage(updated), nil
}

// Forward copies a message to each target as a new forwarded message.
// Targets are processed independently; one failure does not abort the
// rest. The returned errors slice holds one entry per failed target.
func (s *Store) Forward(originalMessageId string, targets []string, senderId string) ([]types.Message, []error) {
	if senderId == "" {
		return nil, []error{newValidationError("sender id is required")}
	}
	if len(targets) == 0 {
		return nil, []error{newValidationError("no forward targets")}
	}

	original, err := s.getMessage(originalMessageId)
	if err != nil {
		return nil, []error{err}
	}

	var (
		forwarded []types.Message
		errs      []error
	)
	for _, target := range targets {
		if target == "" {
			errs = append(errs, newValidationError("empty forward target"))
			continue
		}

		id, err := s.generateId()
		if err != nil {
			errs = append(errs, fmt.Errorf("forward to %q: %w", target, err))
			continue
		}

		msg, err := s.db.CreateMessage(database.CreateMessageParams{
			Id:              id,
			SenderId:        senderId,
			ReceiverId:      target,
			ConversationId:  types.ConversationId(senderId, target),
			Content:         original.Content,
			MessageType:     types.TypeForwarded,
			OriginalMessage: originalMessageId,
		})
		if err != nil {
			s.log.Printf("forward to %q: %v", target, err)
			errs = append(errs, fmt.Errorf("forward to %q: %w", target, err))
			continue
		}

		forwarded = append(forwarded, toTypesMessage(msg))
	}

	return forwarded, errs
}

// Edit replaces the content of a message the caller sent. Deleted
// messages cannot be edited.
func (s *Store) Edit(messageId, editorId, content string) (types.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return types.Message{}, newValidationError("content is required")
	}
	if utf8.RuneCountInString(content) > types.MaxContentLength {
		return types.Message{}, newValidationError(fmt.Sprintf("content exceeds %d characters", types.MaxContentLength))
	}

	msg, err := s.getMessage(messageId)
	if err != nil {
		return types.Message{}, err
	}
	if msg.SenderId != editorId {
		return types.Message{}, ErrNotSender
	}
	if msg.Deleted {
		return types.Message{}, newValidationError("message is deleted")
	}

	updated, err := s.db.UpdateMessageContent(messageId, content, time.Now().UTC())
	if err != nil {
		return types.Message{}, fmt.Errorf("update content: %w", err)
	}

	return toTypesMessage(updated), nil
}

// Delete soft-deletes a message the caller sent. The record survives
// for history queries that explicitly include it.
func (s *Store) Delete(messageId, userId string) (types.Message, error) {
	msg, err := s.getMessage(messageId)
	if err != nil {
		return types.Message{}, err
	}
	if msg.SenderId != userId {
		return types.Message{}, ErrNotSender
	}
	if msg.Deleted {
		return toTypesMessage(msg), nil
	}

	updated, err := s.db.SoftDeleteMessage(messageId, time.Now().UTC())
	if err != nil {
		return types.Message{}, fmt.Errorf("soft delete: %w", err)
	}

	return toTypesMessage(updated), nil
}

// Scope selects what a search runs over: a single conversation or all
// of a user's conversations.
type Scope struct {
	ConversationId string
	UserId         string
}

type SearchResult struct {
	Messages []types.Message `json:"messages"`
	Total    int             `json:"total"`
	Page     int             `json:"page"`
	Pages    int             `json:"pages"`
}

// Search runs a case-insensitive substring match over message content,
// excluding soft-deleted messages, newest first.
func (s *Store) Search(scope Scope, query string, page, pageSize int) (SearchResult, error) {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < 2 {
		return SearchResult{}, newValidationError("search query must be at least 2 characters")
	}
	if scope.ConversationId == "" && scope.UserId == "" {
		return SearchResult{}, newValidationError("search scope is required")
	}

	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	msgs, total, err := s.db.SearchMessages(database.SearchMessagesParams{
		ConversationId: scope.ConversationId,
		UserId:         scope.UserId,
		Query:          query,
		Limit:          pageSize,
		Offset:         (page - 1) * pageSize,
	})
	if err != nil {
		return SearchResult{}, fmt.Errorf("search messages: %w", err)
	}

	result := SearchResult{
		Messages: make([]types.Message, 0, len(msgs)),
		Total:    total,
		Page:     page,
		Pages:    (total + pageSize - 1) / pageSize,
	}
	for _, msg := range msgs {
		result.Messages = append(result.Messages, toTypesMessage(msg))
	}

	return result, nil
}

// ConversationMessages returns a page of a conversation's history,
// newest first, optionally bounded by a created-at cursor.
func (s *Store) ConversationMessages(conversationId string, before *time.Time, limit int) ([]types.Message, error) {
	if conversationId == "" {
		return nil, newValidationError("conversation id is required")
	}

	msgs, err := s.db.GetConversationMessages(conversationId, before, limit)
	if err != nil {
		return nil, fmt.Errorf("conversation messages: %w", err)
	}

	out := make([]types.Message, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, toTypesMessage(msg))
	}

	return out, nil
}

// Conversations returns the derived per-thread view for a user.
func (s *Store) Conversations(userId string) ([]types.Conversation, error) {
	if userId == "" {
		return nil, newValidationError("user id is required")
	}

	summaries, err := s.db.ListConversations(userId)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	out := make([]types.Conversation, 0, len(summaries))
	for _, sum := range summaries {
		out = append(out, types.Conversation{
			Id:          sum.ConversationId,
			LastMessage: toTypesMessage(sum.LastMessage),
			UnreadCount: sum.UnreadCount,
		})
	}

	return out, nil
}

func (s *Store) getMessage(messageId string) (database.Message, error) {
	if messageId == "" {
		return database.Message{}, newValidationError("message id is required")
	}

	msg, err := s.db.GetMessageById(messageId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.Message{}, ErrMessageNotFound
		}
		return database.Message{}, fmt.Errorf("get message: %w", err)
	}

	return msg, nil
}

func toTypesMessage(msg database.Message) types.Message {
	return types.Message{
		Id:              msg.Id,
		SenderId:        msg.SenderId,
		ReceiverId:      msg.ReceiverId,
		ConversationId:  msg.ConversationId,
		Content:         msg.Content,
		MessageType:     msg.MessageType,
		Status:          msg.Status,
		IsRead:          msg.IsRead,
		ReadAt:          msg.ReadAt,
		ReplyTo:         msg.ReplyTo,
		OriginalMessage: msg.OriginalMessage,
		Reactions:       msg.Reactions,
		Edited:          msg.Edited,
		EditedAt:        msg.EditedAt,
		Deleted:         msg.Deleted,
		DeletedAt:       msg.DeletedAt,
		CreatedAt:       msg.CreatedAt,
		UpdatedAt:       msg.UpdatedAt,
	}
}
