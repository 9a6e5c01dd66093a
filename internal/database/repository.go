package database

import "time"

type ChatRepository interface {
	Ping() error
	GetUserById(id string) (User, error)
	CreateMessage(params CreateMessageParams) (Message, error)
	GetMessageById(id string) (Message, error)
	MarkMessageDelivered(id string) (Message, error)
	MarkMessageRead(id string, readAt time.Time) (Message, error)
	SetReaction(id, userId, reaction string) (Message, error)
	UpdateMessageContent(id, content string, editedAt time.Time) (Message, error)
	SoftDeleteMessage(id string, deletedAt time.Time) (Message, error)
	GetConversationMessages(conversationId string, before *time.Time, limit int) ([]Message, error)
	ListConversations(userId string) ([]ConversationSummary, error)
	SearchMessages(params SearchMessagesParams) ([]Message, int, error)
}
