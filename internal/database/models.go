package database

import "time"

type User struct {
	Id          string
	Username    string
	DisplayName string
	AvatarUrl   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Message struct {
	Id              string
	SenderId        string
	ReceiverId      string
	ConversationId  string
	Content         string
	MessageType     string
	Status          string
	IsRead          bool
	ReadAt          *time.Time
	ReplyTo         string
	OriginalMessage string
	Reactions       map[string]string
	Edited          bool
	EditedAt        *time.Time
	Deleted         bool
	DeletedAt       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type CreateMessageParams struct {
	Id              string
	SenderId        string
	ReceiverId      string
	ConversationId  string
	Content         string
	MessageType     string
	ReplyTo         string
	OriginalMessage string
}

// ConversationSummary is the derived per-thread view: the newest
// message plus the number of unread messages addressed to the user the
// listing was built for.
type ConversationSummary struct {
	ConversationId string
	LastMessage    Message
	UnreadCount    int
}

type SearchMessagesParams struct {
	// Exactly one of ConversationId or UserId scopes the search.
	ConversationId string
	UserId         string
	Query          string
	Limit          int
	Offset         int
}
