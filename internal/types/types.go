package types

import (
	"strings"
	"time"
)

// Message lifecycle statuses. Transitions only move forward:
// sent -> delivered -> read.
const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
)

// Message content types.
const (
	TypeText      = "text"
	TypeImage     = "image"
	TypeFile      = "file"
	TypeForwarded = "forwarded"
	TypeReply     = "reply"
)

// Presence statuses carried by connection entries and broadcasts.
const (
	PresenceOnline  = "online"
	PresenceAway    = "away"
	PresenceOffline = "offline"
)

// MaxContentLength is the maximum number of characters in a message body.
const MaxContentLength = 2000

type User struct {
	Id          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarUrl   string `json:"avatar_url,omitempty"`
}

type Message struct {
	Id              string            `json:"id"`
	SenderId        string            `json:"sender_id"`
	ReceiverId      string            `json:"receiver_id"`
	ConversationId  string            `json:"conversation_id"`
	Content         string            `json:"content"`
	MessageType     string            `json:"message_type"`
	Status          string            `json:"status"`
	IsRead          bool              `json:"is_read"`
	ReadAt          *time.Time        `json:"read_at,omitempty"`
	ReplyTo         string            `json:"reply_to,omitempty"`
	OriginalMessage string            `json:"original_message,omitempty"`
	Reactions       map[string]string `json:"reactions,omitempty"`
	Edited          bool              `json:"edited,omitempty"`
	EditedAt        *time.Time        `json:"edited_at,omitempty"`
	Deleted         bool              `json:"deleted,omitempty"`
	DeletedAt       *time.Time        `json:"deleted_at,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Conversation is a derived view over the messages sharing a
// conversation id; it is never stored independently.
type Conversation struct {
	Id          string  `json:"id"`
	LastMessage Message `json:"last_message"`
	UnreadCount int     `json:"unread_count"`
}

// ConversationId derives the canonical thread id for a pair of
// participants. The ids are sorted lexicographically before joining, so
// the result is identical regardless of who sent the first message.
func ConversationId(userA, userB string) string {
	if strings.Compare(userA, userB) > 0 {
		userA, userB = userB, userA
	}
	return userA + "_" + userB
}

// StatusRank orders lifecycle statuses for monotonicity checks. Unknown
// statuses rank below sent.
func StatusRank(status string) int {
	switch status {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	default:
		return 0
	}
}

// ValidPresenceStatus reports whether s is a recognized presence status.
func ValidPresenceStatus(s string) bool {
	switch s {
	case PresenceOnline, PresenceAway, PresenceOffline:
		return true
	}
	return false
}

// ValidMessageType reports whether t is one of the supported content types.
func ValidMessageType(t string) bool {
	switch t {
	case TypeText, TypeImage, TypeFile, TypeForwarded, TypeReply:
		return true
	}
	return false
}
