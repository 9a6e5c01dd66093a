package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/omnivibe/go-chatserver/internal/messagestore"
	"github.com/omnivibe/go-chatserver/internal/types"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientMessage is the envelope for everything a connection sends.
// Exactly one of the operation fields is set; messages with none set
// are ignored.
type ClientMessage struct {
	BaseMessage
	Identify      *Identify      `json:"identify,omitempty"`
	Send          *Send          `json:"send,omitempty"`
	Typing        *Typing        `json:"typing,omitempty"`
	MarkRead      *MarkRead      `json:"mark_read,omitempty"`
	React         *React         `json:"react,omitempty"`
	Forward       *Forward       `json:"forward,omitempty"`
	Edit          *Edit          `json:"edit,omitempty"`
	Delete        *Delete        `json:"delete,omitempty"`
	MessageStatus *MessageStatus `json:"message_status,omitempty"`
	SetStatus     *SetStatus     `json:"set_status,omitempty"`
	client        *Client        `json:"-"`
}

// Identify announces who owns the connection. Until a connection
// identifies, every other operation is rejected.
type Identify struct {
	UserId   string `json:"user_id"`
	Username string `json:"username"`
}

type Send struct {
	ReceiverId  string `json:"receiver_id"`
	Content     string `json:"content"`
	MessageType string `json:"message_type,omitempty"`
	ReplyTo     string `json:"reply_to,omitempty"`
}

type Typing struct {
	ReceiverId string `json:"receiver_id"`
	Started    bool   `json:"started"`
}

type MarkRead struct {
	MessageId string `json:"message_id"`
}

type React struct {
	MessageId string `json:"message_id"`
	Reaction  string `json:"reaction"`
}

type Forward struct {
	MessageId string   `json:"message_id"`
	Targets   []string `json:"targets"`
}

type Edit struct {
	MessageId string `json:"message_id"`
	Content   string `json:"content"`
}

type Delete struct {
	MessageId string `json:"message_id"`
}

// MessageStatus replays a delivery-status update for a message, for
// clients reconciling state after a reconnect.
type MessageStatus struct {
	MessageId string `json:"message_id"`
	Status    string `json:"status"`
}

type SetStatus struct {
	Status string `json:"status"`
}

// ServerMessage is the envelope for everything the server sends. UserId
// addresses a broadcast to one user's connections; empty means every
// connection. SkipClient excludes the originating connection.
type ServerMessage struct {
	BaseMessage
	Response     *Response      `json:"response,omitempty"`
	Message      *types.Message `json:"message,omitempty"`
	Notification *Notification  `json:"notification,omitempty"`
	UserId       string         `json:"-"`
	SkipClient   *Client        `json:"-"`
}

type Response struct {
	ResponseCode int    `json:"response_code"`
	Error        string `json:"error,omitempty"`
	Data         any    `json:"data,omitempty"`
}

type Notification struct {
	Presence     *Presence           `json:"presence,omitempty"`
	Typing       *TypingNotification `json:"typing,omitempty"`
	Read         *ReadReceipt        `json:"read,omitempty"`
	Reaction     *ReactionChange     `json:"reaction,omitempty"`
	Update       *MessageUpdate      `json:"update,omitempty"`
	Conversation *ConversationUpdate `json:"conversation,omitempty"`
}

type Presence struct {
	UserId   string    `json:"user_id"`
	Username string    `json:"username,omitempty"`
	Online   bool      `json:"online"`
	Status   string    `json:"status"`
	LastSeen time.Time `json:"last_seen"`
}

type TypingNotification struct {
	ConversationId string `json:"conversation_id"`
	UserId         string `json:"user_id"`
	Started        bool   `json:"started"`
}

type ReadReceipt struct {
	MessageId      string    `json:"message_id"`
	ConversationId string    `json:"conversation_id"`
	ReaderId       string    `json:"reader_id"`
	ReadAt         time.Time `json:"read_at"`
}

type ReactionChange struct {
	MessageId      string            `json:"message_id"`
	ConversationId string            `json:"conversation_id"`
	UserId         string            `json:"user_id"`
	Reaction       string            `json:"reaction"`
	Reactions      map[string]string `json:"reactions"`
}

// MessageUpdate announces an edit or soft-delete of an existing
// message to the rest of the conversation.
type MessageUpdate struct {
	MessageId      string         `json:"message_id"`
	ConversationId string         `json:"conversation_id"`
	Deleted        bool           `json:"deleted,omitempty"`
	Message        *types.Message `json:"message"`
}

type ConversationUpdate struct {
	ConversationId string         `json:"conversation_id"`
	LastMessage    *types.Message `json:"last_message"`
}

func NoErrOK(id int, data any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusOK,
			Data:         data,
		},
	}
}

func NoErrAccepted(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusAccepted,
		},
	}
}

func ErrMessageNotFound(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusNotFound,
			Error:        "message not found",
		},
	}
}

func ErrValidation(id int, reason string) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusBadRequest,
			Error:        reason,
		},
	}
}

func ErrUnidentified(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusUnauthorized,
			Error:        "connection is not identified",
		},
	}
}

func ErrForbidden(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusForbidden,
			Error:        "not allowed",
		},
	}
}

func ErrConflict(id int, reason string) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusConflict,
			Error:        reason,
		},
	}
}

func ErrInternalError(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusInternalServerError,
			Error:        "internal server error",
		},
	}
}

func ErrInvalidMessage(id int) *ServerMessage {
	msg := &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusBadRequest,
			Error:        "invalid message format",
		},
	}

	if id > 0 {
		msg.Id = id
	}
	return msg
}

// errResponse maps a store error onto a response for the originating
// connection.
func errResponse(id int, err error) *ServerMessage {
	switch {
	case messagestore.IsValidation(err):
		return ErrValidation(id, err.Error())
	case errors.Is(err, messagestore.ErrMessageNotFound):
		return ErrMessageNotFound(id)
	case errors.Is(err, messagestore.ErrNotSender):
		return ErrForbidden(id)
	case errors.Is(err, messagestore.ErrStatusRegression):
		return ErrConflict(id, err.Error())
	default:
		return ErrInternalError(id)
	}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
