package server

import (
	"github.com/omnivibe/go-chatserver/internal/types"
)

// handleIdentify registers the connection in the presence registry.
// The user's first connection triggers an online broadcast to everyone
// else; further connections for the same user are silent.
func (cs *ChatServer) handleIdentify(msg *ClientMessage) {
	c := msg.client

	userId := msg.Identify.UserId
	if userId == "" {
		userId = c.user.Id
	}
	if userId == "" {
		c.queueMessage(ErrValidation(msg.Id, "user_id is required"))
		return
	}
	if c.user.Id != "" && userId != c.user.Id {
		c.queueMessage(ErrValidation(msg.Id, "user_id does not match connection"))
		return
	}

	username := msg.Identify.Username
	if username == "" {
		username = c.user.Username
	}

	entry, first := cs.presence.Register(c.connId, userId, username)
	c.user.Id = userId
	c.user.Username = username
	c.identified = true
	cs.addUserClient(c)

	if first {
		cs.stats.Incr(statNumOnlineUsers)
		cs.broadcast(&ServerMessage{
			BaseMessage: BaseMessage{
				Timestamp: Now(),
			},
			Notification: &Notification{
				Presence: &Presence{
					UserId:   entry.UserId,
					Username: entry.Username,
					Online:   true,
					Status:   entry.Status,
					LastSeen: entry.LastSeen,
				},
			},
			SkipClient: c,
		})
	}

	c.queueMessage(NoErrOK(msg.Id, map[string]any{
		"connection_id": entry.ConnectionId,
		"online_users":  cs.presence.OnlineUsers(),
	}))
}

// handleSend persists the message, delivers it to the receiver's live
// connections, and confirms to the sender with the final status. The
// confirmation carries status delivered when the receiver was online
// and sent otherwise.
func (cs *ChatServer) handleSend(msg *ClientMessage) {
	c := msg.client

	sent, err := cs.store.Send(c.user.Id, msg.Send.ReceiverId, msg.Send.Content, msg.Send.MessageType, msg.Send.ReplyTo)
	if err != nil {
		cs.log.Println("send:", err)
		c.queueMessage(errResponse(msg.Id, err))
		return
	}
	cs.stats.Incr(statMessagesSent)

	sent = cs.deliver(sent)

	c.queueMessage(NoErrOK(msg.Id, map[string]any{"message": sent}))

	conv := cs.loadConversation(sent.ConversationId, sent.SenderId, sent.ReceiverId)
	cs.broadcastToConversation(conv, &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Notification: &Notification{
			Conversation: &ConversationUpdate{
				ConversationId: sent.ConversationId,
				LastMessage:    &sent,
			},
		},
	})
}

// deliver pushes a freshly stored message to the receiver. The message
// is marked delivered only when the receiver has at least one live
// connection.
func (cs *ChatServer) deliver(sent types.Message) types.Message {
	if !cs.presence.IsOnline(sent.ReceiverId) {
		cs.stats.Incr(statDeliveryMisses)
		return sent
	}

	delivered, err := cs.store.MarkDelivered(sent.Id)
	if err != nil {
		cs.log.Println("mark delivered:", err)
		delivered = sent
	}

	pushed := cs.Push(sent.ReceiverId, &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Message: &delivered,
	})
	if pushed {
		cs.stats.Incr(statMessagesDelivered)
	} else {
		cs.stats.Incr(statDeliveryMisses)
	}

	return delivered
}

// handleMarkRead marks a message read on behalf of the connection's
// user and sends the sender a read receipt if they are online.
func (cs *ChatServer) handleMarkRead(msg *ClientMessage) {
	c := msg.client

	read, err := cs.store.MarkRead(msg.MarkRead.MessageId, c.user.Id)
	if err != nil {
		cs.log.Println("mark read:", err)
		c.queueMessage(errResponse(msg.Id, err))
		return
	}
	cs.stats.Incr(statMessagesRead)

	c.queueMessage(NoErrOK(msg.Id, map[string]any{"message": read}))

	if read.SenderId == c.user.Id || !cs.presence.IsOnline(read.SenderId) {
		return
	}

	readAt := Now()
	if read.ReadAt != nil {
		readAt = *read.ReadAt
	}
	cs.Push(read.SenderId, &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Notification: &Notification{
			Read: &ReadReceipt{
				MessageId:      read.Id,
				ConversationId: read.ConversationId,
				ReaderId:       c.user.Id,
				ReadAt:         readAt,
			},
		},
	})
}

// handleReact upserts the caller's reaction and notifies the rest of
// the conversation.
func (cs *ChatServer) handleReact(msg *ClientMessage) {
	c := msg.client

	updated, err := cs.store.AddReaction(msg.React.MessageId, c.user.Id, msg.React.Reaction)
	if err != nil {
		cs.log.Println("react:", err)
		c.queueMessage(errResponse(msg.Id, err))
		return
	}

	c.queueMessage(NoErrOK(msg.Id, map[string]any{"message": updated}))

	conv := cs.loadConversation(updated.ConversationId, updated.SenderId, updated.ReceiverId)
	cs.broadcastToConversation(conv, &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Notification: &Notification{
			Reaction: &ReactionChange{
				MessageId:      updated.Id,
				ConversationId: updated.ConversationId,
				UserId:         c.user.Id,
				Reaction:       msg.React.Reaction,
				Reactions:      updated.Reactions,
			},
		},
		SkipClient: c,
	})
}

// handleForward forwards a message to each target independently and
// reports per-target results back to the caller.
func (cs *ChatServer) handleForward(msg *ClientMessage) {
	c := msg.client

	forwarded, errs := cs.store.Forward(msg.Forward.MessageId, msg.Forward.Targets, c.user.Id)
	if len(forwarded) == 0 && len(errs) > 0 {
		cs.log.Println("forward:", errs[0])
		c.queueMessage(errResponse(msg.Id, errs[0]))
		return
	}

	for i := range forwarded {
		cs.stats.Incr(statMessagesSent)
		forwarded[i] = cs.deliver(forwarded[i])
	}

	errStrings := make([]string, 0, len(errs))
	for _, err := range errs {
		cs.log.Println("forward:", err)
		errStrings = append(errStrings, err.Error())
	}

	c.queueMessage(NoErrOK(msg.Id, map[string]any{
		"forwarded": forwarded,
		"errors":    errStrings,
	}))
}

// handleEdit replaces the content of a message the connection's user
// sent and broadcasts the updated message to the conversation.
func (cs *ChatServer) handleEdit(msg *ClientMessage) {
	c := msg.client

	updated, err := cs.store.Edit(msg.Edit.MessageId, c.user.Id, msg.Edit.Content)
	if err != nil {
		cs.log.Println("edit:", err)
		c.queueMessage(errResponse(msg.Id, err))
		return
	}

	c.queueMessage(NoErrOK(msg.Id, map[string]any{"message": updated}))

	conv := cs.loadConversation(updated.ConversationId, updated.SenderId, updated.ReceiverId)
	cs.broadcastToConversation(conv, &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Notification: &Notification{
			Update: &MessageUpdate{
				MessageId:      updated.Id,
				ConversationId: updated.ConversationId,
				Message:        &updated,
			},
		},
		SkipClient: c,
	})
}

// handleDelete soft-deletes a message the connection's user sent and
// broadcasts the removal to the conversation.
func (cs *ChatServer) handleDelete(msg *ClientMessage) {
	c := msg.client

	deleted, err := cs.store.Delete(msg.Delete.MessageId, c.user.Id)
	if err != nil {
		cs.log.Println("delete:", err)
		c.queueMessage(errResponse(msg.Id, err))
		return
	}

	c.queueMessage(NoErrOK(msg.Id, map[string]any{"message": deleted}))

	conv := cs.loadConversation(deleted.ConversationId, deleted.SenderId, deleted.ReceiverId)
	cs.broadcastToConversation(conv, &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Notification: &Notification{
			Update: &MessageUpdate{
				MessageId:      deleted.Id,
				ConversationId: deleted.ConversationId,
				Deleted:        true,
				Message:        &deleted,
			},
		},
		SkipClient: c,
	})
}

// handleMessageStatus replays a status update for a message, typically
// from a client reconciling after a reconnect. Forward moves and no-ops
// are accepted; a downgrade is reported as a conflict, never applied.
func (cs *ChatServer) handleMessageStatus(msg *ClientMessage) {
	c := msg.client

	if _, err := cs.store.SetStatus(msg.MessageStatus.MessageId, msg.MessageStatus.Status); err != nil {
		cs.log.Println("message status:", err)
		c.queueMessage(errResponse(msg.Id, err))
		return
	}

	c.queueMessage(NoErrAccepted(msg.Id))
}

// handleTyping relays a typing indicator to the receiver. Indicators
// are transient: nothing is stored and offline receivers miss them.
func (cs *ChatServer) handleTyping(msg *ClientMessage) {
	c := msg.client

	if msg.Typing.ReceiverId == "" {
		c.queueMessage(ErrValidation(msg.Id, "receiver_id is required"))
		return
	}

	if !cs.presence.IsOnline(msg.Typing.ReceiverId) {
		return
	}

	cs.Push(msg.Typing.ReceiverId, &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Notification: &Notification{
			Typing: &TypingNotification{
				ConversationId: types.ConversationId(c.user.Id, msg.Typing.ReceiverId),
				UserId:         c.user.Id,
				Started:        msg.Typing.Started,
			},
		},
	})
}

// handleSetStatus updates the connection's presence status and
// broadcasts the change.
func (cs *ChatServer) handleSetStatus(msg *ClientMessage) {
	c := msg.client

	status := msg.SetStatus.Status
	if !types.ValidPresenceStatus(status) {
		c.queueMessage(ErrValidation(msg.Id, "unknown presence status"))
		return
	}

	entry, ok := cs.presence.SetStatus(c.connId, status)
	if !ok {
		c.queueMessage(ErrInternalError(msg.Id))
		return
	}

	cs.broadcast(&ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Notification: &Notification{
			Presence: &Presence{
				UserId:   entry.UserId,
				Username: entry.Username,
				Online:   true,
				Status:   entry.Status,
				LastSeen: entry.LastSeen,
			},
		},
		SkipClient: c,
	})

	c.queueMessage(NoErrOK(msg.Id, map[string]any{"status": entry}))
}
