package server

// Conversation is a live view of a two-party thread. Conversations are
// loaded lazily when traffic touches them and unloaded once neither
// participant is online; the durable state lives in the message store.
type Conversation struct {
	id           string
	participants [2]string
}

// loadConversation returns the live conversation for id, creating it on
// first use.
func (cs *ChatServer) loadConversation(id, userA, userB string) *Conversation {
	cs.convsLock.Lock()
	defer cs.convsLock.Unlock()

	if conv, ok := cs.conversations[id]; ok {
		return conv
	}

	conv := &Conversation{
		id:           id,
		participants: [2]string{userA, userB},
	}
	cs.conversations[id] = conv
	cs.stats.Incr(statNumActiveConversations)
	cs.log.Printf("loaded conversation %q", id)

	return conv
}

// unloadIdleConversations drops every loaded conversation with no
// online participant. Called when a user goes offline.
func (cs *ChatServer) unloadIdleConversations() {
	cs.convsLock.Lock()
	defer cs.convsLock.Unlock()

	for id, conv := range cs.conversations {
		if cs.presence.IsOnline(conv.participants[0]) || cs.presence.IsOnline(conv.participants[1]) {
			continue
		}

		delete(cs.conversations, id)
		cs.stats.Decr(statNumActiveConversations)
		cs.log.Printf("unloaded conversation %q", id)
	}
}

// broadcastToConversation pushes a message to every live connection of
// both participants, honoring SkipClient.
func (cs *ChatServer) broadcastToConversation(conv *Conversation, msg *ServerMessage) {
	for _, userId := range conv.participants {
		cs.Push(userId, msg)
	}
}
