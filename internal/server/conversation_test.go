package server

import (
	"testing"

	"github.com/omnivibe/go-chatserver/internal/database"
	"github.com/omnivibe/go-chatserver/internal/stats"
	"github.com/omnivibe/go-chatserver/internal/types"
	"github.com/stretchr/testify/assert"
)

func Test_loadConversation(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	su.On("Incr", "NumActiveConversations").Once()
	defer su.AssertExpectations(t)

	cs := newTestChatServer(t, &database.MockChatRepository{}, su)

	conv := cs.loadConversation("a1_b1", "a1", "b1")
	assert.NotNil(t, conv, "expected a conversation to be loaded")
	assert.Equal(t, "a1_b1", conv.id, "expected the conversation id to be set")

	// a second load returns the same conversation without counting again
	again := cs.loadConversation("a1_b1", "a1", "b1")
	assert.Same(t, conv, again, "expected repeated loads to return the same conversation")
}

func Test_unloadIdleConversations(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	su.On("Incr", "NumActiveConversations").Times(2)
	su.On("Decr", "NumActiveConversations").Once()
	defer su.AssertExpectations(t)

	cs := newTestChatServer(t, &database.MockChatRepository{}, su)
	addTestClient(t, cs, "a1", "alice")

	cs.loadConversation("a1_b1", "a1", "b1")
	cs.loadConversation("b1_c1", "b1", "c1")

	cs.unloadIdleConversations()

	assert.Contains(t, cs.conversations, "a1_b1", "expected the conversation with an online participant to stay loaded")
	assert.NotContains(t, cs.conversations, "b1_c1", "expected the idle conversation to be unloaded")
}

func Test_broadcastToConversation(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	su.On("Incr", "NumActiveConversations").Once()
	defer su.AssertExpectations(t)

	cs := newTestChatServer(t, &database.MockChatRepository{}, su)
	alice := addTestClient(t, cs, "a1", "alice")
	bob := addTestClient(t, cs, "b1", "bob")

	conv := cs.loadConversation("a1_b1", "a1", "b1")
	cs.broadcastToConversation(conv, &ServerMessage{
		Notification: &Notification{
			Conversation: &ConversationUpdate{ConversationId: "a1_b1", LastMessage: &types.Message{Id: "m1"}},
		},
	})

	assert.Len(t, alice.send, 1, "expected both participants to receive the broadcast")
	assert.Len(t, bob.send, 1, "expected both participants to receive the broadcast")
}
