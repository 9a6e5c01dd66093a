package database

import (
	"time"

	"github.com/stretchr/testify/mock"
)

type MockChatRepository struct {
	mock.Mock
}

func (m *MockChatRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockChatRepository) GetUserById(id string) (User, error) {
	args := m.Called(id)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	args := m.Called(params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockChatRepository) GetMessageById(id string) (Message, error) {
	args := m.Called(id)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockChatRepository) MarkMessageDelivered(id string) (Message, error) {
	args := m.Called(id)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockChatRepository) MarkMessageRead(id string, readAt time.Time) (Message, error) {
	args := m.Called(id, readAt)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockChatRepository) SetReaction(id, userId, reaction string) (Message, error) {
	args := m.Called(id, userId, reaction)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockChatRepository) UpdateMessageContent(id, content string, editedAt time.Time) (Message, error) {
	args := m.Called(id, content, editedAt)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockChatRepository) SoftDeleteMessage(id string, deletedAt time.Time) (Message, error) {
	args := m.Called(id, deletedAt)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockChatRepository) GetConversationMessages(conversationId string, before *time.Time, limit int) ([]Message, error) {
	args := m.Called(conversationId, before, limit)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockChatRepository) ListConversations(userId string) ([]ConversationSummary, error) {
	args := m.Called(userId)
	return args.Get(0).([]ConversationSummary), args.Error(1)
}
func (m *MockChatRepository) SearchMessages(params SearchMessagesParams) ([]Message, int, error) {
	args := m.Called(params)
	return args.Get(0).([]Message), args.Int(1), args.Error(2)
}
