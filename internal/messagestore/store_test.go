package messagestore

import (
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/omnivibe/go-chatserver/internal/database"
	"github.com/omnivibe/go-chatserver/internal/testutil"
	"github.com/omnivibe/go-chatserver/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func newTestStore(t *testing.T, db database.ChatRepository) *Store {
	t.Helper()

	s := NewStore(testutil.TestLogger(t), db)
	ids := 0
	s.generateId = func() (string, error) {
		ids++
		return "msg-" + strings.Repeat("x", ids), nil
	}
	return s
}

func TestSend_Validation(t *testing.T) {
	tcases := []struct {
		name       string
		senderId   string
		receiverId string
		content    string
		msgType    string
	}{
		{
			name:       "missing sender",
			receiverId: "b1",
			content:    "hi",
		},
		{
			name:     "missing receiver",
			senderId: "a1",
			content:  "hi",
		},
		{
			name:       "empty content",
			senderId:   "a1",
			receiverId: "b1",
			content:    "",
		},
		{
			name:       "whitespace content",
			senderId:   "a1",
			receiverId: "b1",
			content:    "   \t\n",
		},
		{
			name:       "content too long",
			senderId:   "a1",
			receiverId: "b1",
			content:    strings.Repeat("x", types.MaxContentLength+1),
		},
		{
			name:       "unsupported message type",
			senderId:   "a1",
			receiverId: "b1",
			content:    "hi",
			msgType:    "sticker",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			db := &database.MockChatRepository{}
			defer db.AssertExpectations(t)

			s := newTestStore(t, db)
			_, err := s.Send(tc.senderId, tc.receiverId, tc.content, tc.msgType, "")
			assert.Error(t, err, "expected validation error")
			assert.True(t, IsValidation(err), "expected ValidationError, got %v", err)
		})
	}
}

func TestSend(t *testing.T) {
	db := &database.MockChatRepository{}
	defer db.AssertExpectations(t)

	db.On("CreateMessage", mock.MatchedBy(func(p database.CreateMessageParams) bool {
		return p.SenderId == "b1" &&
			p.ReceiverId == "a1" &&
			p.ConversationId == "a1_b1" &&
			p.Content == "hello" &&
			p.MessageType == types.TypeText
	})).Return(database.Message{
		Id:             "msg-x",
		SenderId:       "b1",
		ReceiverId:     "a1",
		ConversationId: "a1_b1",
		Content:        "hello",
		MessageType:    types.TypeText,
		Status:         types.StatusSent,
	}, nil).Once()

	s := newTestStore(t, db)
	msg, err := s.Send("b1", "a1", "  hello  ", "", "")
	assert.NoError(t, err, "expected send to succeed")
	assert.Equal(t, types.StatusSent, msg.Status, "expected initial status sent")
	assert.Equal(t, "a1_b1", msg.ConversationId, "expected canonical conversation id regardless of direction")
	assert.Equal(t, "hello", msg.Content, "expected content to be trimmed")
}

func TestSend_ReplyTargetChecks(t *testing.T) {
	t.Run("reply target missing", func(t *testing.T) {
		db := &database.MockChatRepository{}
		defer db.AssertExpectations(t)
		db.On("GetMessageById", "gone").Return(database.Message{}, sql.ErrNoRows).Once()

		s := newTestStore(t, db)
		_, err := s.Send("a1", "b1", "hi", "", "gone")
		assert.True(t, IsValidation(err), "expected validation error for missing reply target, got %v", err)
	})

	t.Run("reply target in another conversation", func(t *testing.T) {
		db := &database.MockChatRepository{}
		defer db.AssertExpectations(t)
		db.On("GetMessageById", "other").Return(database.Message{
			Id:             "other",
			ConversationId: "b1_c1",
		}, nil).Once()

		s := newTestStore(t, db)
		_, err := s.Send("a1", "b1", "hi", "", "other")
		assert.True(t, IsValidation(err), "expected validation error for cross-conversation reply, got %v", err)
	})

	t.Run("reply forces reply type", func(t *testing.T) {
		db := &database.MockChatRepository{}
		defer db.AssertExpectations(t)
		db.On("GetMessageById", "parent").Return(database.Message{
			Id:             "parent",
			ConversationId: "a1_b1",
		}, nil).Once()
		db.On("CreateMessage", mock.MatchedBy(func(p database.CreateMessageParams) bool {
			return p.MessageType == types.TypeReply && p.ReplyTo == "parent"
		})).Return(database.Message{
			Id:          "msg-x",
			MessageType: types.TypeReply,
			Status:      types.StatusSent,
		}, nil).Once()

		s := newTestStore(t, db)
		msg, err := s.Send("a1", "b1", "hi", "", "parent")
		assert.NoError(t, err, "expected reply send to succeed")
		assert.Equal(t, types.TypeReply, msg.MessageType, "expected message type reply")
	})
}

func TestMarkDelivered_Monotonic(t *testing.T) {
	tcases := []struct {
		name          string
		currentStatus string
		expectUpdate  bool
	}{
		{
			name:          "sent becomes delivered",
			currentStatus: types.StatusSent,
			expectUpdate:  true,
		},
		{
			name:          "delivered is a no-op",
			currentStatus: types.StatusDelivered,
			expectUpdate:  false,
		},
		{
			name:          "read never regresses",
			currentStatus: types.StatusRead,
			expectUpdate:  false,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			db := &database.MockChatRepository{}
			defer db.AssertExpectations(t)

			db.On("GetMessageById", "m1").Return(database.Message{
				Id:     "m1",
				Status: tc.currentStatus,
			}, nil).Once()

			if tc.expectUpdate {
				db.On("MarkMessageDelivered", "m1").Return(database.Message{
					Id:     "m1",
					Status: types.StatusDelivered,
				}, nil).Once()
			}

			s := newTestStore(t, db)
			msg, err := s.MarkDelivered("m1")
			assert.NoError(t, err, "expected no error marking delivered")

			if tc.expectUpdate {
				assert.Equal(t, types.StatusDelivered, msg.Status, "expected status delivered")
			} else {
				assert.Equal(t, tc.currentStatus, msg.Status, "expected status to be unchanged")
			}
		})
	}
}

func TestMarkRead(t *testing.T) {
	t.Run("unknown message", func(t *testing.T) {
		db := &database.MockChatRepository{}
		defer db.AssertExpectations(t)
		db.On("GetMessageById", "missing").Return(database.Message{}, sql.ErrNoRows).Once()

		s := newTestStore(t, db)
		_, err := s.MarkRead("missing", "b1")
		assert.ErrorIs(t, err, ErrMessageNotFound, "expected ErrMessageNotFound")
	})

	t.Run("marks read from delivered", func(t *testing.T) {
		db := &database.MockChatRepository{}
		defer db.AssertExpectations(t)

		readAt := time.Now().UTC()
		db.On("GetMessageById", "m1").Return(database.Message{
			Id:     "m1",
			Status: types.StatusDelivered,
		}, nil).Once()
		db.On("MarkMessageRead", "m1", mock.AnythingOfType("time.Time")).Return(database.Message{
			Id:     "m1",
			Status: types.StatusRead,
			IsRead: true,
			ReadAt: &readAt,
		}, nil).Once()

		s := newTestStore(t, db)
		msg, err := s.MarkRead("m1", "b1")
		assert.NoError(t, err, "expected mark read to succeed")
		assert.Equal(t, types.StatusRead, msg.Status, "expected status read")
		assert.True(t, msg.IsRead, "expected isRead to be set")
		assert.NotNil(t, msg.ReadAt, "expected readAt to be stamped")
	})

	t.Run("already read is a no-op", func(t *testing.T) {
		db := &database.MockChatRepository{}
		defer db.AssertExpectations(t)

		db.On("GetMessageById", "m1").Return(database.Message{
			Id:     "m1",
			Status: types.StatusRead,
			IsRead: true,
		}, nil).Once()

		s := newTestStore(t, db)
		msg, err := s.MarkRead("m1", "b1")
		assert.NoError(t, err, "expected no error re-reading a read message")
		assert.Equal(t, types.StatusRead, msg.Status, "expected status to stay read")
	})
}

func TestSetStatus_RejectsRegression(t *testing.T) {
	db := &database.MockChatRepository{}
	defer db.AssertExpectations(t)

	db.On("GetMessageById", "m1").Return(database.Message{
		Id:     "m1",
		Status: types.StatusRead,
	}, nil).Once()

	s := newTestStore(t, db)
	_, err := s.SetStatus("m1", types.StatusDelivered)
	assert.ErrorIs(t, err, ErrStatusRegression, "expected backward transition to be rejected")
}

func TestAddReaction(t *testing.T) {
	db := &database.MockChatRepository{}
	defer db.AssertExpectations(t)

	db.On("GetMessageById", "m1").Return(database.Message{Id: "m1"}, nil).Twice()
	db.On("SetReaction", "m1", "a1", "👍").Return(database.Message{
		Id:        "m1",
		Reactions: map[string]string{"a1": "👍"},
	}, nil).Once()
	db.On("SetReaction", "m1", "a1", "❤️").Return(database.Message{
		Id:        "m1",
		Reactions: map[string]string{"a1": "❤️"},
	}, nil).Once()

	s := newTestStore(t, db)

	msg, err := s.AddReaction("m1", "a1", "👍")
	assert.NoError(t, err, "expected first reaction to succeed")
	assert.Len(t, msg.Reactions, 1, "expected one reaction")

	// a second reaction from the same user replaces the first
	msg, err = s.AddReaction("m1", "a1", "❤️")
	assert.NoError(t, err, "expected replacement reaction to succeed")
	assert.Len(t, msg.Reactions, 1, "expected still one reaction per user")
	assert.Equal(t, "❤️", msg.Reactions["a1"], "expected last write to win")
}

func TestForward_PartialFailure(t *testing.T) {
	db := &database.MockChatRepository{}
	defer db.AssertExpectations(t)

	db.On("GetMessageById", "orig").Return(database.Message{
		Id:      "orig",
		Content: "check this out",
	}, nil).Once()

	db.On("CreateMessage", mock.MatchedBy(func(p database.CreateMessageParams) bool {
		return p.ReceiverId == "b1"
	})).Return(database.Message{
		Id:          "f1",
		ReceiverId:  "b1",
		MessageType: types.TypeForwarded,
	}, nil).Once()
	db.On("CreateMessage", mock.MatchedBy(func(p database.CreateMessageParams) bool {
		return p.ReceiverId == "c1"
	})).Return(database.Message{}, errors.New("insert failed")).Once()
	db.On("CreateMessage", mock.MatchedBy(func(p database.CreateMessageParams) bool {
		return p.ReceiverId == "d1"
	})).Return(database.Message{
		Id:          "f3",
		ReceiverId:  "d1",
		MessageType: types.TypeForwarded,
	}, nil).Once()

	s := newTestStore(t, db)
	forwarded, errs := s.Forward("orig", []string{"b1", "c1", "d1"}, "a1")

	assert.Len(t, forwarded, 2, "expected the two healthy targets to succeed")
	assert.Len(t, errs, 1, "expected exactly one per-target error")
	assert.Contains(t, errs[0].Error(), "c1", "expected the error to name the failed target")
}

func TestForward_OriginalNotFound(t *testing.T) {
	db := &database.MockChatRepository{}
	defer db.AssertExpectations(t)
	db.On("GetMessageById", "gone").Return(database.Message{}, sql.ErrNoRows).Once()

	s := newTestStore(t, db)
	forwarded, errs := s.Forward("gone", []string{"b1"}, "a1")
	assert.Empty(t, forwarded, "expected no forwards for a missing original")
	assert.Len(t, errs, 1, "expected a single error")
	assert.ErrorIs(t, errs[0], ErrMessageNotFound, "expected ErrMessageNotFound")
}

func TestEditDelete_SenderOnly(t *testing.T) {
	db := &database.MockChatRepository{}
	defer db.AssertExpectations(t)

	db.On("GetMessageById", "m1").Return(database.Message{
		Id:       "m1",
		SenderId: "a1",
	}, nil).Twice()

	s := newTestStore(t, db)

	_, err := s.Edit("m1", "b1", "new content")
	assert.ErrorIs(t, err, ErrNotSender, "expected edit by non-sender to fail")

	_, err = s.Delete("m1", "b1")
	assert.ErrorIs(t, err, ErrNotSender, "expected delete by non-sender to fail")
}

func TestDelete_Idempotent(t *testing.T) {
	db := &database.MockChatRepository{}
	defer db.AssertExpectations(t)

	db.On("GetMessageById", "m1").Return(database.Message{
		Id:       "m1",
		SenderId: "a1",
		Deleted:  true,
	}, nil).Once()

	s := newTestStore(t, db)
	msg, err := s.Delete("m1", "a1")
	assert.NoError(t, err, "expected deleting a deleted message to be a no-op")
	assert.True(t, msg.Deleted, "expected message to stay deleted")
}

func TestSearch(t *testing.T) {
	t.Run("query too short", func(t *testing.T) {
		db := &database.MockChatRepository{}
		defer db.AssertExpectations(t)

		s := newTestStore(t, db)
		_, err := s.Search(Scope{ConversationId: "a1_b1"}, " h ", 1, 20)
		assert.True(t, IsValidation(err), "expected validation error for 1-character query, got %v", err)
	})

	t.Run("missing scope", func(t *testing.T) {
		db := &database.MockChatRepository{}
		defer db.AssertExpectations(t)

		s := newTestStore(t, db)
		_, err := s.Search(Scope{}, "hello", 1, 20)
		assert.True(t, IsValidation(err), "expected validation error without scope, got %v", err)
	})

	t.Run("paging math", func(t *testing.T) {
		db := &database.MockChatRepository{}
		defer db.AssertExpectations(t)

		db.On("SearchMessages", database.SearchMessagesParams{
			ConversationId: "a1_b1",
			Query:          "HE",
			Limit:          10,
			Offset:         10,
		}).Return([]database.Message{
			{Id: "m1", Content: "hello world"},
		}, 41, nil).Once()

		s := newTestStore(t, db)
		res, err := s.Search(Scope{ConversationId: "a1_b1"}, "HE", 2, 10)
		assert.NoError(t, err, "expected search to succeed")
		assert.Len(t, res.Messages, 1, "expected one message on this page")
		assert.Equal(t, 41, res.Total, "expected total from repository")
		assert.Equal(t, 2, res.Page, "expected requested page")
		assert.Equal(t, 5, res.Pages, "expected ceil(41/10) pages")
	})

	t.Run("user scope with defaults", func(t *testing.T) {
		db := &database.MockChatRepository{}
		defer db.AssertExpectations(t)

		db.On("SearchMessages", database.SearchMessagesParams{
			UserId: "a1",
			Query:  "hello",
			Limit:  defaultPageSize,
			Offset: 0,
		}).Return([]database.Message{}, 0, nil).Once()

		s := newTestStore(t, db)
		res, err := s.Search(Scope{UserId: "a1"}, "hello", 0, 0)
		assert.NoError(t, err, "expected search to succeed")
		assert.Equal(t, 1, res.Page, "expected page to default to 1")
		assert.Equal(t, 0, res.Pages, "expected zero pages for no matches")
	})
}
