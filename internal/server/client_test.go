package server

import (
	"testing"
	"time"

	"github.com/omnivibe/go-chatserver/internal/database"
	"github.com/omnivibe/go-chatserver/internal/stats"
	"github.com/omnivibe/go-chatserver/internal/testutil"
	"github.com/omnivibe/go-chatserver/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestNewClient(t *testing.T) {
	cs := newTestChatServer(t, &database.MockChatRepository{}, &stats.MockStatsUpdater{})

	c := NewClient(types.User{Id: "a1", Username: "alice"}, nil, cs, testutil.TestLogger(t))
	assert.NotEmpty(t, c.connId, "expected a connection id to be assigned")
	assert.Equal(t, "a1", c.user.Id, "expected handshake user to be set")
	assert.False(t, c.identified, "expected a new connection to be unidentified")
	assert.NotNil(t, c.send, "expected send channel to be initialized")
	assert.NotNil(t, c.stop, "expected stop channel to be initialized")

	other := NewClient(types.User{Id: "a1"}, nil, cs, testutil.TestLogger(t))
	assert.NotEqual(t, c.connId, other.connId, "expected each connection to get its own id")
}

func Test_queueMessage(t *testing.T) {
	t.Run("successful queue", func(t *testing.T) {
		c := &Client{
			send: make(chan *ServerMessage, 1),
			log:  testutil.TestLogger(t),
		}

		res := c.queueMessage(&ServerMessage{})
		assert.True(t, res, "expected queueMessage to return true when channel is not full")

		select {
		case msg := <-c.send:
			assert.NotNil(t, msg, "expected a message to be sent to the client")
		default:
			t.Error("expected a message to be sent to the client, but none was sent")
		}
	})
	t.Run("channel full", func(t *testing.T) {
		c := &Client{
			send: make(chan *ServerMessage, 1),
			log:  testutil.TestLogger(t),
		}

		c.send <- &ServerMessage{} // Pre-fill the send channel to simulate a full channel
		res := c.queueMessage(&ServerMessage{})
		assert.False(t, res, "expected queueMessage to return false when channel is full")
	})
}

func Test_serializeMessage(t *testing.T) {
	message := &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        1,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: 200,
			Data:         "test data",
		},
	}

	expected := `{"id":1,"timestamp":"` + message.Timestamp.Format(time.RFC3339Nano) +
		`","response":{"response_code":200,"data":"test data"}}`

	bytes, err := serializeMessage(message)
	assert.NoError(t, err, "expected no error during serialization")
	assert.Equal(t, expected, string(bytes), "expected serialized message to match the expected format")
}

func Test_stopClient(t *testing.T) {
	c := &Client{
		stop: make(chan struct{}),
	}

	c.stopClient()

	select {
	case <-c.stop:
		// Channel is closed as expected
	default:
		t.Error("expected stop channel to be closed")
	}

	// a second stop must not panic
	c.stopClient()
}

func Test_dispatch(t *testing.T) {
	t.Run("unidentified connection is rejected", func(t *testing.T) {
		cs := newTestChatServer(t, &database.MockChatRepository{}, &stats.MockStatsUpdater{})
		c := NewClient(types.User{}, nil, cs, testutil.TestLogger(t))

		c.dispatch(&ClientMessage{
			BaseMessage: BaseMessage{Id: 1, Timestamp: Now()},
			Send:        &Send{ReceiverId: "b1", Content: "hello"},
			client:      c,
		})

		select {
		case msg := <-c.send:
			assert.NotNil(t, msg.Response, "expected an error response")
			assert.Equal(t, 401, msg.Response.ResponseCode, "expected response code 401")
		default:
			t.Error("expected an error response, but none was sent")
		}
	})

	t.Run("message with no operation is dropped", func(t *testing.T) {
		cs := newTestChatServer(t, &database.MockChatRepository{}, &stats.MockStatsUpdater{})
		c := addTestClient(t, cs, "a1", "alice")

		c.dispatch(&ClientMessage{
			BaseMessage: BaseMessage{Id: 1, Timestamp: Now()},
			client:      c,
		})

		assert.Len(t, c.send, 0, "expected no response for an empty message")
	})
}
