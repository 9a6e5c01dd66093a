package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConversationId(t *testing.T) {
	tcases := []struct {
		name     string
		userA    string
		userB    string
		expected string
	}{
		{
			name:     "already sorted",
			userA:    "a1",
			userB:    "b1",
			expected: "a1_b1",
		},
		{
			name:     "reversed input",
			userA:    "b1",
			userB:    "a1",
			expected: "a1_b1",
		},
		{
			name:     "identical ids",
			userA:    "a1",
			userB:    "a1",
			expected: "a1_a1",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ConversationId(tc.userA, tc.userB), "expected canonical conversation id")
		})
	}
}

func TestConversationId_Symmetric(t *testing.T) {
	pairs := [][2]string{
		{"a1", "b1"},
		{"64ffb2", "12aac9"},
		{"user-2", "user-10"},
	}

	for _, p := range pairs {
		assert.Equal(t, ConversationId(p[0], p[1]), ConversationId(p[1], p[0]),
			"expected conversation id to be independent of argument order for %v", p)
	}
}

func TestStatusRank(t *testing.T) {
	assert.Less(t, StatusRank(StatusSent), StatusRank(StatusDelivered), "expected sent to rank below delivered")
	assert.Less(t, StatusRank(StatusDelivered), StatusRank(StatusRead), "expected delivered to rank below read")
	assert.Equal(t, 0, StatusRank("bogus"), "expected unknown status to rank below sent")
}

func TestValidMessageType(t *testing.T) {
	for _, mt := range []string{TypeText, TypeImage, TypeFile, TypeForwarded, TypeReply} {
		assert.True(t, ValidMessageType(mt), "expected %q to be a valid message type", mt)
	}
	assert.False(t, ValidMessageType("sticker"), "expected unsupported type to be rejected")
}
