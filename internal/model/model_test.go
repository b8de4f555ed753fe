package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConversationMembership(t *testing.T) {
	c := &Conversation{
		Members: []string{"alice", "bob"},
		Admins:  []string{"alice"},
	}

	assert.True(t, c.HasMember("bob"))
	assert.False(t, c.HasMember("carol"))
	assert.True(t, c.HasAdmin("alice"))
	assert.False(t, c.HasAdmin("bob"))
}

func TestValidMessageType(t *testing.T) {
	assert.True(t, ValidMessageType(MessageTypeText))
	assert.True(t, ValidMessageType(MessageTypeSystem))
	assert.True(t, ValidMessageType(MessageTypeMedia))
	assert.False(t, ValidMessageType(""))
	assert.False(t, ValidMessageType("sticker"))
}
