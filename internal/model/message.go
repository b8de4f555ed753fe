package model

import "time"

const (
	MessageTypeText   = "text"
	MessageTypeSystem = "system"
	MessageTypeMedia  = "media"
)

// Message is immutable once created; the id and timestamp are assigned by
// the server at insert time. ClientTag is an opaque sender-generated value
// used to reconcile an optimistic local copy with the server echo.
type Message struct {
	ID             string    `bson:"_id" json:"id"`
	ConversationID string    `bson:"conversation_id" json:"conversation_id"`
	SenderID       string    `bson:"sender_id" json:"sender_id"`
	Content        string    `bson:"content" json:"content"`
	Type           string    `bson:"type" json:"type"`
	TimerSeconds   int       `bson:"timer_seconds,omitempty" json:"timer_seconds,omitempty"`
	ClientTag      string    `bson:"client_tag,omitempty" json:"client_tag,omitempty"`
	CreatedAt      time.Time `bson:"created_at" json:"created_at"`

	// Pending marks an optimistic local entry not yet confirmed by the
	// server. Never persisted.
	Pending bool `bson:"-" json:"pending,omitempty"`
}

func ValidMessageType(t string) bool {
	switch t {
	case MessageTypeText, MessageTypeSystem, MessageTypeMedia:
		return true
	}
	return false
}
