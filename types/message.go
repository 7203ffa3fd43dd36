package types

import (
	"strconv"
	"time"

	"github.com/mitchellh/hashstructure/v2"
)

const (
	MessageTypeUser    = "user_message"
	MessageTypeSystem  = "system"
	MessageTypeJoined  = "user_joined"
	MessageTypeLeft    = "user_left"
	MessageTypePrivate = "private_message"
)

// Message is the transient chat message. It is never persisted.
type Message struct {
	Id                 string    `json:"id" hash:"ignore"`
	RoomId             string    `json:"roomId"`
	Nickname           string    `json:"nickname"`
	Text               string    `json:"text"`
	Timestamp          time.Time `json:"timestamp"`
	Type               string    `json:"type"`
	Recipient          string    `json:"recipient,omitempty"`
	SenderConnectionId string    `json:"senderConnectionId,omitempty"`
	IsBroadcast        bool      `json:"isBroadcast"`
	BroadcastPrivate   bool      `json:"broadcastPrivate,omitempty" hash:"ignore"`
}

// CreateId sets the message id to a structural hash of the message content, sender and timestamp.
func (m *Message) CreateId() error {
	hash, err := hashstructure.Hash(m, hashstructure.FormatV2, nil)
	if err != nil {
		return err
	}
	m.Id = strconv.FormatUint(hash, 36)
	return nil
}

// NewSystemMessage creates a server-originated message of the given type (user_joined, user_left or system).
func NewSystemMessage(roomId, nickname, text, messageType string) *Message {
	msg := &Message{
		RoomId:    roomId,
		Nickname:  nickname,
		Text:      text,
		Timestamp: time.Now(),
		Type:      messageType,
	}
	_ = msg.CreateId()
	return msg
}
