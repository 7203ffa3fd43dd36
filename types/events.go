package types

import (
	"fmt"
	"strings"
)

// The different types of messages transferred from the client to here. Every struct is decoded from the
// "data" part of a WebsocketMessage via mapstructure.

// Validator is implemented by all inbound events.
type Validator interface {
	Validate() error
}

type JoinEvent struct {
	RoomId   string `mapstructure:"roomId"`
	Nickname string `mapstructure:"nickname"`
}

type JoinWebpageEvent struct {
	Url       string `mapstructure:"url"`
	Nickname  string `mapstructure:"nickname"`
	PageTitle string `mapstructure:"pageTitle"`
}

type SendMessageEvent struct {
	RoomId   string `mapstructure:"roomId"`
	Text     string `mapstructure:"text"`
	Nickname string `mapstructure:"nickname"`
	Type     string `mapstructure:"type"`
}

type SendPrivateEvent struct {
	RoomId    string `mapstructure:"roomId"`
	Text      string `mapstructure:"text"`
	Nickname  string `mapstructure:"nickname"`
	Recipient string `mapstructure:"recipient"`
}

type SetTypingEvent struct {
	RoomId   string `mapstructure:"roomId"`
	Nickname string `mapstructure:"nickname"`
	IsTyping bool   `mapstructure:"isTyping"`
}

type SetPrivateChatOpenEvent struct {
	Recipient string `mapstructure:"recipient"`
	IsOpen    bool   `mapstructure:"isOpen"`
}

type SetStatusEvent struct {
	RoomId string `mapstructure:"roomId"`
	Status string `mapstructure:"status"`
}

// RoomEvent is the payload of requestVisitors and heartbeatActivity.
type RoomEvent struct {
	RoomId string `mapstructure:"roomId"`
}

func missing(fields ...string) error {
	return fmt.Errorf("%w: %s", ErrMissingField, strings.Join(fields, ", "))
}

// required returns an error naming every empty value. Arguments are name/value pairs.
func required(pairs ...string) error {
	var names []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			names = append(names, pairs[i])
		}
	}
	if len(names) > 0 {
		return missing(names...)
	}
	return nil
}

func (e *JoinEvent) Validate() error {
	return required("roomId", e.RoomId, "nickname", e.Nickname)
}

func (e *JoinWebpageEvent) Validate() error {
	return required("url", e.Url, "nickname", e.Nickname)
}

func (e *SendMessageEvent) Validate() error {
	return required("roomId", e.RoomId, "text", e.Text, "nickname", e.Nickname)
}

func (e *SendPrivateEvent) Validate() error {
	return required("roomId", e.RoomId, "text", e.Text, "nickname", e.Nickname, "recipient", e.Recipient)
}

func (e *SetTypingEvent) Validate() error {
	return required("roomId", e.RoomId, "nickname", e.Nickname)
}

func (e *SetPrivateChatOpenEvent) Validate() error {
	return required("recipient", e.Recipient)
}

func (e *SetStatusEvent) Validate() error {
	if err := required("roomId", e.RoomId, "status", e.Status); err != nil {
		return err
	}
	if !IsValidStatus(e.Status) {
		return fmt.Errorf("invalid status %q", e.Status)
	}
	return nil
}

func (e *RoomEvent) Validate() error {
	return required("roomId", e.RoomId)
}
