package types

import "encoding/json"

// Inbound event names (client -> server).
const (
	EventJoin               = "join"
	EventJoinWebpage        = "joinWebpage"
	EventSendMessage        = "sendMessage"
	EventSendPrivate        = "sendPrivate"
	EventSetTyping          = "setTyping"
	EventSetPrivateChatOpen = "setPrivateChatOpen"
	EventSetStatus          = "setStatus"
	EventRequestVisitors    = "requestVisitors"
	EventHeartbeatActivity  = "heartbeatActivity"
)

// Outbound event names (server -> client).
const (
	EventJoined              = "joined"
	EventMemberCount         = "memberCount"
	EventMemberList          = "memberList"
	EventChatMessage         = "chatMessage"
	EventPrivateMessage      = "privateMessage"
	EventPrivateNotification = "privateNotification"
	EventPrivateFallback     = "privateFallback"
	EventUserJoined          = "userJoined"
	EventUserLeft            = "userLeft"
	EventVisitorJoined       = "visitorJoined"
	EventVisitorLeft         = "visitorLeft"
	EventVisitorList         = "visitorList"
	EventVisitorCount        = "visitorCount"
	EventRoomInfo            = "roomInfo"
	EventTypingStatus        = "typingStatus"
	EventNicknameError       = "nicknameError"
	EventGenericError        = "genericError"
)

// JSON-serialized WebsocketMessage is what is actually sent via the Websocket connection
type WebsocketMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// NewWebsocketMessage wraps an outbound payload into the wire envelope.
func NewWebsocketMessage(event string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(WebsocketMessage{Event: event, Data: data})
}

// Outbound payloads that are not a plain Message.

type JoinedPayload struct {
	RoomId   string `json:"roomId"`
	Nickname string `json:"nickname"`
	Count    int    `json:"count"`
}

type CountPayload struct {
	RoomId string `json:"roomId"`
	Count  int    `json:"count"`
}

type MemberListPayload struct {
	RoomId    string   `json:"roomId"`
	Nicknames []string `json:"nicknames"`
}

type VisitorListPayload struct {
	RoomId   string           `json:"roomId"`
	Visitors []PresenceRecord `json:"visitors"`
}

type PrivateMessagePayload struct {
	Message        *Message `json:"message"`
	IsNotification bool     `json:"isNotification"`
}

// PrivateFallbackPayload tells the sender that the recipient could not be resolved and the message was
// broadcast to the room instead.
type PrivateFallbackPayload struct {
	Recipient string   `json:"recipient"`
	Reason    string   `json:"reason"`
	Message   *Message `json:"message"`
}

type RoomInfo struct {
	RoomId       string `json:"roomId"`
	Url          string `json:"url"`
	Title        string `json:"title"`
	VisitorCount int    `json:"visitorCount"`
}

type TypingStatusPayload struct {
	RoomId   string `json:"roomId"`
	Nickname string `json:"nickname"`
	IsTyping bool   `json:"isTyping"`
}

type NicknameErrorPayload struct {
	Message    string `json:"message"`
	Nickname   string `json:"nickname"`
	Suggestion string `json:"suggestion,omitempty"`
}

type GenericErrorPayload struct {
	Message string `json:"message"`
}
