package chat

import (
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/tcriess/lightspeed-pagechat/types"
)

// decodeEvent turns the generic data map of an inbound event into its typed, validated form.
func decodeEvent(name string, data map[string]interface{}) (types.Validator, error) {
	var event types.Validator
	switch name {
	case types.EventJoin:
		event = &types.JoinEvent{}
	case types.EventJoinWebpage:
		event = &types.JoinWebpageEvent{}
	case types.EventSendMessage:
		event = &types.SendMessageEvent{}
	case types.EventSendPrivate:
		event = &types.SendPrivateEvent{}
	case types.EventSetTyping:
		event = &types.SetTypingEvent{}
	case types.EventSetPrivateChatOpen:
		event = &types.SetPrivateChatOpenEvent{}
	case types.EventSetStatus:
		event = &types.SetStatusEvent{}
	case types.EventRequestVisitors, types.EventHeartbeatActivity:
		event = &types.RoomEvent{}
	default:
		return nil, fmt.Errorf("unknown event %q", name)
	}
	if err := mapstructure.WeakDecode(data, event); err != nil {
		return nil, fmt.Errorf("could not decode %s event: %w", name, err)
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}
	return event, nil
}

// unmarshalEnvelope parses a raw websocket frame into the event name and its data map.
func unmarshalEnvelope(raw []byte) (string, map[string]interface{}, error) {
	message := types.WebsocketMessage{}
	if err := json.Unmarshal(raw, &message); err != nil {
		return "", nil, err
	}
	data := make(map[string]interface{})
	if len(message.Data) > 0 && string(message.Data) != "null" {
		if err := json.Unmarshal(message.Data, &data); err != nil {
			return "", nil, err
		}
	}
	return message.Event, data, nil
}
