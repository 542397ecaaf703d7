// Package events defines the closed set of websocket events exchanged
// between clients and the gateway, and their JSON wire format:
//
//	{"event": "<kind>", "data": {...}}
package events

import (
	"encoding/json"
	"errors"
	"fmt"
)

type Kind string

// Inbound kinds (client -> server).
const (
	KindJoinMatch      Kind = "join_match"
	KindLeaveMatch     Kind = "leave_match"
	KindSendMessage    Kind = "send_message"
	KindTypingStart    Kind = "typing_start"
	KindTypingStop     Kind = "typing_stop"
	KindMarkRead       Kind = "mark_read"
	KindUpdatePresence Kind = "update_presence"
	KindPing           Kind = "ping"
)

// Outbound kinds (server -> client).
const (
	KindJoinedMatch       Kind = "joined_match"
	KindNewMessage        Kind = "new_message"
	KindMessageAck        Kind = "message_ack"
	KindMessageError      Kind = "message_error"
	KindUserTyping        Kind = "user_typing"
	KindUserStoppedTyping Kind = "user_stopped_typing"
	KindMessagesRead      Kind = "messages_read"
	KindPresenceUpdate    Kind = "presence_update"
	KindError             Kind = "error"
	KindPong              Kind = "pong"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownEvent   = errors.New("unknown event")
	ErrInvalidPayload = errors.New("invalid payload")
)

// frame is the wire envelope shared by both directions.
type frame struct {
	Event Kind            `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Outbound is a server -> client event ready to be encoded.
type Outbound struct {
	Event Kind
	Data  any
}

// Encode renders the event as a wire frame.
func (o Outbound) Encode() ([]byte, error) {
	var data json.RawMessage
	if o.Data != nil {
		b, err := json.Marshal(o.Data)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", o.Event, err)
		}
		data = b
	}
	return json.Marshal(frame{Event: o.Event, Data: data})
}
