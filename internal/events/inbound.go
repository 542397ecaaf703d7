package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MaxContentRunes = 5000
	MaxNonceLength  = 128
)

// Inbound is implemented by every client -> server payload.
type Inbound interface {
	Kind() Kind
	Validate() error
}

// ConversationRef is the payload shared by every room-scoped request.
type ConversationRef struct {
	ConversationID int64 `json:"conversationId"`
}

func (r ConversationRef) Validate() error {
	if r.ConversationID <= 0 {
		return fmt.Errorf("%w: conversationId is required", ErrInvalidPayload)
	}
	return nil
}

type JoinMatch struct{ ConversationRef }

func (JoinMatch) Kind() Kind { return KindJoinMatch }

type LeaveMatch struct{ ConversationRef }

func (LeaveMatch) Kind() Kind { return KindLeaveMatch }

type TypingStart struct{ ConversationRef }

func (TypingStart) Kind() Kind { return KindTypingStart }

type TypingStop struct{ ConversationRef }

func (TypingStop) Kind() Kind { return KindTypingStop }

type MarkRead struct{ ConversationRef }

func (MarkRead) Kind() Kind { return KindMarkRead }

// SendMessage is the outbound message envelope submitted by a client.
type SendMessage struct {
	ConversationID int64  `json:"conversationId"`
	Content        string `json:"content"`
	Type           string `json:"type"`
	Nonce          string `json:"nonce"`
}

func (SendMessage) Kind() Kind { return KindSendMessage }

func (m SendMessage) Validate() error {
	if m.ConversationID <= 0 {
		return fmt.Errorf("%w: conversationId is required", ErrInvalidPayload)
	}
	if strings.TrimSpace(m.Content) == "" {
		return fmt.Errorf("%w: content is empty", ErrInvalidPayload)
	}
	if utf8.RuneCountInString(m.Content) > MaxContentRunes {
		return fmt.Errorf("%w: content exceeds %d characters", ErrInvalidPayload, MaxContentRunes)
	}
	if len(m.Nonce) > MaxNonceLength {
		return fmt.Errorf("%w: nonce too long", ErrInvalidPayload)
	}
	return nil
}

type UpdatePresence struct {
	Status string `json:"status"`
}

func (UpdatePresence) Kind() Kind { return KindUpdatePresence }

// Clients may only choose between online and away; offline is derived
// from the connection state.
func (p UpdatePresence) Validate() error {
	if p.Status != "online" && p.Status != "away" {
		return fmt.Errorf("%w: status must be online or away", ErrInvalidPayload)
	}
	return nil
}

type Ping struct{}

func (Ping) Kind() Kind      { return KindPing }
func (Ping) Validate() error { return nil }

// Decode parses one wire frame into its typed payload and validates it.
// The returned kind is set whenever the envelope itself was readable, so
// callers can attribute errors to the originating event.
func Decode(raw []byte) (Kind, Inbound, error) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	var in Inbound
	switch f.Event {
	case KindJoinMatch:
		in = &JoinMatch{}
	case KindLeaveMatch:
		in = &LeaveMatch{}
	case KindSendMessage:
		in = &SendMessage{}
	case KindTypingStart:
		in = &TypingStart{}
	case KindTypingStop:
		in = &TypingStop{}
	case KindMarkRead:
		in = &MarkRead{}
	case KindUpdatePresence:
		in = &UpdatePresence{}
	case KindPing:
		in = &Ping{}
	default:
		return f.Event, nil, fmt.Errorf("%w: %q", ErrUnknownEvent, f.Event)
	}

	if len(f.Data) > 0 && string(f.Data) != "null" {
		if err := json.Unmarshal(f.Data, in); err != nil {
			return f.Event, in, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
	}
	if err := in.Validate(); err != nil {
		return f.Event, in, err
	}
	return f.Event, in, nil
}
