package events

import "time"

type SenderInfo struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type NewMessagePayload struct {
	ID             int64      `json:"id"`
	ConversationID int64      `json:"conversationId"`
	SenderID       int64      `json:"senderId"`
	ReceiverID     int64      `json:"receiverId"`
	Content        string     `json:"content"`
	Type           string     `json:"type"`
	CreatedAt      time.Time  `json:"createdAt"`
	Sender         SenderInfo `json:"sender"`
	Nonce          string     `json:"nonce,omitempty"`
}

type MessageAckPayload struct {
	MessageID   int64     `json:"messageId"`
	Nonce       string    `json:"nonce,omitempty"`
	DeliveredAt time.Time `json:"deliveredAt"`
}

type MessageErrorPayload struct {
	Reason string `json:"reason"`
	Nonce  string `json:"nonce,omitempty"`
}

type JoinedMatchPayload struct {
	ConversationID int64 `json:"conversationId"`
}

type TypingPayload struct {
	ConversationID int64 `json:"conversationId"`
	UserID         int64 `json:"userId"`
}

type MessagesReadPayload struct {
	ConversationID int64     `json:"conversationId"`
	ReaderID       int64     `json:"readerId"`
	ReadAt         time.Time `json:"readAt"`
	MessageIDs     []int64   `json:"messageIds"`
}

type PresenceUpdatePayload struct {
	UserID       int64     `json:"userId"`
	Status       string    `json:"status"`
	LastActivity time.Time `json:"lastActivity"`
	IsActive     bool      `json:"isActive"`
}

type ErrorPayload struct {
	Event  Kind   `json:"event,omitempty"`
	Reason string `json:"reason"`
}

type PongPayload struct {
	ServerTime time.Time `json:"serverTime"`
}

func NewMessage(p NewMessagePayload) Outbound { return Outbound{Event: KindNewMessage, Data: p} }

func MessageAck(p MessageAckPayload) Outbound { return Outbound{Event: KindMessageAck, Data: p} }

func MessageError(reason, nonce string) Outbound {
	return Outbound{Event: KindMessageError, Data: MessageErrorPayload{Reason: reason, Nonce: nonce}}
}

func JoinedMatch(conversationID int64) Outbound {
	return Outbound{Event: KindJoinedMatch, Data: JoinedMatchPayload{ConversationID: conversationID}}
}

func UserTyping(conversationID, userID int64) Outbound {
	return Outbound{Event: KindUserTyping, Data: TypingPayload{ConversationID: conversationID, UserID: userID}}
}

func UserStoppedTyping(conversationID, userID int64) Outbound {
	return Outbound{Event: KindUserStoppedTyping, Data: TypingPayload{ConversationID: conversationID, UserID: userID}}
}

func MessagesRead(p MessagesReadPayload) Outbound { return Outbound{Event: KindMessagesRead, Data: p} }

func PresenceUpdate(p PresenceUpdatePayload) Outbound {
	return Outbound{Event: KindPresenceUpdate, Data: p}
}

func Error(event Kind, reason string) Outbound {
	return Outbound{Event: KindError, Data: ErrorPayload{Event: event, Reason: reason}}
}

func Pong(now time.Time) Outbound { return Outbound{Event: KindPong, Data: PongPayload{ServerTime: now}} }
