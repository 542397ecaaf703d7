package domain

import "time"

// User represents an application user. The gateway only reads users.
type User struct {
	ID             int64     `db:"id" json:"id"`
	Username       string    `db:"username" json:"username"`
	HashedPassword string    `db:"hashed_password" json:"-"`
	IsActive       bool      `db:"is_active" json:"is_active"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

type ConversationStatus string

const (
	ConversationActive   ConversationStatus = "active"
	ConversationArchived ConversationStatus = "archived"
	ConversationBlocked  ConversationStatus = "blocked"
)

// Conversation is a one-to-one match between two users. Only active
// conversations admit joins and sends.
type Conversation struct {
	ID        int64              `db:"id"`
	User1ID   int64              `db:"user1_id"`
	User2ID   int64              `db:"user2_id"`
	Status    ConversationStatus `db:"status"`
	CreatedAt time.Time          `db:"created_at"`
	UpdatedAt time.Time          `db:"updated_at"`
}

// HasParticipant reports whether userID is one of the two members.
func (c *Conversation) HasParticipant(userID int64) bool {
	return c.User1ID == userID || c.User2ID == userID
}

// OtherParticipant returns the member that is not userID.
func (c *Conversation) OtherParticipant(userID int64) int64 {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}

type RelationshipStatus string

const (
	RelationshipPending  RelationshipStatus = "pending"
	RelationshipAccepted RelationshipStatus = "accepted"
	RelationshipBlocked  RelationshipStatus = "blocked"
)

// Relationship is an edge of the social graph. Accepted edges define who
// receives a user's presence updates.
type Relationship struct {
	RequesterID int64              `db:"requester_id"`
	AddresseeID int64              `db:"addressee_id"`
	Status      RelationshipStatus `db:"status"`
	CreatedAt   time.Time          `db:"created_at"`
}

type MessageType string

const (
	MessageText   MessageType = "text"
	MessageImage  MessageType = "image"
	MessageGIF    MessageType = "gif"
	MessageAudio  MessageType = "audio"
	MessageSystem MessageType = "system"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageGIF, MessageAudio, MessageSystem:
		return true
	}
	return false
}

// Message represents a single chat message.
type Message struct {
	ID             int64       `db:"id"`
	ConversationID int64       `db:"conversation_id"`
	SenderID       int64       `db:"sender_id"`
	ReceiverID     int64       `db:"receiver_id"`
	Content        string      `db:"content"` // encrypted at rest
	Type           MessageType `db:"type"`
	CreatedAt      time.Time   `db:"created_at"`
	ReadAt         *time.Time  `db:"read_at"`
	IsDeleted      bool        `db:"is_deleted"`
}

type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceAway    PresenceStatus = "away"
	PresenceOffline PresenceStatus = "offline"
)

// Valid reports whether s is a known presence status.
func (s PresenceStatus) Valid() bool {
	switch s {
	case PresenceOnline, PresenceAway, PresenceOffline:
		return true
	}
	return false
}

// Presence is the durable presence record of one user.
type Presence struct {
	UserID       int64          `db:"user_id" json:"userId"`
	Status       PresenceStatus `db:"status" json:"status"`
	LastActivity time.Time      `db:"last_activity" json:"lastActivity"`
	DeviceID     string         `db:"device_id" json:"deviceId,omitempty"`
	IsActive     bool           `db:"is_active" json:"isActive"`
}
