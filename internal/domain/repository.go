package domain

import (
	"context"
	"time"
)

// UserRepository defines the user lookups the gateway needs.
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
}

// ConversationRepository reads match/conversation records.
type ConversationRepository interface {
	GetByID(ctx context.Context, id int64) (*Conversation, error)
	// GetActiveForParticipant returns the conversation only if it is active
	// and userID is one of its members; otherwise (nil, nil).
	GetActiveForParticipant(ctx context.Context, conversationID, userID int64) (*Conversation, error)
}

// RelationshipRepository reads the social graph.
type RelationshipRepository interface {
	// ListAcceptedPeerIDs returns the other side of every accepted
	// relationship involving userID.
	ListAcceptedPeerIDs(ctx context.Context, userID int64) ([]int64, error)
}

// MessageRepository defines persistence operations for messages.
type MessageRepository interface {
	Create(ctx context.Context, m *Message) error
	GetByID(ctx context.Context, id int64) (*Message, error)
	// ListForConversation returns up to limit non-deleted messages of the
	// conversation, newest first. A positive beforeID only returns older
	// messages.
	ListForConversation(ctx context.Context, conversationID, beforeID int64, limit int) ([]*Message, error)
	// MarkReadInConversation sets read_at on every unread, non-deleted
	// message addressed to readerID and returns the affected ids.
	MarkReadInConversation(ctx context.Context, conversationID, readerID int64, readAt time.Time) ([]int64, error)
}

// PresenceRepository persists presence records.
type PresenceRepository interface {
	Upsert(ctx context.Context, p *Presence) error
	Get(ctx context.Context, userID int64) (*Presence, error)
	// ListStale returns records whose status is not offline and whose
	// last activity is strictly before cutoff.
	ListStale(ctx context.Context, cutoff time.Time) ([]*Presence, error)
}
