package service

import "github.com/sevans717/aphila-sub004/internal/events"

// Conn is one authenticated client connection as seen by the services.
type Conn interface {
	ID() string
	UserID() int64
	// Send queues an event for this connection only. It reports false when
	// the connection is gone or its buffer is full.
	Send(ev events.Outbound) bool
}

// Hub is the process-local connection registry. Each user's connection
// set is their private scope; each conversation has a room of
// connections that passed the join check.
type Hub interface {
	Join(conversationID int64, c Conn)
	Leave(conversationID int64, c Conn)
	IsMember(conversationID int64, c Conn) bool
	// UserInRoom reports whether any connection of userID joined the room.
	UserInRoom(conversationID, userID int64) bool
	// BroadcastToRoom sends to every member except connections of
	// exceptUserID (0 excludes nobody) and returns how many were reached.
	BroadcastToRoom(conversationID int64, ev events.Outbound, exceptUserID int64) int
	// SendToUser sends to every connection of userID.
	SendToUser(userID int64, ev events.Outbound) int
	IsOnline(userID int64) bool
}
