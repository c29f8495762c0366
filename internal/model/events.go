package model

import (
	"time"

	"github.com/google/uuid"
)

// Client to server event names. The "-chat" and "-message" forms are accepted
// for older clients.
const (
	EventJoin        = "join"
	EventJoinChat    = "join-chat"
	EventSend        = "send"
	EventSendMessage = "send-message"
	EventTyping      = "typing"
)

// Server to client event names.
const (
	EventJoinConfirmed   = "join-confirmed"
	EventChatHistory     = "chat-history"
	EventMessageReceived = "message-received"
	EventUserJoined      = "user-joined"
	EventUserTyping      = "user-typing"
	EventUserLeft        = "user-left"
	EventError           = "error"
)

// Event is a server to client event. Each implementation carries a fixed set
// of fields and is encoded under its own event name.
type Event interface {
	EventName() string
}

type JoinConfirmed struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

type ChatHistory struct {
	Messages []Message `json:"messages"`
	Count    int       `json:"count"`
}

type MessageReceived struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"createdAt"`
}

type UserJoined struct {
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
}

type UserTyping struct {
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

type UserLeft struct {
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason"`
}

// Error is sent to the originating connection when one of its events fails.
type Error struct {
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

func (JoinConfirmed) EventName() string   { return EventJoinConfirmed }
func (ChatHistory) EventName() string     { return EventChatHistory }
func (MessageReceived) EventName() string { return EventMessageReceived }
func (UserJoined) EventName() string      { return EventUserJoined }
func (UserTyping) EventName() string      { return EventUserTyping }
func (UserLeft) EventName() string        { return EventUserLeft }
func (Error) EventName() string           { return EventError }

// NewMessageReceived builds the broadcast payload for a persisted message.
func NewMessageReceived(m Message) MessageReceived {
	return MessageReceived{
		ID:        m.ID,
		Username:  m.Username,
		Content:   m.Content,
		Timestamp: m.Timestamp,
		CreatedAt: m.CreatedAt,
	}
}

// Request is a client to server event.
type Request interface {
	RequestName() string
}

type JoinRequest struct {
	Username string `json:"username"`
}

type SendRequest struct {
	Username string `json:"username"`
	Content  string `json:"content"`
}

type TypingRequest struct {
	IsTyping bool `json:"isTyping"`
}

func (JoinRequest) RequestName() string   { return EventJoin }
func (SendRequest) RequestName() string   { return EventSend }
func (TypingRequest) RequestName() string { return EventTyping }
