package service

import "context"

// Action is an inline button: a label plus an opaque callback token
// (e.g. "claim_12") the transport hands back on press.
type Action struct {
	Label string
	Token string
}

// Message is transport-agnostic rendered content.
type Message struct {
	Text    string
	Actions []Action
}

// Messenger is the chat-transport boundary. Every call may fail
// independently; callers treat sends as best-effort.
type Messenger interface {
	Send(ctx context.Context, chatID int64, msg Message) (messageID int, err error)
	Edit(ctx context.Context, chatID int64, messageID int, msg Message) error
	Delete(ctx context.Context, chatID int64, messageID int) error
}
