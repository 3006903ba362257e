// Package handler routes inbound player events to the game services and
// renders the replies.
package handler

import (
	"context"

	"crimson-city-bot/internal/action"
)

// EventKind tells what a player sent.
type EventKind int

// Event kinds.
const (
	EventStart EventKind = iota
	EventText
	EventVoice
	EventCallback
	EventCommand
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventText:
		return "text"
	case EventVoice:
		return "voice"
	case EventCallback:
		return "callback"
	case EventCommand:
		return "command"
	}
	return "unknown"
}

// Event is one inbound update, already decoded by the transport.
type Event struct {
	Kind     EventKind
	PlayerID int64
	// DisplayName is the sender's name as the platform shows it.
	DisplayName string
	// Text is the message text for EventText and the argument string for
	// EventCommand.
	Text string
	// Command is the command name without the leading slash.
	Command  string
	VoiceRef string
	Action   action.Action
	// MessageID is the message carrying the pressed button, 0 if unknown.
	MessageID int
}

// Message is an outbound text message.
type Message struct {
	Text     string
	Keyboard action.Keyboard
	Markdown bool
}

// Sender delivers messages to players.
type Sender interface {
	SendText(ctx context.Context, to int64, msg Message) error
	SendVoice(ctx context.Context, to int64, voiceRef string, kb action.Keyboard) error
	// ClearKeyboard removes the buttons from a message already sent to chat.
	ClearKeyboard(ctx context.Context, chat int64, messageID int) error
}
