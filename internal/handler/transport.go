package handler

import "context"

// Button is one inline keyboard button. Data is a callback token.
type Button struct {
	Label string
	Data  string
}

// Transport is the messaging surface the dispatcher drives. The telegram
// adapter implements it; tests use an in-memory fake.
type Transport interface {
	// Send posts text to a chat, optionally with an inline keyboard
	// (rows of buttons), and returns the new message id.
	Send(ctx context.Context, chatID int64, text string, keyboard [][]Button) (messageID int, err error)
	// EditText replaces a message's text and keyboard together. A nil
	// keyboard removes the buttons.
	EditText(ctx context.Context, chatID int64, messageID int, text string, keyboard [][]Button) error
	// EditKeyboard replaces only a message's keyboard.
	EditKeyboard(ctx context.Context, chatID int64, messageID int, keyboard [][]Button) error
	// Delete removes a message from the chat.
	Delete(ctx context.Context, chatID int64, messageID int) error
	// AnswerCallback acknowledges a callback query so the client stops
	// its spinner. text, when non-empty, shows as a toast.
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// Update is one normalized incoming event: either a plain message or a
// callback-button tap.
type Update struct {
	ChatID    int64
	MessageID int
	Text      string
	Callback  *Callback
}

// Callback carries a button tap plus the message it was attached to, so the
// dispatcher can rewrite that message in place.
type Callback struct {
	ID          string
	Data        string
	MessageID   int
	MessageText string
}
