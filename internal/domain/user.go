package domain

import (
	"context"
	"time"
)

// User is a registered bot user bound to one CRM account.
type User struct {
	ChatID            int64
	Email             string
	EncryptedPassword string
	DisplayName       string
	Session           Session
	LastLogin         *time.Time
}

// UserStore is the shared in-memory registry of registered users. Put and
// Update write through to the durable snapshot. Implementations must be safe
// for concurrent use.
type UserStore interface {
	Get(chatID int64) (User, bool)
	Put(ctx context.Context, user User) error
	// Update applies fn to the stored record under the registry lock and
	// persists the result. Returns ErrNotRegistered for unknown users.
	Update(ctx context.Context, chatID int64, fn func(*User) error) error
	// ForEach visits a point-in-time copy of every user. Returning false
	// from fn stops the walk.
	ForEach(fn func(User) bool)
	Len() int
}

// Snapshot is the durable backing of the user registry: loaded once at
// startup, written after every mutation.
type Snapshot interface {
	LoadAll(ctx context.Context) ([]User, error)
	Save(ctx context.Context, user User) error
}
