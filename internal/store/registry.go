// Package store holds the shared in-memory registry of registered users.
// Records are copied in and out; callers never hold references into the map.
// Durability is write-through to the snapshot and deliberately best-effort:
// a failed save leaves the in-memory state applied and is reported to the
// caller.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/dkurbatov/zayavki-bot/internal/domain"
)

// Registry implements domain.UserStore.
type Registry struct {
	snapshot domain.Snapshot

	mu    sync.RWMutex
	users map[int64]domain.User

	// userLocks serializes whole triggers per chat: the dispatcher holds a
	// user's lock for the full message or button press, so no two operations
	// for the same user ever run concurrently. mu above only guards the map.
	userLocks sync.Map // int64 -> *sync.Mutex
}

// Load builds a registry from the snapshot's current contents.
func Load(ctx context.Context, snapshot domain.Snapshot) (*Registry, error) {
	users, err := snapshot.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load user snapshot: %w", err)
	}

	byID := make(map[int64]domain.User, len(users))
	for _, user := range users {
		byID[user.ChatID] = user
	}
	return &Registry{snapshot: snapshot, users: byID}, nil
}

// Get returns a copy of the user record.
func (r *Registry) Get(chatID int64) (domain.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[chatID]
	return user, ok
}

// Put stores the record and writes it through to the snapshot. The in-memory
// update is applied even when the snapshot write fails; the error is returned
// so the caller can report it.
func (r *Registry) Put(ctx context.Context, user domain.User) error {
	r.mu.Lock()
	r.users[user.ChatID] = user
	r.mu.Unlock()

	if err := r.snapshot.Save(ctx, user); err != nil {
		return fmt.Errorf("persist user %d: %w", user.ChatID, err)
	}
	return nil
}

// Update applies fn to the stored record and persists the result. The map
// lock is released before the snapshot write; per-user serialization (see
// LockUser) keeps concurrent updates to the same record away.
func (r *Registry) Update(ctx context.Context, chatID int64, fn func(*domain.User) error) error {
	r.mu.Lock()
	user, ok := r.users[chatID]
	if !ok {
		r.mu.Unlock()
		return domain.ErrNotRegistered
	}
	if err := fn(&user); err != nil {
		r.mu.Unlock()
		return err
	}
	r.users[chatID] = user
	r.mu.Unlock()

	if err := r.snapshot.Save(ctx, user); err != nil {
		return fmt.Errorf("persist user %d: %w", chatID, err)
	}
	return nil
}

// ForEach visits a point-in-time copy of every user.
func (r *Registry) ForEach(fn func(domain.User) bool) {
	r.mu.RLock()
	users := make([]domain.User, 0, len(r.users))
	for _, user := range r.users {
		users = append(users, user)
	}
	r.mu.RUnlock()

	for _, user := range users {
		if !fn(user) {
			return
		}
	}
}

// Len returns the number of registered users.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// LockUser acquires the per-user serialization lock and returns the unlock
// function. Locks are keyed by chat id; different users never contend.
func (r *Registry) LockUser(chatID int64) func() {
	lock, _ := r.userLocks.LoadOrStore(chatID, &sync.Mutex{})
	mu := lock.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
