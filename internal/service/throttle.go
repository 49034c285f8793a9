package service

import (
	"sync"
	"time"
)

// NoticeThrottle limits how often a repeated notice is sent to one chat.
// When the CRM is down every trigger fails the same way; the user gets told
// once per interval instead of once per tap. Safe for concurrent use; stale
// entries are cleaned up in the background.
type NoticeThrottle struct {
	mu       sync.Mutex
	lastSent map[int64]time.Time
	interval time.Duration
	now      func() time.Time
}

// NewNoticeThrottle creates a throttle allowing one notice per chat per
// interval. It starts a background goroutine that drops entries old enough
// to be allowed again anyway.
func NewNoticeThrottle(interval time.Duration) *NoticeThrottle {
	t := &NoticeThrottle{
		lastSent: make(map[int64]time.Time),
		interval: interval,
		now:      time.Now,
	}
	go t.cleanup()
	return t
}

// Allow reports whether a notice may go to chatID now, and records it if so.
func (t *NoticeThrottle) Allow(chatID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if last, ok := t.lastSent[chatID]; ok && now.Sub(last) < t.interval {
		return false
	}
	t.lastSent[chatID] = now
	return true
}

func (t *NoticeThrottle) cleanup() {
	ticker := time.NewTicker(t.interval)
	for range ticker.C {
		t.mu.Lock()
		cutoff := t.now().Add(-t.interval)
		for chatID, last := range t.lastSent {
			if last.Before(cutoff) {
				delete(t.lastSent, chatID)
			}
		}
		t.mu.Unlock()
	}
}
