package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dkurbatov/zayavki-bot/internal/domain"
	"github.com/dkurbatov/zayavki-bot/internal/ops"
)

// ApprovalService drives the order approval workflow: category selection,
// free-text comments and the final remote submit.
type ApprovalService struct {
	sessions *SessionManager
	store    domain.UserStore
	remote   domain.RemoteClient
	metrics  *ops.Metrics
	now      func() time.Time

	mu       sync.Mutex
	pending  map[int64]int64 // chatID -> order awaiting a free-text comment
	approved map[int64]bool  // orders approved in this process
}

func NewApprovalService(sessions *SessionManager, store domain.UserStore, remote domain.RemoteClient, metrics *ops.Metrics) *ApprovalService {
	return &ApprovalService{
		sessions: sessions,
		store:    store,
		remote:   remote,
		metrics:  metrics,
		now:      time.Now,
		pending:  make(map[int64]int64),
		approved: make(map[int64]bool),
	}
}

// Categories returns the fixed comment categories offered on approval.
func (s *ApprovalService) Categories() []string {
	return []string{"платно", "субсидия"}
}

// Comment builds the approval comment recorded in the CRM: current date,
// the approver's display name and the category or free text.
func (s *ApprovalService) Comment(chatID int64, text string) (string, error) {
	user, ok := s.store.Get(chatID)
	if !ok {
		return "", domain.ErrNotRegistered
	}
	if user.DisplayName == "" {
		return "", domain.ErrNoDisplayName
	}
	return fmt.Sprintf("%s %s %s", s.now().Format("02.01"), user.DisplayName, text), nil
}

// RequestCustom records that the next plain message from chatID is the
// free-text comment for orderID. A newer request replaces an older one.
func (s *ApprovalService) RequestCustom(chatID, orderID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[chatID] = orderID
}

// TakePending pops the order awaiting a free-text comment from chatID.
// Returns ErrNoPendingApproval when there is none.
func (s *ApprovalService) TakePending(chatID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	orderID, ok := s.pending[chatID]
	if !ok {
		return 0, domain.ErrNoPendingApproval
	}
	delete(s.pending, chatID)
	return orderID, nil
}

// CancelPending discards a free-text request without submitting.
func (s *ApprovalService) CancelPending(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, chatID)
}

// Submit approves orderID with comment on behalf of chatID. Approving an
// order twice is a no-op; a 409 from the remote means someone else got there
// first and counts as success.
func (s *ApprovalService) Submit(ctx context.Context, chatID, orderID int64, comment string) error {
	s.mu.Lock()
	done := s.approved[orderID]
	s.mu.Unlock()
	if done {
		slog.Info("order already approved, skipping", "order_id", orderID)
		return nil
	}

	err := s.sessions.WithSession(ctx, chatID, func(ctx context.Context, token string) error {
		return s.remote.Approve(ctx, token, orderID, comment)
	})
	if err != nil {
		var re *domain.RemoteError
		if errors.As(err, &re) && re.Status == 409 {
			slog.Info("order approved elsewhere", "order_id", orderID)
		} else {
			return fmt.Errorf("approve order %d: %w", orderID, err)
		}
	}

	s.mu.Lock()
	s.approved[orderID] = true
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.Approvals.Inc()
	}
	return nil
}
