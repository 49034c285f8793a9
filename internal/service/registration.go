package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dkurbatov/zayavki-bot/internal/domain"
	"github.com/dkurbatov/zayavki-bot/internal/vault"
)

// RegStep tells the handler what to ask the user for next.
type RegStep int

const (
	RegPromptEmail RegStep = iota + 1
	RegPromptPassword
	RegPromptDisplayName
	RegDone
)

type regState struct {
	step  RegStep
	email string
}

// RegistrationService runs the linear registration dialog: email, password,
// display name. The password step performs a live login; nothing is stored
// until that login succeeds.
type RegistrationService struct {
	sessions *SessionManager
	store    domain.UserStore
	vault    *vault.Vault
	now      func() time.Time

	mu      sync.Mutex
	dialogs map[int64]*regState
}

func NewRegistrationService(sessions *SessionManager, store domain.UserStore, v *vault.Vault) *RegistrationService {
	return &RegistrationService{
		sessions: sessions,
		store:    store,
		vault:    v,
		now:      time.Now,
		dialogs:  make(map[int64]*regState),
	}
}

// Start opens (or reopens) the dialog for chatID and returns the first step.
// A user already registered but without a display name resumes at the
// display-name step instead of re-entering credentials.
func (s *RegistrationService) Start(chatID int64) RegStep {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user, ok := s.store.Get(chatID); ok && user.DisplayName == "" && user.EncryptedPassword != "" {
		s.dialogs[chatID] = &regState{step: RegPromptDisplayName}
		return RegPromptDisplayName
	}
	s.dialogs[chatID] = &regState{step: RegPromptEmail}
	return RegPromptEmail
}

// Active reports whether chatID has a dialog in progress.
func (s *RegistrationService) Active(chatID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.dialogs[chatID]
	return ok
}

// AwaitingPassword reports whether the next message from chatID will be a
// plaintext password. The handler deletes such messages from the chat.
func (s *RegistrationService) AwaitingPassword(chatID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.dialogs[chatID]
	return ok && state.step == RegPromptPassword
}

// HandleMessage feeds one plain message into the dialog and returns the next
// step. A failed login at the password step ends the dialog with an error and
// persists nothing.
func (s *RegistrationService) HandleMessage(ctx context.Context, chatID int64, text string) (RegStep, error) {
	s.mu.Lock()
	state, ok := s.dialogs[chatID]
	s.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("chat %d: no registration dialog", chatID)
	}

	text = strings.TrimSpace(text)

	switch state.step {
	case RegPromptEmail:
		state.email = text
		state.step = RegPromptPassword
		return RegPromptPassword, nil

	case RegPromptPassword:
		step, err := s.finishCredentials(ctx, chatID, state.email, text)
		if err != nil {
			s.drop(chatID)
			return 0, err
		}
		if step == RegDone {
			s.drop(chatID)
		} else {
			state.step = step
		}
		return step, nil

	case RegPromptDisplayName:
		err := s.store.Update(ctx, chatID, func(u *domain.User) error {
			u.DisplayName = text
			return nil
		})
		if err != nil {
			s.drop(chatID)
			return 0, fmt.Errorf("store display name: %w", err)
		}
		s.drop(chatID)
		return RegDone, nil
	}
	return 0, fmt.Errorf("chat %d: registration dialog in unknown step", chatID)
}

// finishCredentials verifies the credentials against the CRM and, only on
// success, stores the encrypted password and the fresh session.
func (s *RegistrationService) finishCredentials(ctx context.Context, chatID int64, email, password string) (RegStep, error) {
	session, err := s.sessions.Authenticate(ctx, email, password)
	if err != nil {
		return 0, err
	}

	encrypted, err := s.vault.Encrypt(password)
	if err != nil {
		return 0, fmt.Errorf("seal password: %w", err)
	}

	displayName := ""
	if existing, ok := s.store.Get(chatID); ok {
		displayName = existing.DisplayName
	}

	now := s.now()
	user := domain.User{
		ChatID:            chatID,
		Email:             email,
		EncryptedPassword: encrypted,
		DisplayName:       displayName,
		Session:           session,
		LastLogin:         &now,
	}
	if err := s.store.Put(ctx, user); err != nil {
		return 0, fmt.Errorf("store user: %w", err)
	}

	if displayName == "" {
		return RegPromptDisplayName, nil
	}
	return RegDone, nil
}

func (s *RegistrationService) drop(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.dialogs, chatID)
}
