package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/dkurbatov/zayavki-bot/internal/domain"
)

// UserSnapshot implements domain.Snapshot over the users table. Timestamps
// are stored as RFC 3339 text so the snapshot stays readable with plain
// sqlite tooling.
type UserSnapshot struct {
	db *sql.DB
}

// LoadAll reads every user row. Malformed rows are quarantined: a broken
// last_login is logged and loaded as "never authenticated"; a row missing its
// email or password is skipped entirely. A bad row never fails the load.
func (s *UserSnapshot) LoadAll(ctx context.Context) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id, email, encrypted_password, display_name, last_login FROM users`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	quarantined := 0
	for rows.Next() {
		var (
			user      domain.User
			lastLogin sql.NullString
		)
		if err := rows.Scan(&user.ChatID, &user.Email, &user.EncryptedPassword, &user.DisplayName, &lastLogin); err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}

		if user.Email == "" || user.EncryptedPassword == "" {
			slog.Warn("quarantined user row with missing credentials", "chat_id", user.ChatID)
			quarantined++
			continue
		}

		if lastLogin.Valid && lastLogin.String != "" {
			ts, err := time.Parse(time.RFC3339, lastLogin.String)
			if err != nil {
				slog.Warn("invalid last_login timestamp, treating as never authenticated",
					"chat_id", user.ChatID, "error", err)
			} else {
				user.LastLogin = &ts
			}
		}

		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user rows: %w", err)
	}

	if quarantined > 0 {
		slog.Warn("user snapshot loaded with quarantined rows", "loaded", len(users), "quarantined", quarantined)
	}
	return users, nil
}

// Save upserts one user row. Session state is process-local and never stored.
func (s *UserSnapshot) Save(ctx context.Context, user domain.User) error {
	var lastLogin any
	if user.LastLogin != nil {
		lastLogin = user.LastLogin.UTC().Format(time.RFC3339)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (chat_id, email, encrypted_password, display_name, last_login)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(chat_id) DO UPDATE SET
		   email = excluded.email,
		   encrypted_password = excluded.encrypted_password,
		   display_name = excluded.display_name,
		   last_login = excluded.last_login`,
		user.ChatID, user.Email, user.EncryptedPassword, user.DisplayName, lastLogin,
	)
	if err != nil {
		return fmt.Errorf("upsert user %d: %w", user.ChatID, err)
	}
	return nil
}
