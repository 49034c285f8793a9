package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dkurbatov/zayavki-bot/internal/domain"
	"github.com/dkurbatov/zayavki-bot/internal/repository/sqlite"
)

func newTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New DB: %v", err)
	}
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestUserSnapshot_SaveLoadRoundTrip(t *testing.T) {
	db := newTestDB(t)
	snap := db.Users()
	ctx := context.Background()

	lastLogin := time.Date(2026, 8, 20, 10, 30, 0, 0, time.UTC)
	want := domain.User{
		ChatID:            100500,
		Email:             "manager@example.ru",
		EncryptedPassword: "base64-blob",
		DisplayName:       "Иванова А.А.",
		LastLogin:         &lastLogin,
	}
	if err := snap.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	users, err := snap.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}
	got := users[0]
	if got.ChatID != want.ChatID || got.Email != want.Email ||
		got.EncryptedPassword != want.EncryptedPassword || got.DisplayName != want.DisplayName {
		t.Fatalf("loaded user mismatch: %+v", got)
	}
	if got.LastLogin == nil || !got.LastLogin.Equal(lastLogin) {
		t.Fatalf("LastLogin = %v, want %v", got.LastLogin, lastLogin)
	}
	if got.Session.Authenticated() {
		t.Fatal("session state must not survive a reload")
	}
}

func TestUserSnapshot_SaveIsUpsert(t *testing.T) {
	db := newTestDB(t)
	snap := db.Users()
	ctx := context.Background()

	user := domain.User{ChatID: 1, Email: "a@b.ru", EncryptedPassword: "blob-1"}
	if err := snap.Save(ctx, user); err != nil {
		t.Fatalf("Save: %v", err)
	}
	user.EncryptedPassword = "blob-2"
	user.DisplayName = "Петрова"
	if err := snap.Save(ctx, user); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	users, err := snap.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected 1 user after upsert, got %d", len(users))
	}
	if users[0].EncryptedPassword != "blob-2" || users[0].DisplayName != "Петрова" {
		t.Fatalf("upsert did not replace fields: %+v", users[0])
	}
}

func TestUserSnapshot_NilLastLogin(t *testing.T) {
	db := newTestDB(t)
	snap := db.Users()
	ctx := context.Background()

	if err := snap.Save(ctx, domain.User{ChatID: 2, Email: "a@b.ru", EncryptedPassword: "blob"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	users, err := snap.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if users[0].LastLogin != nil {
		t.Fatalf("LastLogin = %v, want nil", users[0].LastLogin)
	}
}

func TestUserSnapshot_QuarantinesMalformedRows(t *testing.T) {
	db := newTestDB(t)
	snap := db.Users()
	ctx := context.Background()

	// Healthy row.
	if err := snap.Save(ctx, domain.User{ChatID: 1, Email: "ok@b.ru", EncryptedPassword: "blob"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	// Row with a broken timestamp: loaded, but as "never authenticated".
	mustExec(t, db, `INSERT INTO users (chat_id, email, encrypted_password, last_login)
		VALUES (2, 'ts@b.ru', 'blob', 'not-a-date')`)
	// Row with no password: skipped outright.
	mustExec(t, db, `INSERT INTO users (chat_id, email, encrypted_password)
		VALUES (3, 'empty@b.ru', '')`)

	users, err := snap.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll must not fail on malformed rows: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 loaded users, got %d: %+v", len(users), users)
	}
	byID := make(map[int64]domain.User)
	for _, u := range users {
		byID[u.ChatID] = u
	}
	if _, ok := byID[3]; ok {
		t.Fatal("row without password must be quarantined")
	}
	if u := byID[2]; u.LastLogin != nil {
		t.Fatalf("broken timestamp must load as nil LastLogin, got %v", u.LastLogin)
	}
}

func mustExec(t *testing.T, db *sqlite.DB, query string) {
	t.Helper()
	if err := db.Exec(context.Background(), query); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}
