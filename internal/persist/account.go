package persist

import (
	"database/sql"
	"time"

	"github.com/matheus3301/glasschat/internal/auth"
)

// SaveAccount upserts the single persisted account row.
func (db *DB) SaveAccount(a auth.Account) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO account (id, user_id, name, token, authenticated, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			name = excluded.name,
			token = excluded.token,
			authenticated = excluded.authenticated,
			updated_at = excluded.updated_at`,
		a.UserID, a.Name, a.Token, a.Authenticated, now)
	return err
}

// LoadAccount returns the persisted account, or nil when none is saved.
func (db *DB) LoadAccount() (*auth.Account, error) {
	var a auth.Account
	err := db.QueryRow(`
		SELECT user_id, name, token, authenticated FROM account WHERE id = 1`).
		Scan(&a.UserID, &a.Name, &a.Token, &a.Authenticated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// DeleteAccount removes the persisted account. Idempotent.
func (db *DB) DeleteAccount() error {
	_, err := db.Exec(`DELETE FROM account`)
	return err
}
