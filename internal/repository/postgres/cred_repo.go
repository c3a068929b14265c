package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/denkond/hrgate/internal/errs"
)

// CredRepo implements CredentialRepository using PostgreSQL.
type CredRepo struct{ db *DB }

// NewCredRepo constructs a credential repository.
func NewCredRepo(db *DB) *CredRepo { return &CredRepo{db: db} }

// LoginExists reports whether the whitelist contains the exact login string.
func (r *CredRepo) LoginExists(ctx context.Context, login string) (bool, error) {
	const q = `SELECT 1 FROM logins WHERE login=$1`
	var one int
	err := r.db.Pool.QueryRow(ctx, q, login).Scan(&one)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, pgx.ErrNoRows):
		return false, nil
	default:
		return false, err
	}
}

// AddLogin inserts a non-admin login; a conflicting insert is a no-op.
func (r *CredRepo) AddLogin(ctx context.Context, login string) error {
	const q = `
INSERT INTO logins (login, is_admin)
VALUES ($1, false)
ON CONFLICT (login) DO NOTHING`
	_, err := r.db.Pool.Exec(ctx, q, login)
	return err
}

// DeleteLoginCascade removes the login and, via the FK cascade, every session
// bound to it. The affected Telegram user ids are collected in the same
// transaction so no session is ever left pointing at a deleted login.
func (r *CredRepo) DeleteLoginCascade(ctx context.Context, login string) (ids []int64, err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const sel = `SELECT tg_id FROM sessions WHERE login=$1`
	rows, err := tx.Query(ctx, sel, login)
	if err != nil {
		return nil, err
	}
	ids = make([]int64, 0)
	for rows.Next() {
		var id int64
		if err = rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return nil, err
	}

	const del = `DELETE FROM logins WHERE login=$1`
	if _, err = tx.Exec(ctx, del, login); err != nil {
		return nil, err
	}
	return ids, nil
}

// IsAdminFor reports the admin flag of the login bound to tgID. A missing
// login or binding is errs.ErrNotFound, which callers treat as deny.
func (r *CredRepo) IsAdminFor(ctx context.Context, login string, tgID int64) (bool, error) {
	const q = `
SELECT l.is_admin
FROM logins l
JOIN sessions s ON s.login = l.login
WHERE l.login=$1 AND s.tg_id=$2`
	var isAdmin bool
	err := r.db.Pool.QueryRow(ctx, q, login, tgID).Scan(&isAdmin)
	switch {
	case err == nil:
		return isAdmin, nil
	case errors.Is(err, pgx.ErrNoRows):
		return false, errs.ErrNotFound
	default:
		return false, err
	}
}

// SetAdminStatus flips the admin flag on an existing login.
func (r *CredRepo) SetAdminStatus(ctx context.Context, login string, admin bool) error {
	const q = `UPDATE logins SET is_admin=$2 WHERE login=$1`
	tag, err := r.db.Pool.Exec(ctx, q, login, admin)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// UpsertSession binds tgID to login; an existing session wins.
func (r *CredRepo) UpsertSession(ctx context.Context, tgID int64, login string) error {
	const q = `
INSERT INTO sessions (tg_id, login)
VALUES ($1, $2)
ON CONFLICT (tg_id) DO NOTHING`
	_, err := r.db.Pool.Exec(ctx, q, tgID, login)
	return err
}

// RecordQuestion increments the frequency counter for the exact question text.
func (r *CredRepo) RecordQuestion(ctx context.Context, question string) error {
	const q = `
INSERT INTO statistics (question, frequency)
VALUES ($1, 1)
ON CONFLICT (question) DO UPDATE
SET frequency = statistics.frequency + 1`
	_, err := r.db.Pool.Exec(ctx, q, question)
	return err
}
