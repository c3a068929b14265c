// Package repository defines storage interfaces implemented by concrete backends.
package repository

import "context"

// CredentialRepository provides access to the login whitelist, user sessions
// and the question statistics side channel.
type CredentialRepository interface {
	// LoginExists reports whether the whitelist contains the exact login string.
	LoginExists(ctx context.Context, login string) (bool, error)
	// AddLogin inserts a non-admin whitelist entry; a duplicate is a no-op.
	AddLogin(ctx context.Context, login string) error
	// DeleteLoginCascade removes the login and every session bound to it in a
	// single transaction and returns the previously bound Telegram user ids.
	// An unknown login yields an empty slice, not an error.
	DeleteLoginCascade(ctx context.Context, login string) ([]int64, error)
	// IsAdminFor reports the admin flag of the login bound to tgID via an
	// active session. Returns errs.ErrNotFound when the login or the binding
	// does not exist; callers must treat that as deny.
	IsAdminFor(ctx context.Context, login string, tgID int64) (bool, error)
	// SetAdminStatus flips the admin flag on an existing login.
	SetAdminStatus(ctx context.Context, login string, admin bool) error
	// UpsertSession binds tgID to login. An existing session for tgID is left
	// unchanged (first-writer-wins).
	UpsertSession(ctx context.Context, tgID int64, login string) error
	// RecordQuestion increments the frequency counter for the exact question
	// text. Best-effort analytics; callers log failures and move on.
	RecordQuestion(ctx context.Context, question string) error
}
