// Package model defines domain entities used by workflow, repositories and the upstream client.
package model

// State is a conversation's position in the authorization workflow.
// The set is closed; anything read from storage outside it is a bug.
type State string

const (
	// StateInitial is the implicit state of a conversation with no stored row.
	StateInitial State = ""

	// StateAwaitingLogin waits for a corporate login after /start.
	StateAwaitingLogin State = "awaiting_login"

	// StateAwaitingCode waits for the one-time code sent to the login's mailbox.
	StateAwaitingCode State = "awaiting_code"

	// StateUser is an authorized regular user; messages go to the assistant.
	StateUser State = "authenticated_user"

	// StateAwaitingAdminLogin waits for a corporate login on the admin entry path.
	StateAwaitingAdminLogin State = "awaiting_admin_login"

	// StateAdmin is an authorized administrator.
	StateAdmin State = "authenticated_admin"

	// StateBanned marks a conversation whose login was revoked.
	StateBanned State = "banned"
)

// ConvKey identifies one conversation. Telegram private chats use the
// user id for both fields.
type ConvKey struct {
	ChatID int64
	UserID int64
}

// Tokens is the upstream API token pair. Either both fields are populated
// or the record is absent; it is never partially updated.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}
