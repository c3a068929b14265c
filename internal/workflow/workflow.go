// Package workflow drives the per-conversation authorization state machine.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/denkond/hrgate/internal/errs"
	"github.com/denkond/hrgate/internal/model"
	"github.com/denkond/hrgate/internal/otp"
	"github.com/denkond/hrgate/internal/repository"
)

// Asker relays an authorized user's question to the assistant.
type Asker interface {
	Ask(ctx context.Context, question string) (string, error)
}

// Notifier delivers a one-time code out of band to the mailbox behind a login.
type Notifier interface {
	SendCode(ctx context.Context, email, code string) error
}

// Revocations is told about every device whose access was just revoked, so
// the transport can message it. May be nil.
type Revocations interface {
	NotifyRevoked(ctx context.Context, tgID int64)
}

// Conversation data keys.
const (
	dataLogin   = "login"
	dataCode    = "code"
	dataIsAdmin = "is_admin"
	dataAdminOp = "admin_op"
)

// Pending admin operations, kept in conversation data while the state stays
// authenticated_admin.
const (
	adminOpAdd    = "add"
	adminOpRemove = "remove"
)

// User-facing reply texts.
const (
	msgLoginPrompt      = "Please enter your corporate login (name%s)."
	msgAdminLoginPrompt = "Admin sign-in. Please enter your corporate login (name%s)."
	msgBadLogin         = "Invalid login. It must look like name%s."
	msgUnknownLogin     = "This login is not registered. Contact your administrator."
	msgCodeSent         = "A one-time code has been sent to your corporate mailbox. Please enter it."
	msgBadCode          = "Wrong code. Please try again."
	msgAuthorized       = "You are signed in. Ask me anything about working at the company."
	msgNotAdmin         = "This login has no administrator rights on this device."
	msgAdminAuthorized  = "Admin access granted. Use /addlogin and /removelogin to manage access."
	msgBanned           = "Your access has been revoked. Use /start to sign in again or contact your administrator."
	msgStartHint        = "Send /start to begin."
	msgAddLoginPrompt   = "Enter the login to add."
	msgRemoveLogin      = "Enter the login to remove."
	msgLoginAdded       = "Login %s has been added."
	msgLoginRemoved     = "Login %s removed; %d active device(s) were signed out."
	msgAdminOnly        = "This command is available to administrators only."
	msgFallback         = "Sorry, I could not process your request. " +
		"Please rephrase the question or try again later."
)

// Workflow validates logins and one-time codes, tracks each conversation's
// position durably, and forwards authorized questions to the assistant.
type Workflow struct {
	creds     repository.CredentialRepository
	states    repository.StateRepository
	assistant Asker
	notifier  Notifier
	revoked   Revocations
	suffix    string
	codeLen   int
	logger    *zap.Logger
}

// New constructs a workflow. revoked may be nil.
func New(
	creds repository.CredentialRepository,
	states repository.StateRepository,
	assistant Asker,
	notifier Notifier,
	revoked Revocations,
	suffix string,
	codeLen int,
	logger *zap.Logger,
) *Workflow {
	return &Workflow{
		creds:     creds,
		states:    states,
		assistant: assistant,
		notifier:  notifier,
		revoked:   revoked,
		suffix:    suffix,
		codeLen:   codeLen,
		logger:    logger,
	}
}

// SetRevocations wires the revocation listener after construction. The
// transport that implements it usually needs the workflow first.
func (w *Workflow) SetRevocations(r Revocations) {
	w.revoked = r
}

// Start resets the conversation and begins the regular sign-in flow.
// It is also the only way out of the banned state.
func (w *Workflow) Start(ctx context.Context, key model.ConvKey) (string, error) {
	if err := w.states.Clear(ctx, key); err != nil {
		return "", err
	}
	if err := w.states.SetState(ctx, key, model.StateAwaitingLogin); err != nil {
		return "", err
	}
	return fmt.Sprintf(msgLoginPrompt, w.suffix), nil
}

// StartAdmin resets the conversation and begins the admin sign-in flow.
func (w *Workflow) StartAdmin(ctx context.Context, key model.ConvKey) (string, error) {
	if err := w.states.Clear(ctx, key); err != nil {
		return "", err
	}
	if err := w.states.SetState(ctx, key, model.StateAwaitingAdminLogin); err != nil {
		return "", err
	}
	return fmt.Sprintf(msgAdminLoginPrompt, w.suffix), nil
}

// Handle processes one inbound text for the conversation and returns the
// reply. Validation problems resolve to a reply with the state unchanged;
// only store failures come back as errors.
func (w *Workflow) Handle(ctx context.Context, key model.ConvKey, text string) (string, error) {
	state, err := w.states.GetState(ctx, key)
	if err != nil {
		return "", err
	}
	switch state {
	case model.StateInitial:
		return msgStartHint, nil
	case model.StateAwaitingLogin:
		return w.handleLogin(ctx, key, text)
	case model.StateAwaitingCode:
		return w.handleCode(ctx, key, text)
	case model.StateAwaitingAdminLogin:
		return w.handleAdminLogin(ctx, key, text)
	case model.StateUser:
		return w.answerQuestion(ctx, text)
	case model.StateAdmin:
		return w.handleAdmin(ctx, key, text)
	case model.StateBanned:
		return msgBanned, nil
	default:
		return "", fmt.Errorf("unexpected conversation state %q", state)
	}
}

// validLogin reports whether text is a non-empty login with the exact
// organizational suffix. Comparison is case-sensitive, no normalization.
func (w *Workflow) validLogin(text string) bool {
	return text != "" && strings.HasSuffix(text, w.suffix)
}

func (w *Workflow) handleLogin(ctx context.Context, key model.ConvKey, text string) (string, error) {
	login := strings.TrimSpace(text)
	if !w.validLogin(login) {
		return fmt.Sprintf(msgBadLogin, w.suffix), nil
	}
	exists, err := w.creds.LoginExists(ctx, login)
	if err != nil {
		return "", err
	}
	if !exists {
		return msgUnknownLogin, nil
	}

	code, err := otp.Code(w.codeLen)
	if err != nil {
		return "", err
	}
	if _, err := w.states.UpdateData(ctx, key, map[string]any{dataLogin: login, dataCode: code}); err != nil {
		return "", err
	}
	// Delivery failure is logged, not fatal: the user re-requests via /start.
	if err := w.notifier.SendCode(ctx, login, code); err != nil {
		w.logger.Warn("one-time code delivery failed", zap.String("login", login), zap.Error(err))
	}
	if err := w.states.SetState(ctx, key, model.StateAwaitingCode); err != nil {
		return "", err
	}
	return msgCodeSent, nil
}

func (w *Workflow) handleCode(ctx context.Context, key model.ConvKey, text string) (string, error) {
	data, err := w.states.GetData(ctx, key)
	if err != nil {
		return "", err
	}
	login, _ := data[dataLogin].(string)
	code, _ := data[dataCode].(string)
	if login == "" || code == "" {
		// Stored data is gone or corrupt; restart the flow.
		return w.Start(ctx, key)
	}
	if text != code {
		return msgBadCode, nil
	}
	if err := w.creds.UpsertSession(ctx, key.UserID, login); err != nil {
		return "", err
	}
	if err := w.states.SetState(ctx, key, model.StateUser); err != nil {
		return "", err
	}
	return msgAuthorized, nil
}

func (w *Workflow) handleAdminLogin(ctx context.Context, key model.ConvKey, text string) (string, error) {
	login := strings.TrimSpace(text)
	if !w.validLogin(login) {
		return fmt.Sprintf(msgBadLogin, w.suffix), nil
	}
	exists, err := w.creds.LoginExists(ctx, login)
	if err != nil {
		return "", err
	}
	if !exists {
		return msgUnknownLogin, nil
	}

	isAdmin, err := w.creds.IsAdminFor(ctx, login, key.UserID)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return "", err
	}
	if err != nil || !isAdmin {
		// Deny and stay on the admin login step; no silent downgrade.
		if _, derr := w.states.UpdateData(ctx, key, map[string]any{dataIsAdmin: false}); derr != nil {
			return "", derr
		}
		return msgNotAdmin, nil
	}

	if _, err := w.states.UpdateData(ctx, key, map[string]any{dataLogin: login, dataIsAdmin: true}); err != nil {
		return "", err
	}
	if err := w.states.SetState(ctx, key, model.StateAdmin); err != nil {
		return "", err
	}
	return msgAdminAuthorized, nil
}

// answerQuestion forwards the text to the assistant. Upstream trouble becomes
// the fallback text; the statistics write is a best-effort side channel that
// never blocks or fails the reply.
func (w *Workflow) answerQuestion(ctx context.Context, text string) (string, error) {
	answer, err := w.assistant.Ask(ctx, text)
	if err != nil {
		w.logger.Error("assistant request failed", zap.Error(err))
		answer = msgFallback
	}
	if err := w.creds.RecordQuestion(ctx, text); err != nil {
		w.logger.Warn("question stats write failed", zap.Error(err))
	}
	return answer, nil
}

// BeginAddLogin arms the add-login prompt for an authenticated admin.
func (w *Workflow) BeginAddLogin(ctx context.Context, key model.ConvKey) (string, error) {
	return w.beginAdminOp(ctx, key, adminOpAdd, msgAddLoginPrompt)
}

// BeginRemoveLogin arms the remove-login prompt for an authenticated admin.
func (w *Workflow) BeginRemoveLogin(ctx context.Context, key model.ConvKey) (string, error) {
	return w.beginAdminOp(ctx, key, adminOpRemove, msgRemoveLogin)
}

func (w *Workflow) beginAdminOp(ctx context.Context, key model.ConvKey, op, prompt string) (string, error) {
	state, err := w.states.GetState(ctx, key)
	if err != nil {
		return "", err
	}
	if state != model.StateAdmin {
		return msgAdminOnly, nil
	}
	if _, err := w.states.UpdateData(ctx, key, map[string]any{dataAdminOp: op}); err != nil {
		return "", err
	}
	return prompt, nil
}

// handleAdmin consumes a pending admin sub-operation if one is armed;
// ordinary text goes to the assistant like for any authorized user. Whatever
// happens, the conversation remains authenticated_admin.
func (w *Workflow) handleAdmin(ctx context.Context, key model.ConvKey, text string) (string, error) {
	data, err := w.states.GetData(ctx, key)
	if err != nil {
		return "", err
	}
	op, _ := data[dataAdminOp].(string)
	if op == "" {
		return w.answerQuestion(ctx, text)
	}

	// One shot: the prompt is disarmed before the operation runs, so a store
	// error cannot wedge the admin in a half-finished sub-flow.
	if _, err := w.states.UpdateData(ctx, key, map[string]any{dataAdminOp: ""}); err != nil {
		return "", err
	}

	login := strings.TrimSpace(text)
	if !w.validLogin(login) {
		return fmt.Sprintf(msgBadLogin, w.suffix), nil
	}

	switch op {
	case adminOpAdd:
		if err := w.creds.AddLogin(ctx, login); err != nil {
			return "", err
		}
		return fmt.Sprintf(msgLoginAdded, login), nil
	case adminOpRemove:
		ids, err := w.creds.DeleteLoginCascade(ctx, login)
		if err != nil {
			return "", err
		}
		for _, id := range ids {
			if err := w.Ban(ctx, id); err != nil {
				w.logger.Error("failed to ban revoked device", zap.Int64("tg_id", id), zap.Error(err))
				continue
			}
			if w.revoked != nil {
				w.revoked.NotifyRevoked(ctx, id)
			}
		}
		return fmt.Sprintf(msgLoginRemoved, login, len(ids)), nil
	default:
		return "", fmt.Errorf("unexpected admin operation %q", op)
	}
}

// Ban clears the device's conversation and forces it into the banned state.
// Private chats use the user id as the chat id.
func (w *Workflow) Ban(ctx context.Context, tgID int64) error {
	key := model.ConvKey{ChatID: tgID, UserID: tgID}
	if err := w.states.Clear(ctx, key); err != nil {
		return err
	}
	return w.states.SetState(ctx, key, model.StateBanned)
}

// BannedReply is what a revoked device sees, exposed for the transport's
// revocation notice.
func BannedReply() string { return msgBanned }
