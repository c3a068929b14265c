// Package upstream talks to the inference API: token lifecycle and the
// create/poll/delete chat protocol.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/denkond/hrgate/internal/errs"
	"github.com/denkond/hrgate/internal/model"
)

// expirySkew is how close to expiry an access token is still considered usable.
const expirySkew = 30 * time.Second

// TokenManager owns the process-wide token pair. All reads and replacements
// go through a single mutex, so concurrent callers never trigger duplicate
// refresh calls.
type TokenManager struct {
	store    TokenStore
	httpc    *http.Client
	baseURL  string
	username string
	password string
	logger   *zap.Logger

	mu     sync.Mutex
	cached model.Tokens
	loaded bool
}

// NewTokenManager constructs a manager around the given store and credentials.
func NewTokenManager(store TokenStore, httpc *http.Client, baseURL, username, password string, logger *zap.Logger) *TokenManager {
	if httpc == nil {
		httpc = &http.Client{Timeout: 30 * time.Second}
	}
	return &TokenManager{
		store:    store,
		httpc:    httpc,
		baseURL:  baseURL,
		username: username,
		password: password,
		logger:   logger,
	}
}

// tokenPair is the wire shape of both token endpoints.
type tokenPair struct {
	AuthorizationToken string `json:"authorization_token"`
	RefreshToken       string `json:"refresh_token"`
}

// Token returns a usable access token, obtaining or refreshing the stored
// pair as needed. A refresh failure of any kind falls back to obtaining a
// fresh pair; only a failure of that fallback propagates.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.loaded {
		t, ok, err := m.store.Load()
		if err != nil {
			return "", err
		}
		if ok {
			m.cached = t
		}
		m.loaded = true
	}

	if m.cached.AccessToken == "" || m.cached.RefreshToken == "" {
		return m.obtainNewLocked(ctx)
	}

	if accessStillValid(m.cached.AccessToken) {
		return m.cached.AccessToken, nil
	}

	token, err := m.refreshLocked(ctx)
	if err == nil {
		return token, nil
	}
	m.logger.Warn("token refresh failed, requesting a new pair", zap.Error(err))
	return m.obtainNewLocked(ctx)
}

// obtainNewLocked trades credentials for a fresh pair. 400/401 is a fatal
// errs.ErrAuthFailed; it propagates to the caller.
func (m *TokenManager) obtainNewLocked(ctx context.Context) (string, error) {
	body, err := json.Marshal(map[string]string{
		"username": m.username,
		"password": m.password,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/token", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	pair, err := m.doTokenRequest(req)
	if err != nil {
		return "", fmt.Errorf("obtain tokens: %w", err)
	}
	return m.storeLocked(pair)
}

// refreshLocked exchanges the stored refresh token for a new pair. The
// request carries the refresh token as a bearer credential and no body.
func (m *TokenManager) refreshLocked(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/token/refresh", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+m.cached.RefreshToken)

	pair, err := m.doTokenRequest(req)
	if err != nil {
		return "", fmt.Errorf("refresh tokens: %w", err)
	}
	return m.storeLocked(pair)
}

func (m *TokenManager) doTokenRequest(req *http.Request) (tokenPair, error) {
	resp, err := m.httpc.Do(req)
	if err != nil {
		return tokenPair{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusBadRequest, http.StatusUnauthorized:
		return tokenPair{}, fmt.Errorf("%w: status %d", errs.ErrAuthFailed, resp.StatusCode)
	default:
		return tokenPair{}, fmt.Errorf("%w: token endpoint status %d", errs.ErrUpstream, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return tokenPair{}, err
	}
	var pair tokenPair
	if err := json.Unmarshal(raw, &pair); err != nil {
		return tokenPair{}, fmt.Errorf("%w: bad token response: %v", errs.ErrUpstream, err)
	}
	if pair.AuthorizationToken == "" || pair.RefreshToken == "" {
		return tokenPair{}, fmt.Errorf("%w: token response missing fields", errs.ErrUpstream)
	}
	return pair, nil
}

// storeLocked persists the pair wholesale and updates the in-process view so
// subsequent calls see the new token immediately.
func (m *TokenManager) storeLocked(pair tokenPair) (string, error) {
	t := model.Tokens{AccessToken: pair.AuthorizationToken, RefreshToken: pair.RefreshToken}
	if err := m.store.Save(t); err != nil {
		return "", fmt.Errorf("persist tokens: %w", err)
	}
	m.cached = t
	return t.AccessToken, nil
}

// accessStillValid peeks at the unverified exp claim of a JWT access token.
// Opaque or claimless tokens report false, which forces a refresh.
func accessStillValid(access string) bool {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(access, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return time.Until(claims.ExpiresAt.Time) > expirySkew
}
