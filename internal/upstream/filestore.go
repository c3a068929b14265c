package upstream

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/denkond/hrgate/internal/errs"
	"github.com/denkond/hrgate/internal/model"
)

// TokenStore persists the upstream token pair between process runs.
type TokenStore interface {
	// Load returns the stored pair; ok is false when none has been saved yet.
	Load() (tokens model.Tokens, ok bool, err error)
	// Save replaces the stored pair wholesale.
	Save(tokens model.Tokens) error
}

// FileStore keeps the token pair in a JSON file with 0600 permissions.
// Saves go through a temp file and rename so an interrupted write never
// leaves a half-written pair behind.
type FileStore struct{ path string }

// NewFileStore constructs a store writing to the given path.
func NewFileStore(path string) *FileStore { return &FileStore{path: path} }

// Load reads the stored pair. A missing file means no pair yet.
func (s *FileStore) Load() (model.Tokens, bool, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return model.Tokens{}, false, nil
	}
	if err != nil {
		return model.Tokens{}, false, fmt.Errorf("read token file: %w", err)
	}
	var t model.Tokens
	if err := json.Unmarshal(raw, &t); err != nil {
		return model.Tokens{}, false, fmt.Errorf("decode token file: %w", err)
	}
	if t.AccessToken == "" || t.RefreshToken == "" {
		// A partial pair is as good as no pair.
		return model.Tokens{}, false, nil
	}
	return t, true, nil
}

// Save writes the pair atomically.
func (s *FileStore) Save(t model.Tokens) error {
	if t.AccessToken == "" || t.RefreshToken == "" {
		return fmt.Errorf("%w: both access and refresh tokens are required", errs.ErrValidation)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("token dir: %w", err)
	}
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode tokens: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace token file: %w", err)
	}
	return nil
}
