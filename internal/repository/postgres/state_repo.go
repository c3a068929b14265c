package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/denkond/hrgate/internal/model"
)

// StateRepo implements StateRepository over a single fsm_states table.
// Writes go straight to the table, so the latest state and data survive a
// process restart.
type StateRepo struct{ db *DB }

// NewStateRepo constructs a conversation-state repository.
func NewStateRepo(db *DB) *StateRepo { return &StateRepo{db: db} }

// GetState returns the stored state; a missing row is model.StateInitial.
func (r *StateRepo) GetState(ctx context.Context, key model.ConvKey) (model.State, error) {
	const q = `SELECT state FROM fsm_states WHERE chat_id=$1 AND user_id=$2`
	var s string
	err := r.db.Pool.QueryRow(ctx, q, key.ChatID, key.UserID).Scan(&s)
	switch {
	case err == nil:
		return model.State(s), nil
	case errors.Is(err, pgx.ErrNoRows):
		return model.StateInitial, nil
	default:
		return model.StateInitial, err
	}
}

// SetState upserts the state, keeping whatever data the row already holds.
func (r *StateRepo) SetState(ctx context.Context, key model.ConvKey, state model.State) error {
	const q = `
INSERT INTO fsm_states (chat_id, user_id, state, data)
VALUES ($1, $2, $3,
        COALESCE((SELECT data FROM fsm_states WHERE chat_id=$1 AND user_id=$2), '{}'::jsonb))
ON CONFLICT (chat_id, user_id) DO UPDATE SET state = EXCLUDED.state`
	_, err := r.db.Pool.Exec(ctx, q, key.ChatID, key.UserID, string(state))
	return err
}

// GetData returns the stored data map; empty map when the row is absent.
func (r *StateRepo) GetData(ctx context.Context, key model.ConvKey) (map[string]any, error) {
	const q = `SELECT data FROM fsm_states WHERE chat_id=$1 AND user_id=$2`
	var raw []byte
	err := r.db.Pool.QueryRow(ctx, q, key.ChatID, key.UserID).Scan(&raw)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return map[string]any{}, nil
	case err != nil:
		return nil, err
	}
	data := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("decode conversation data: %w", err)
		}
	}
	return data, nil
}

// SetData replaces the data wholesale, keeping the stored state.
func (r *StateRepo) SetData(ctx context.Context, key model.ConvKey, data map[string]any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode conversation data: %w", err)
	}
	const q = `
INSERT INTO fsm_states (chat_id, user_id, state, data)
VALUES ($1, $2,
        COALESCE((SELECT state FROM fsm_states WHERE chat_id=$1 AND user_id=$2), ''),
        $3)
ON CONFLICT (chat_id, user_id) DO UPDATE SET data = EXCLUDED.data`
	_, err = r.db.Pool.Exec(ctx, q, key.ChatID, key.UserID, raw)
	return err
}

// UpdateData merges partial into the stored data and writes the result back.
// Read-merge-write; concurrent writers to the same key can lose fields.
func (r *StateRepo) UpdateData(ctx context.Context, key model.ConvKey, partial map[string]any) (map[string]any, error) {
	current, err := r.GetData(ctx, key)
	if err != nil {
		return nil, err
	}
	for k, v := range partial {
		current[k] = v
	}
	if err := r.SetData(ctx, key, current); err != nil {
		return nil, err
	}
	return current, nil
}

// Clear removes both state and data for the key.
func (r *StateRepo) Clear(ctx context.Context, key model.ConvKey) error {
	const q = `DELETE FROM fsm_states WHERE chat_id=$1 AND user_id=$2`
	_, err := r.db.Pool.Exec(ctx, q, key.ChatID, key.UserID)
	return err
}
