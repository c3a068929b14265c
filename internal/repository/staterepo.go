package repository

import (
	"context"

	"github.com/denkond/hrgate/internal/model"
)

// StateRepository is the durable conversation-state store. Every mutation is
// written through before the call returns; a process restart must not lose
// the latest state or data for any key.
type StateRepository interface {
	// GetState returns the stored workflow state. A missing row is
	// model.StateInitial, not an error.
	GetState(ctx context.Context, key model.ConvKey) (model.State, error)
	// SetState upserts the state, preserving any stored data.
	SetState(ctx context.Context, key model.ConvKey, state model.State) error
	// GetData returns the stored data map; empty map when absent.
	GetData(ctx context.Context, key model.ConvKey) (map[string]any, error)
	// SetData upserts the data wholesale, preserving the stored state.
	SetData(ctx context.Context, key model.ConvKey, data map[string]any) error
	// UpdateData merges partial into the stored data and returns the merged
	// map. Read-merge-write: not atomic across concurrent writers.
	UpdateData(ctx context.Context, key model.ConvKey, partial map[string]any) (map[string]any, error)
	// Clear removes both state and data for the key.
	Clear(ctx context.Context, key model.ConvKey) error
}
