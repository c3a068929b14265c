// Package notify contains stand-in implementations of the out-of-band code
// delivery collaborator. Real delivery (corporate mail) is operated outside
// this service.
package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogSender records code dispatches without delivering them. Intended for
// development and test environments.
type LogSender struct{ Logger *zap.Logger }

// SendCode logs the dispatch. The code itself is never logged.
func (s *LogSender) SendCode(_ context.Context, email, _ string) error {
	s.Logger.Info("one-time code dispatched", zap.String("email", email))
	return nil
}
