package runner

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ReportStats logs a Stats snapshot every interval until ctx is cancelled.
//
// Precondition: interval must be > 0 and Run must be active.
// Postcondition: Returns nil on cancellation, or ErrRouterStopped once the loop exits.
func (r *Router) ReportStats(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			st, err := r.Stats(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			r.logger.Info("router stats",
				zap.Int("participants", st.Participants),
				zap.Int("connected", st.Connected),
				zap.Int("sessions", st.Sessions),
				zap.Int("active_sessions", st.ActiveSessions),
				zap.Int64("next_session_id", st.NextSessionID),
			)
		}
	}
}
