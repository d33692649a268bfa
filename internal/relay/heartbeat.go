package relay

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

const DefaultHeartbeatInterval = 30 * time.Second

// Monitor pings every connected participant on an interval and evicts the
// ones that did not answer the previous ping. Without it a dead connection
// would sit in its room absorbing translated events forever.
type Monitor struct {
	Registry *Registry
	Interval time.Duration
	Logger   *logrus.Logger
}

func (m *Monitor) Run(ctx context.Context) {
	interval := m.Interval
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Sweep()
		}
	}
}

// Sweep runs one pass: evict participants whose previous ping went
// unanswered, ping the rest.
func (m *Monitor) Sweep() {
	m.Registry.Walk(func(callID string, p *Participant) {
		if !p.Out.Alive() {
			m.Logger.WithFields(logrus.Fields{
				"call_id": callID,
				"user_id": p.UserID,
			}).Warn("heartbeat missed, evicting participant")
			_ = p.Out.Close(CloseInternalError, "heartbeat timeout")
			m.Registry.Leave(callID, p.UserID)
			return
		}
		if err := p.Out.Ping(); err != nil {
			m.Logger.WithFields(logrus.Fields{
				"call_id": callID,
				"user_id": p.UserID,
			}).WithError(err).Warn("heartbeat ping failed, evicting participant")
			_ = p.Out.Close(CloseInternalError, "heartbeat write failed")
			m.Registry.Leave(callID, p.UserID)
		}
	})
}
