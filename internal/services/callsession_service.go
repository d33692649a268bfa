package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/linguacall/linguacall/internal/models"
	mongorepo "github.com/linguacall/linguacall/internal/repositories/mongo"
	"github.com/linguacall/linguacall/internal/utils"
)

type CallSessionService interface {
	Opened(ctx context.Context, callID string) error
	Closed(ctx context.Context, callID string, peak int, openedAt time.Time) error
}

type callSessionService struct {
	sessions mongorepo.CallSessionRepository
}

func NewCallSessionService(sessions mongorepo.CallSessionRepository) CallSessionService {
	return &callSessionService{sessions: sessions}
}

func (s *callSessionService) Opened(ctx context.Context, callID string) error {
	const op = "CallSessionService.Opened"

	if callID == "" {
		return utils.E(utils.CodeInvalidArgument, op, "call_id is required", nil)
	}
	rec := &models.CallSession{
		CallID:    callID,
		Status:    "active",
		StartedAt: time.Now().UTC(),
	}
	if err := s.sessions.Create(ctx, rec); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to record call start", err)
	}
	return nil
}

func (s *callSessionService) Closed(ctx context.Context, callID string, peak int, openedAt time.Time) error {
	const op = "CallSessionService.Closed"

	if callID == "" {
		return utils.E(utils.CodeInvalidArgument, op, "call_id is required", nil)
	}
	now := time.Now().UTC()
	dur := int64(now.Sub(openedAt).Seconds())
	if dur < 0 {
		dur = 0
	}
	if err := s.sessions.End(ctx, callID, now, peak, dur); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to record call end", err)
	}
	return nil
}

// RoomLifecycle adapts CallSessionService to the relay's lifecycle hook.
// Writes are best-effort with a short deadline; a history failure must
// never slow down or break a live call.
type RoomLifecycle struct {
	Sessions CallSessionService
	Logger   *logrus.Logger
}

func (l *RoomLifecycle) RoomOpened(callID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.Sessions.Opened(ctx, callID); err != nil {
			l.Logger.WithError(err).WithField("call_id", callID).Warn("call session start not recorded")
		}
	}()
}

func (l *RoomLifecycle) RoomClosed(callID string, peak int, openedAt time.Time) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.Sessions.Closed(ctx, callID, peak, openedAt); err != nil {
			l.Logger.WithError(err).WithField("call_id", callID).Warn("call session end not recorded")
		}
	}()
}
