package appointment

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ReleaseExpiredReservations is intended to be called by the expiry worker.
// Request paths never depend on it: Book and Reserve already treat expired
// holds as absent. It returns the number of reservations cleared.
func (s *Service) ReleaseExpiredReservations(ctx context.Context) (int, error) {
	ids, err := s.repo.ListScheduleIDsWithReservations(ctx)
	if err != nil {
		return 0, fmt.Errorf("find schedules with reservations: %w", err)
	}

	total := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		cleared, doctorID, err := s.releaseExpiredIn(ctx, id)
		if err != nil {
			if errors.Is(err, ErrScheduleNotFound) {
				continue
			}
			s.logger.Error("failed to release expired reservations",
				zap.Int64("schedule_id", id),
				zap.Error(err))
			continue
		}
		if cleared > 0 {
			s.cache.Invalidate(ctx, doctorID)
		}
		total += cleared
	}

	return total, nil
}

func (s *Service) releaseExpiredIn(ctx context.Context, scheduleID int64) (int, int64, error) {
	var cleared int
	var doctorID int64

	err := s.repo.RunInTx(ctx, func(ctx context.Context, tx TxRepository) error {
		err := WithScheduleLock(ctx, tx, scheduleID, func(sched *Schedule) error {
			doctorID = sched.DoctorUserID
			cleared = sched.Slots.clearExpired(s.now())
			if cleared == 0 {
				return errNoChange
			}
			return nil
		})
		if err != nil || cleared == 0 {
			return err
		}

		return s.logEvent(ctx, tx, EventReservationExpired, nil, &scheduleID, map[string]any{
			"cleared": cleared,
		})
	})

	return cleared, doctorID, err
}
