package appointment

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// errNoChange lets a locked callback finish successfully without rewriting
// the slot list.
var errNoChange = errors.New("no change")

// WithScheduleLock loads the schedule under a row lock scoped to tx and hands
// it to fn. When fn succeeds the slot list is written back in the same
// transaction; the lock is released when the caller's transaction ends.
func WithScheduleLock(ctx context.Context, tx TxRepository, scheduleID int64, fn func(s *Schedule) error) error {
	sched, err := tx.LockSchedule(ctx, scheduleID)
	if err != nil {
		return err
	}

	if err := fn(sched); err != nil {
		if errors.Is(err, errNoChange) {
			return nil
		}
		return err
	}

	if err := tx.UpdateScheduleSlots(ctx, sched.ID, sched.Slots); err != nil {
		return fmt.Errorf("persist slots for schedule %d: %w", sched.ID, err)
	}
	return nil
}

// WithSchedulesLock locks every existing schedule among ids in ascending id
// order and passes them to fn keyed by id. Schedules that do not exist are
// left out of the map rather than failing. Every locked schedule is written
// back when fn succeeds.
func WithSchedulesLock(ctx context.Context, tx TxRepository, ids []*int64, fn func(locked map[int64]*Schedule) error) error {
	locked := make(map[int64]*Schedule, len(ids))
	order := lockOrder(ids...)

	for _, id := range order {
		sched, err := tx.LockSchedule(ctx, id)
		if errors.Is(err, ErrScheduleNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		locked[id] = sched
	}

	if err := fn(locked); err != nil {
		if errors.Is(err, errNoChange) {
			return nil
		}
		return err
	}

	for _, id := range order {
		sched, ok := locked[id]
		if !ok {
			continue
		}
		if err := tx.UpdateScheduleSlots(ctx, id, sched.Slots); err != nil {
			return fmt.Errorf("persist slots for schedule %d: %w", id, err)
		}
	}
	return nil
}

// lockOrder returns the distinct schedule ids among ids in ascending order.
// Every multi-schedule operation must acquire locks in this order.
func lockOrder(ids ...*int64) []int64 {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id != nil {
			out = append(out, *id)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
