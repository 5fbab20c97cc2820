package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

// CreateSchedule stores a doctor's slot list for one date. Reservation fields
// supplied by the caller are dropped.
func (s *Service) CreateSchedule(ctx context.Context, in NewSchedule) (*Schedule, error) {
	if in.DoctorUserID <= 0 {
		return nil, fmt.Errorf("%w: doctorUserId is required", ErrValidation)
	}
	if _, err := time.Parse(dateLayout, in.Date); err != nil {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrValidation)
	}

	slots := in.Slots.Clone()
	if slots == nil {
		slots = SlotList{}
	}
	for i := range slots {
		slots[i].ID = strings.TrimSpace(slots[i].ID)
		slots[i].clearReservation()
	}
	if err := slots.Validate(); err != nil {
		return nil, err
	}

	sched := &Schedule{
		DoctorUserID:   in.DoctorUserID,
		DoctorName:     in.DoctorName,
		Specialization: in.Specialization,
		Date:           in.Date,
		Slots:          slots,
	}
	if err := s.repo.CreateSchedule(ctx, sched); err != nil {
		return nil, fmt.Errorf("create schedule: %w", err)
	}

	s.cache.Invalidate(ctx, sched.DoctorUserID)
	s.logger.Info("schedule created",
		zap.Int64("schedule_id", sched.ID),
		zap.Int64("doctor_user_id", sched.DoctorUserID),
		zap.String("date", sched.Date),
		zap.Int("slots", len(sched.Slots)))

	return sched, nil
}

// GetSchedule returns one schedule with its full slot list.
func (s *Service) GetSchedule(ctx context.Context, id int64) (*Schedule, error) {
	sched, err := s.repo.GetScheduleByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrScheduleNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	return sched, nil
}

// ListSchedulesByDoctor returns a doctor's schedules ordered by date.
func (s *Service) ListSchedulesByDoctor(ctx context.Context, doctorUserID int64) ([]Schedule, error) {
	if cached, ok := s.cache.GetDoctorSchedules(ctx, doctorUserID); ok {
		return cached, nil
	}

	list, err := s.repo.ListSchedulesByDoctor(ctx, doctorUserID)
	if err != nil {
		return nil, fmt.Errorf("list schedules by doctor: %w", err)
	}
	list = nonNil(list)

	s.cache.SetDoctorSchedules(ctx, doctorUserID, list)
	return list, nil
}

// ListAvailableSchedules returns schedules with at least one bookable slot,
// each carrying only its bookable slots.
func (s *Service) ListAvailableSchedules(ctx context.Context) ([]Schedule, error) {
	if cached, ok := s.cache.GetAvailable(ctx); ok {
		return cached, nil
	}

	all, err := s.repo.ListSchedules(ctx)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}

	now := s.now()
	out := make([]Schedule, 0, len(all))
	for _, sched := range all {
		bookable := sched.Slots.Bookable(now)
		if len(bookable) == 0 {
			continue
		}
		sched.Slots = bookable
		out = append(out, sched)
	}

	s.cache.SetAvailable(ctx, out)
	return out, nil
}

// SetSlotActive sets the slot's active flag, or flips it when active is nil.
func (s *Service) SetSlotActive(ctx context.Context, scheduleID int64, slotID string, active *bool) (*Schedule, error) {
	return s.mutateSlot(ctx, scheduleID, slotID, func(slots SlotList, i int) (SlotList, error) {
		if active != nil {
			slots[i].Active = *active
		} else {
			slots[i].Active = !slots[i].Active
		}
		return slots, nil
	})
}

// UpdateSlotTime changes the display label of a slot.
func (s *Service) UpdateSlotTime(ctx context.Context, scheduleID int64, slotID, label string) (*Schedule, error) {
	if strings.TrimSpace(label) == "" {
		return nil, fmt.Errorf("%w: no new time provided", ErrValidation)
	}
	return s.mutateSlot(ctx, scheduleID, slotID, func(slots SlotList, i int) (SlotList, error) {
		slots[i].Time = label
		return slots, nil
	})
}

// DeleteSlot removes every slot with the given id from the schedule.
// Appointments that reference it keep their reference; releasing it later is
// a no-op.
func (s *Service) DeleteSlot(ctx context.Context, scheduleID int64, slotID string) (*Schedule, error) {
	return s.mutateSlot(ctx, scheduleID, slotID, func(slots SlotList, _ int) (SlotList, error) {
		kept := slots[:0]
		for _, sl := range slots {
			if sl.ID != slotID {
				kept = append(kept, sl)
			}
		}
		return kept, nil
	})
}

// mutateSlot runs fn on the schedule's slot list under the schedule lock.
// fn receives the index of the first slot matching slotID.
func (s *Service) mutateSlot(ctx context.Context, scheduleID int64, slotID string, fn func(slots SlotList, i int) (SlotList, error)) (*Schedule, error) {
	var result *Schedule

	err := s.repo.RunInTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return WithScheduleLock(ctx, tx, scheduleID, func(sched *Schedule) error {
			i := sched.Slots.Find(slotID)
			if i < 0 {
				return ErrSlotNotFound
			}
			slots, err := fn(sched.Slots, i)
			if err != nil {
				return err
			}
			sched.Slots = slots
			result = sched
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, result.DoctorUserID)
	s.logger.Info("schedule slots updated",
		zap.Int64("schedule_id", scheduleID),
		zap.String("slot_id", slotID))

	return result, nil
}
