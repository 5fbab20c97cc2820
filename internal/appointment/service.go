package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/medvault-scheduling/internal/config"
)

const (
	EventAppointmentConfirmed   = "APPOINTMENT_CONFIRMED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventSlotReserved           = "SLOT_RESERVED"
	EventReservationExpired     = "RESERVATION_EXPIRED"
)

const defaultReservationTTL = 300 * time.Second

type Service struct {
	repo       Repository
	cache      ScheduleCache
	logger     *zap.Logger
	now        func() time.Time
	defaultTTL time.Duration
}

type Option func(*Service)

// WithClock replaces time.Now for reservation expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, cache ScheduleCache, logger *zap.Logger, cfg config.Config, opts ...Option) *Service {
	if cache == nil {
		cache = noopCache{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		repo:       repo,
		cache:      cache,
		logger:     logger,
		now:        time.Now,
		defaultTTL: cfg.DefaultReservationTTL,
	}
	if s.defaultTTL <= 0 {
		s.defaultTTL = defaultReservationTTL
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Book marks the requested slot booked and records a CONFIRMED appointment in
// one transaction holding the schedule lock. A live hold by the same patient
// is converted into the booking; an expired hold is cleared.
func (s *Service) Book(ctx context.Context, req BookRequest) (*Appointment, error) {
	if err := validateBook(req); err != nil {
		return nil, err
	}

	appt := &Appointment{
		PatientUserID: req.PatientUserID,
		DoctorUserID:  req.DoctorUserID,
		DoctorName:    req.DoctorName,
		Date:          req.Date,
		SlotTime:      req.SlotTime,
		ScheduleID:    req.ScheduleID,
		SlotID:        req.SlotID,
		Status:        StatusConfirmed,
	}
	now := s.now()
	doctorID := req.DoctorUserID

	err := s.repo.RunInTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if req.ScheduleID != nil {
			err := WithScheduleLock(ctx, tx, *req.ScheduleID, func(sched *Schedule) error {
				doctorID = sched.DoctorUserID
				i := sched.Slots.Find(*req.SlotID)
				if i < 0 {
					return ErrSlotNotFound
				}
				slot := &sched.Slots[i]
				if err := slot.checkClaim(req.PatientUserID, now); err != nil {
					return err
				}
				slot.markBooked()
				fillFromSchedule(appt, sched, slot)
				return nil
			})
			if err != nil {
				return err
			}
		}

		if err := tx.CreateAppointment(ctx, appt); err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}

		return s.logEvent(ctx, tx, EventAppointmentConfirmed, &appt.ID, appt.ScheduleID, map[string]any{
			"patient_user_id": appt.PatientUserID,
			"slot_id":         appt.SlotID,
			"date":            appt.Date,
			"slot_time":       appt.SlotTime,
		})
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, doctorID)
	s.logger.Info("appointment booked",
		zap.Int64("appointment_id", appt.ID),
		zap.Int64("patient_user_id", appt.PatientUserID),
		zap.Int64p("schedule_id", appt.ScheduleID),
		zap.Stringp("slot_id", appt.SlotID))

	return appt, nil
}

// Reserve places a soft hold on a slot until now+ttl. Expiry is evaluated
// lazily by later Book and Reserve calls. A ttl of zero or less uses the
// configured default.
func (s *Service) Reserve(ctx context.Context, scheduleID int64, slotID string, patientUserID int64, ttl time.Duration) (time.Time, error) {
	if slotID == "" {
		return time.Time{}, fmt.Errorf("%w: slotId is required", ErrValidation)
	}
	if patientUserID <= 0 {
		return time.Time{}, fmt.Errorf("%w: patientUserId is required", ErrValidation)
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	now := s.now()
	until := now.Add(ttl)
	var doctorID int64

	err := s.repo.RunInTx(ctx, func(ctx context.Context, tx TxRepository) error {
		err := WithScheduleLock(ctx, tx, scheduleID, func(sched *Schedule) error {
			doctorID = sched.DoctorUserID
			i := sched.Slots.Find(slotID)
			if i < 0 {
				return ErrSlotNotFound
			}
			slot := &sched.Slots[i]
			if err := slot.checkClaim(patientUserID, now); err != nil {
				return err
			}
			slot.markReserved(patientUserID, until)
			return nil
		})
		if err != nil {
			return err
		}

		return s.logEvent(ctx, tx, EventSlotReserved, nil, &scheduleID, map[string]any{
			"slot_id":        slotID,
			"reserved_by":    patientUserID,
			"reserved_until": until.UTC(),
		})
	})
	if err != nil {
		return time.Time{}, err
	}

	s.cache.Invalidate(ctx, doctorID)
	s.logger.Info("slot reserved",
		zap.Int64("schedule_id", scheduleID),
		zap.String("slot_id", slotID),
		zap.Int64("patient_user_id", patientUserID),
		zap.Time("reserved_until", until))

	return until, nil
}

// Cancel marks the appointment CANCELLED and releases its slot. A slot or
// schedule that no longer exists makes the release a no-op. Cancelling an
// already cancelled appointment changes nothing, so a slot that has since
// been booked by someone else is never released twice.
func (s *Service) Cancel(ctx context.Context, appointmentID int64) (*Appointment, error) {
	var appt *Appointment
	var doctorID int64

	err := s.repo.RunInTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		appt, err = tx.LockAppointment(ctx, appointmentID)
		if err != nil {
			return err
		}
		if appt.Status == StatusCancelled {
			return nil
		}

		if appt.HasSlot() {
			err := WithSchedulesLock(ctx, tx, []*int64{appt.ScheduleID}, func(locked map[int64]*Schedule) error {
				sched, ok := locked[*appt.ScheduleID]
				if !ok {
					return errNoChange
				}
				doctorID = sched.DoctorUserID
				if !releaseSlot(sched, *appt.SlotID) {
					return errNoChange
				}
				return nil
			})
			if err != nil {
				return err
			}
		}

		appt.Status = StatusCancelled
		if err := tx.UpdateAppointment(ctx, appt); err != nil {
			return fmt.Errorf("update appointment: %w", err)
		}

		return s.logEvent(ctx, tx, EventAppointmentCancelled, &appt.ID, appt.ScheduleID, map[string]any{
			"slot_id": appt.SlotID,
		})
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, doctorID)
	s.cache.Invalidate(ctx, appt.DoctorUserID)
	s.logger.Info("appointment cancelled",
		zap.Int64("appointment_id", appt.ID),
		zap.Int64p("schedule_id", appt.ScheduleID),
		zap.Stringp("slot_id", appt.SlotID))

	return appt, nil
}

// Reschedule releases the appointment's current slot and books the new one
// inside a single transaction. Both schedules are locked in ascending id
// order. If the new slot cannot be booked the transaction rolls back and the
// old slot stays booked. Without a new slot the old one is released and the
// appointment is left with no slot reference.
func (s *Service) Reschedule(ctx context.Context, appointmentID int64, req RescheduleRequest) (*Appointment, error) {
	if (req.ScheduleID == nil) != (req.SlotID == nil) {
		return nil, fmt.Errorf("%w: scheduleId and slotId must be given together", ErrValidation)
	}

	var appt *Appointment
	invalidate := make([]int64, 0, 3)

	err := s.repo.RunInTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		appt, err = tx.LockAppointment(ctx, appointmentID)
		if err != nil {
			return err
		}
		invalidate = append(invalidate, appt.DoctorUserID)

		// A cancelled appointment already gave its slot back.
		var oldScheduleID *int64
		if appt.HasSlot() && appt.Status != StatusCancelled {
			oldScheduleID = appt.ScheduleID
		}
		oldSlotID := appt.SlotID

		err = WithSchedulesLock(ctx, tx, []*int64{oldScheduleID, req.ScheduleID}, func(locked map[int64]*Schedule) error {
			if oldScheduleID != nil {
				if old, ok := locked[*oldScheduleID]; ok {
					releaseSlot(old, *oldSlotID)
					invalidate = append(invalidate, old.DoctorUserID)
				}
			}

			if req.ScheduleID == nil {
				appt.ScheduleID = nil
				appt.SlotID = nil
				applyDateTime(appt, req, "", "")
				return nil
			}

			next, ok := locked[*req.ScheduleID]
			if !ok {
				return fmt.Errorf("new schedule: %w", ErrScheduleNotFound)
			}
			i := next.Slots.Find(*req.SlotID)
			if i < 0 {
				return fmt.Errorf("new slot: %w", ErrSlotNotFound)
			}
			slot := &next.Slots[i]
			if !slot.Active {
				return fmt.Errorf("new slot: %w", ErrSlotUnavailable)
			}
			slot.markBooked()
			invalidate = append(invalidate, next.DoctorUserID)

			scheduleID, slotID := next.ID, slot.ID
			appt.ScheduleID = &scheduleID
			appt.SlotID = &slotID
			applyDateTime(appt, req, next.Date, slot.Time)
			return nil
		})
		if err != nil {
			return err
		}

		appt.Status = StatusRescheduled
		if err := tx.UpdateAppointment(ctx, appt); err != nil {
			return fmt.Errorf("update appointment: %w", err)
		}

		return s.logEvent(ctx, tx, EventAppointmentRescheduled, &appt.ID, appt.ScheduleID, map[string]any{
			"from_schedule_id": oldScheduleID,
			"from_slot_id":     oldSlotID,
			"to_schedule_id":   appt.ScheduleID,
			"to_slot_id":       appt.SlotID,
			"date":             appt.Date,
			"slot_time":        appt.SlotTime,
		})
	})
	if err != nil {
		return nil, err
	}

	for _, id := range invalidate {
		s.cache.Invalidate(ctx, id)
	}
	s.logger.Info("appointment rescheduled",
		zap.Int64("appointment_id", appt.ID),
		zap.Int64p("schedule_id", appt.ScheduleID),
		zap.Stringp("slot_id", appt.SlotID))

	return appt, nil
}

// releaseSlot makes the first slot with the given id bookable again. It
// reports false when no such slot exists.
func releaseSlot(sched *Schedule, slotID string) bool {
	i := sched.Slots.Find(slotID)
	if i < 0 {
		return false
	}
	sched.Slots[i].release()
	return true
}

func validateBook(req BookRequest) error {
	if req.PatientUserID <= 0 {
		return fmt.Errorf("%w: patientUserId is required", ErrValidation)
	}
	if (req.ScheduleID == nil) != (req.SlotID == nil) {
		return fmt.Errorf("%w: scheduleId and slotId must be given together", ErrValidation)
	}
	if req.SlotID != nil && *req.SlotID == "" {
		return fmt.Errorf("%w: slotId must not be empty", ErrValidation)
	}
	if req.ScheduleID == nil && req.DoctorUserID <= 0 {
		return fmt.Errorf("%w: doctorUserId is required without a schedule", ErrValidation)
	}
	return nil
}

// fillFromSchedule completes fields the caller left blank from the locked
// schedule and slot.
func fillFromSchedule(appt *Appointment, sched *Schedule, slot *Slot) {
	if appt.DoctorUserID == 0 {
		appt.DoctorUserID = sched.DoctorUserID
	}
	if appt.DoctorName == "" {
		appt.DoctorName = sched.DoctorName
	}
	if appt.Date == "" {
		appt.Date = sched.Date
	}
	if appt.SlotTime == "" {
		appt.SlotTime = slot.Time
	}
}

// applyDateTime prefers explicit request values, then the new slot's own
// date and time, then the appointment's current values.
func applyDateTime(appt *Appointment, req RescheduleRequest, date, slotTime string) {
	switch {
	case req.Date != nil:
		appt.Date = *req.Date
	case date != "":
		appt.Date = date
	}
	switch {
	case req.SlotTime != nil:
		appt.SlotTime = *req.SlotTime
	case slotTime != "":
		appt.SlotTime = slotTime
	}
}

func (s *Service) logEvent(ctx context.Context, tx TxRepository, eventType string, appointmentID, scheduleID *int64, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("failed to marshal event payload", zap.String("event_type", eventType), zap.Error(err))
		data = nil
	}

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: appointmentID,
		ScheduleID:    scheduleID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := tx.InsertEvent(ctx, ev); err != nil {
		return fmt.Errorf("insert event %s: %w", eventType, err)
	}
	return nil
}

// IsConflict reports whether err is a slot state conflict the client may
// retry after refreshing availability.
func IsConflict(err error) bool {
	return errors.Is(err, ErrSlotUnavailable) || errors.Is(err, ErrSlotReserved)
}
