package appointment

import (
	"context"
	"errors"
)

var (
	ErrScheduleNotFound    = errors.New("schedule not found")
	ErrSlotNotFound        = errors.New("slot not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrSlotUnavailable     = errors.New("slot not available")
	ErrSlotReserved        = errors.New("slot temporarily reserved")
	ErrValidation          = errors.New("validation failed")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	// RunInTx runs fn inside one database transaction. fn's error rolls the
	// transaction back; a nil return commits it.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error

	GetAppointmentByID(ctx context.Context, id int64) (*Appointment, error)
	ListAppointmentsByDoctor(ctx context.Context, doctorUserID int64) ([]Appointment, error)
	ListAppointmentsByPatient(ctx context.Context, patientUserID int64) ([]Appointment, error)
	ListEventsByAppointment(ctx context.Context, appointmentID int64) ([]EventLog, error)

	CreateSchedule(ctx context.Context, s *Schedule) error
	GetScheduleByID(ctx context.Context, id int64) (*Schedule, error)
	ListSchedulesByDoctor(ctx context.Context, doctorUserID int64) ([]Schedule, error)
	ListSchedules(ctx context.Context) ([]Schedule, error)

	// Reservation sweeper
	ListScheduleIDsWithReservations(ctx context.Context) ([]int64, error)
}

// TxRepository is the transaction-scoped view used inside RunInTx.
type TxRepository interface {
	// LockSchedule loads the schedule row and holds an exclusive row lock on
	// it until the transaction ends.
	LockSchedule(ctx context.Context, id int64) (*Schedule, error)
	UpdateScheduleSlots(ctx context.Context, id int64, slots SlotList) error

	// LockAppointment loads the appointment row under an exclusive row lock.
	LockAppointment(ctx context.Context, id int64) (*Appointment, error)
	CreateAppointment(ctx context.Context, a *Appointment) error
	UpdateAppointment(ctx context.Context, a *Appointment) error

	InsertEvent(ctx context.Context, ev EventLog) error
}

// ScheduleCache holds read-side schedule listings. Implementations must
// tolerate being invalidated for keys they never stored.
type ScheduleCache interface {
	GetDoctorSchedules(ctx context.Context, doctorUserID int64) ([]Schedule, bool)
	SetDoctorSchedules(ctx context.Context, doctorUserID int64, schedules []Schedule)
	GetAvailable(ctx context.Context) ([]Schedule, bool)
	SetAvailable(ctx context.Context, schedules []Schedule)
	Invalidate(ctx context.Context, doctorUserID int64)
}

type noopCache struct{}

func (noopCache) GetDoctorSchedules(context.Context, int64) ([]Schedule, bool) { return nil, false }
func (noopCache) SetDoctorSchedules(context.Context, int64, []Schedule)        {}
func (noopCache) GetAvailable(context.Context) ([]Schedule, bool)              { return nil, false }
func (noopCache) SetAvailable(context.Context, []Schedule)                     {}
func (noopCache) Invalidate(context.Context, int64)                            {}
