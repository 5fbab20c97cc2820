package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const scheduleColumns = `id, doctor_user_id, doctor_name, specialization, date::text, slots, created_at, updated_at`

const appointmentColumns = `id, patient_user_id, doctor_user_id, doctor_name, date, slot_time,
		schedule_id, slot_id, status, created_at, updated_at`

// Helpers

func scanSchedule(row pgx.Row) (*Schedule, error) {
	var s Schedule
	var raw []byte

	err := row.Scan(
		&s.ID,
		&s.DoctorUserID,
		&s.DoctorName,
		&s.Specialization,
		&s.Date,
		&raw,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, err
	}

	slots, err := DecodeSlotList(raw)
	if err != nil {
		return nil, fmt.Errorf("schedule %d: %w", s.ID, err)
	}
	s.Slots = slots
	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.PatientUserID,
		&a.DoctorUserID,
		&a.DoctorName,
		&a.Date,
		&a.SlotTime,
		&a.ScheduleID,
		&a.SlotID,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func scanEvent(row pgx.Row) (*EventLog, error) {
	var ev EventLog
	var payload []byte

	err := row.Scan(
		&ev.ID,
		&ev.EventType,
		&ev.AppointmentID,
		&ev.ScheduleID,
		&payload,
		&ev.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	ev.Payload = payload
	return &ev, nil
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (*T, error)) ([]T, error) {
	defer rows.Close()

	var result []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *v)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Transactions

func (r *PgRepository) RunInTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(ctx, &pgTx{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type pgTx struct {
	q querier
}

func (t *pgTx) LockSchedule(ctx context.Context, id int64) (*Schedule, error) {
	row := t.q.QueryRow(ctx, `
		SELECT `+scheduleColumns+`
		FROM schedules
		WHERE id = $1
		FOR UPDATE
	`, id)
	return scanSchedule(row)
}

func (t *pgTx) UpdateScheduleSlots(ctx context.Context, id int64, slots SlotList) error {
	data, err := slots.Encode()
	if err != nil {
		return err
	}

	tag, err := t.q.Exec(ctx, `
		UPDATE schedules
		SET slots = $2,
		    updated_at = now()
		WHERE id = $1
	`, id, data)
	if err != nil {
		return fmt.Errorf("update schedule slots: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

func (t *pgTx) LockAppointment(ctx context.Context, id int64) (*Appointment, error) {
	row := t.q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id)
	return scanAppointment(row)
}

func (t *pgTx) CreateAppointment(ctx context.Context, a *Appointment) error {
	err := t.q.QueryRow(ctx, `
		INSERT INTO appointments (patient_user_id, doctor_user_id, doctor_name, date, slot_time,
		                          schedule_id, slot_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING id, created_at, updated_at
	`,
		a.PatientUserID,
		a.DoctorUserID,
		a.DoctorName,
		a.Date,
		a.SlotTime,
		a.ScheduleID,
		a.SlotID,
		a.Status,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateAppointment(ctx context.Context, a *Appointment) error {
	err := t.q.QueryRow(ctx, `
		UPDATE appointments
		SET date = $2,
		    slot_time = $3,
		    schedule_id = $4,
		    slot_id = $5,
		    status = $6,
		    updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, a.ID, a.Date, a.SlotTime, a.ScheduleID, a.SlotID, a.Status).Scan(&a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAppointmentNotFound
		}
		return fmt.Errorf("update appointment: %w", err)
	}
	return nil
}

func (t *pgTx) InsertEvent(ctx context.Context, ev EventLog) error {
	return insertEvent(ctx, t.q, ev)
}

func insertEvent(ctx context.Context, q querier, ev EventLog) error {
	_, err := q.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, schedule_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.EventType, ev.AppointmentID, ev.ScheduleID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

// Reads

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id int64) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointmentsByDoctor(ctx context.Context, doctorUserID int64) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_user_id = $1
		ORDER BY created_at DESC, id DESC
	`, doctorUserID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanAppointment)
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientUserID int64) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_user_id = $1
		ORDER BY created_at DESC, id DESC
	`, patientUserID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanAppointment)
}

func (r *PgRepository) ListEventsByAppointment(ctx context.Context, appointmentID int64) ([]EventLog, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, event_type, appointment_id, schedule_id, payload, created_at
		FROM event_logs
		WHERE appointment_id = $1
		ORDER BY id
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanEvent)
}

func (r *PgRepository) CreateSchedule(ctx context.Context, s *Schedule) error {
	date, err := time.Parse(dateLayout, s.Date)
	if err != nil {
		return fmt.Errorf("parse schedule date: %w", err)
	}
	data, err := s.Slots.Encode()
	if err != nil {
		return err
	}

	err = r.pool.QueryRow(ctx, `
		INSERT INTO schedules (doctor_user_id, doctor_name, specialization, date, slots, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		RETURNING id, created_at, updated_at
	`, s.DoctorUserID, s.DoctorName, s.Specialization, date, data).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}
	return nil
}

func (r *PgRepository) GetScheduleByID(ctx context.Context, id int64) (*Schedule, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+scheduleColumns+`
		FROM schedules
		WHERE id = $1
	`, id)
	return scanSchedule(row)
}

func (r *PgRepository) ListSchedulesByDoctor(ctx context.Context, doctorUserID int64) ([]Schedule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+scheduleColumns+`
		FROM schedules
		WHERE doctor_user_id = $1
		ORDER BY date ASC, id ASC
	`, doctorUserID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanSchedule)
}

func (r *PgRepository) ListSchedules(ctx context.Context) ([]Schedule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+scheduleColumns+`
		FROM schedules
		ORDER BY date ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanSchedule)
}

func (r *PgRepository) ListScheduleIDsWithReservations(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id
		FROM schedules
		WHERE EXISTS (
			SELECT 1
			FROM jsonb_array_elements(slots) AS s
			WHERE s ? 'reservedUntil' OR s ? 'reservedBy'
		)
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
