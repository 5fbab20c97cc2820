package appointment

import (
	"context"
	"errors"
	"fmt"
)

// GetAppointment retrieves a single appointment by ID.
func (s *Service) GetAppointment(ctx context.Context, id int64) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

// ListAppointmentsByDoctor returns a doctor's appointments, newest first.
func (s *Service) ListAppointmentsByDoctor(ctx context.Context, doctorUserID int64) ([]Appointment, error) {
	appts, err := s.repo.ListAppointmentsByDoctor(ctx, doctorUserID)
	if err != nil {
		return nil, fmt.Errorf("list appointments by doctor: %w", err)
	}
	return nonNil(appts), nil
}

// ListAppointmentsByPatient returns a patient's appointments, newest first.
func (s *Service) ListAppointmentsByPatient(ctx context.Context, patientUserID int64) ([]Appointment, error) {
	appts, err := s.repo.ListAppointmentsByPatient(ctx, patientUserID)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return nonNil(appts), nil
}

// ListAppointmentEvents returns the lifecycle history of one appointment in
// the order it was written.
func (s *Service) ListAppointmentEvents(ctx context.Context, appointmentID int64) ([]EventLog, error) {
	if _, err := s.GetAppointment(ctx, appointmentID); err != nil {
		return nil, err
	}
	events, err := s.repo.ListEventsByAppointment(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("list appointment events: %w", err)
	}
	return nonNil(events), nil
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
