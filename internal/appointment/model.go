package appointment

import (
	"encoding/json"
	"time"
)

type AppointmentStatus string

const (
	StatusConfirmed   AppointmentStatus = "CONFIRMED"
	StatusCancelled   AppointmentStatus = "CANCELLED"
	StatusRescheduled AppointmentStatus = "RESCHEDULED"
)

// Schedule is one doctor's set of bookable slots for a calendar date.
// The slot list is owned by the schedule and only rewritten as a whole.
type Schedule struct {
	ID             int64     `json:"id"`
	DoctorUserID   int64     `json:"doctorUserId"`
	DoctorName     string    `json:"doctorName,omitempty"`
	Specialization string    `json:"specialization,omitempty"`
	Date           string    `json:"date"` // YYYY-MM-DD
	Slots          SlotList  `json:"slots"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Appointment references a (schedule, slot) pair without owning it; either
// side may disappear independently.
type Appointment struct {
	ID            int64             `json:"id"`
	PatientUserID int64             `json:"patientUserId"`
	DoctorUserID  int64             `json:"doctorUserId"`
	DoctorName    string            `json:"doctorName"`
	Date          string            `json:"date"`
	SlotTime      string            `json:"slotTime"`
	ScheduleID    *int64            `json:"scheduleId"`
	SlotID        *string           `json:"slotId"`
	Status        AppointmentStatus `json:"status"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// HasSlot reports whether the appointment still points at a schedule slot.
func (a *Appointment) HasSlot() bool {
	return a.ScheduleID != nil && a.SlotID != nil
}

type EventLog struct {
	ID            int64           `json:"id"`
	EventType     string          `json:"eventType"`
	AppointmentID *int64          `json:"appointmentId,omitempty"`
	ScheduleID    *int64          `json:"scheduleId,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// BookRequest carries a booking. ScheduleID and SlotID are either both set or
// both absent; an unslotted request records a confirmed appointment only.
type BookRequest struct {
	ScheduleID    *int64
	SlotID        *string
	PatientUserID int64
	DoctorUserID  int64
	DoctorName    string
	Date          string
	SlotTime      string
}

// RescheduleRequest moves an appointment. Nil date or slot time keep the
// current values.
type RescheduleRequest struct {
	ScheduleID *int64
	SlotID     *string
	Date       *string
	SlotTime   *string
}

type NewSchedule struct {
	DoctorUserID   int64
	DoctorName     string
	Specialization string
	Date           string
	Slots          SlotList
}
