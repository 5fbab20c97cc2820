package api

import (
	"time"

	"github.com/hackgods/medvault-scheduling/internal/appointment"
)

type CreateAppointmentRequest struct {
	ScheduleID    *int64  `json:"scheduleId"`
	SlotID        *string `json:"slotId"`
	PatientUserID int64   `json:"patientUserId"`
	DoctorUserID  int64   `json:"doctorUserId"`
	DoctorName    string  `json:"doctorName"`
	Date          string  `json:"date"`
	SlotTime      string  `json:"slotTime"`
}

func (r CreateAppointmentRequest) toDomain() appointment.BookRequest {
	return appointment.BookRequest{
		ScheduleID:    r.ScheduleID,
		SlotID:        r.SlotID,
		PatientUserID: r.PatientUserID,
		DoctorUserID:  r.DoctorUserID,
		DoctorName:    r.DoctorName,
		Date:          r.Date,
		SlotTime:      r.SlotTime,
	}
}

type ReserveRequest struct {
	PatientUserID int64  `json:"patientUserId"`
	TTL           *int64 `json:"ttl"` // seconds
}

type RescheduleRequest struct {
	ScheduleID *int64  `json:"scheduleId"`
	SlotID     *string `json:"slotId"`
	Date       *string `json:"date"`
	SlotTime   *string `json:"slotTime"`
}

func (r RescheduleRequest) toDomain() appointment.RescheduleRequest {
	return appointment.RescheduleRequest{
		ScheduleID: r.ScheduleID,
		SlotID:     r.SlotID,
		Date:       r.Date,
		SlotTime:   r.SlotTime,
	}
}

type CreateScheduleRequest struct {
	DoctorUserID   int64                `json:"doctorUserId"`
	DoctorName     string               `json:"doctorName"`
	Specialization string               `json:"specialization"`
	Date           string               `json:"date"`
	Slots          appointment.SlotList `json:"slots"`
}

type SlotActiveRequest struct {
	Active *bool `json:"active"`
}

type SlotTimeRequest struct {
	Time string `json:"time"`
}

type DataResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type ReserveResponse struct {
	Success       bool      `json:"success"`
	ReservedUntil bool      `json:"reservedUntil"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
