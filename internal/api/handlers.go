package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hackgods/medvault-scheduling/internal/appointment"
)

const maxBodyBytes = 1 << 20

// maxTTLSeconds is the largest ttl that still fits in a time.Duration.
const maxTTLSeconds = math.MaxInt64 / int64(time.Second)

// decodeBody reads a JSON body into dst. An empty body leaves dst untouched.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	return nil
}

func int64Param(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", appointment.ErrValidation, name)
	}
	return id, nil
}

func createAppointmentHandler(svc AppointmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := decodeBody(r, &req); err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		appt, err := svc.Book(r.Context(), req.toDomain())
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		writeData(w, http.StatusOK, appt)
	}
}

func reserveSlotHandler(svc AppointmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scheduleID, err := int64Param(r, "scheduleId")
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		slotID := chi.URLParam(r, "slotId")

		var req ReserveRequest
		if err := decodeBody(r, &req); err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		var ttl time.Duration
		if req.TTL != nil {
			if *req.TTL < 0 || *req.TTL > maxTTLSeconds {
				handleServiceError(w, r, logger,
					fmt.Errorf("%w: ttl must be between 0 and %d seconds", appointment.ErrValidation, maxTTLSeconds))
				return
			}
			ttl = time.Duration(*req.TTL) * time.Second
		}

		until, err := svc.Reserve(r.Context(), scheduleID, slotID, req.PatientUserID, ttl)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, ReserveResponse{
			Success:       true,
			ReservedUntil: true,
			ExpiresAt:     until.UTC(),
		})
	}
}

func getAppointmentHandler(svc AppointmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := int64Param(r, "id")
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		writeData(w, http.StatusOK, appt)
	}
}

func appointmentEventsHandler(svc AppointmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := int64Param(r, "id")
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		events, err := svc.ListAppointmentEvents(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		writeData(w, http.StatusOK, events)
	}
}

func cancelAppointmentHandler(svc AppointmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := int64Param(r, "id")
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		appt, err := svc.Cancel(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		writeData(w, http.StatusOK, appt)
	}
}

func rescheduleAppointmentHandler(svc AppointmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := int64Param(r, "id")
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		var req RescheduleRequest
		if err := decodeBody(r, &req); err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		appt, err := svc.Reschedule(r.Context(), id, req.toDomain())
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		writeData(w, http.StatusOK, appt)
	}
}

func doctorAppointmentsHandler(svc AppointmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := int64Param(r, "doctorId")
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		appts, err := svc.ListAppointmentsByDoctor(r.Context(), doctorID)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		writeData(w, http.StatusOK, appts)
	}
}

func patientAppointmentsHandler(svc AppointmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, err := int64Param(r, "patientId")
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		appts, err := svc.ListAppointmentsByPatient(r.Context(), patientID)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		writeData(w, http.StatusOK, appts)
	}
}
