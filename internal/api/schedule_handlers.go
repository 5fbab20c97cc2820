package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hackgods/medvault-scheduling/internal/appointment"
)

func createScheduleHandler(svc AppointmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateScheduleRequest
		if err := decodeBody(r, &req); err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		sched, err := svc.CreateSchedule(r.Context(), appointment.NewSchedule{
			DoctorUserID:   req.DoctorUserID,
			DoctorName:     req.DoctorName,
			Specialization: req.Specialization,
			Date:           req.Date,
			Slots:          req.Slots,
		})
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		writeData(w, http.StatusOK, sched)
	}
}

func doctorSchedulesHandler(svc AppointmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := int64Param(r, "doctorUserId")
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		list, err := svc.ListSchedulesByDoctor(r.Context(), doctorID)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		writeData(w, http.StatusOK, list)
	}
}

func getScheduleHandler(svc AppointmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := int64Param(r, "scheduleId")
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		sched, err := svc.GetSchedule(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		writeData(w, http.StatusOK, sched)
	}
}

func availableSchedulesHandler(svc AppointmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.ListAvailableSchedules(r.Context())
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		writeData(w, http.StatusOK, list)
	}
}

// toggleSlotHandler sets "active" when the body carries it and flips the
// flag otherwise.
func toggleSlotHandler(svc AppointmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scheduleID, err := int64Param(r, "scheduleId")
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		var req SlotActiveRequest
		if err := decodeBody(r, &req); err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		sched, err := svc.SetSlotActive(r.Context(), scheduleID, chi.URLParam(r, "slotId"), req.Active)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		writeData(w, http.StatusOK, sched)
	}
}

func editSlotHandler(svc AppointmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scheduleID, err := int64Param(r, "scheduleId")
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		var req SlotTimeRequest
		if err := decodeBody(r, &req); err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		sched, err := svc.UpdateSlotTime(r.Context(), scheduleID, chi.URLParam(r, "slotId"), req.Time)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		writeData(w, http.StatusOK, sched)
	}
}

func deleteSlotHandler(svc AppointmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scheduleID, err := int64Param(r, "scheduleId")
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		sched, err := svc.DeleteSlot(r.Context(), scheduleID, chi.URLParam(r, "slotId"))
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		writeData(w, http.StatusOK, sched)
	}
}
