package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/hackgods/medvault-scheduling/internal/appointment"
)

// AppointmentService is the booking surface the HTTP layer depends on.
// *appointment.Service implements it.
type AppointmentService interface {
	Book(ctx context.Context, req appointment.BookRequest) (*appointment.Appointment, error)
	Reserve(ctx context.Context, scheduleID int64, slotID string, patientUserID int64, ttl time.Duration) (time.Time, error)
	Cancel(ctx context.Context, id int64) (*appointment.Appointment, error)
	Reschedule(ctx context.Context, id int64, req appointment.RescheduleRequest) (*appointment.Appointment, error)

	GetAppointment(ctx context.Context, id int64) (*appointment.Appointment, error)
	ListAppointmentsByDoctor(ctx context.Context, doctorUserID int64) ([]appointment.Appointment, error)
	ListAppointmentsByPatient(ctx context.Context, patientUserID int64) ([]appointment.Appointment, error)
	ListAppointmentEvents(ctx context.Context, appointmentID int64) ([]appointment.EventLog, error)

	CreateSchedule(ctx context.Context, in appointment.NewSchedule) (*appointment.Schedule, error)
	GetSchedule(ctx context.Context, id int64) (*appointment.Schedule, error)
	ListSchedulesByDoctor(ctx context.Context, doctorUserID int64) ([]appointment.Schedule, error)
	ListAvailableSchedules(ctx context.Context) ([]appointment.Schedule, error)
	SetSlotActive(ctx context.Context, scheduleID int64, slotID string, active *bool) (*appointment.Schedule, error)
	UpdateSlotTime(ctx context.Context, scheduleID int64, slotID, label string) (*appointment.Schedule, error)
	DeleteSlot(ctx context.Context, scheduleID int64, slotID string) (*appointment.Schedule, error)
}

var _ AppointmentService = (*appointment.Service)(nil)

type RouterConfig struct {
	Service   AppointmentService
	Postgres  PostgresPinger
	Redis     RedisPinger
	Logger    *zap.Logger
	Env       string
	Version   string
	JWTSecret string

	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := cfg.Service

	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))

	// Health endpoints
	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	limit := func(next http.Handler) http.Handler { return next }
	if cfg.RateLimitRPS > 0 {
		limit = NewRateLimiter(cfg.RateLimitRPS, max(cfg.RateLimitBurst, 1)).Limit
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(Authenticate(cfg.JWTSecret))

		r.Route("/appointments", func(r chi.Router) {
			r.With(limit).Post("/", createAppointmentHandler(svc, logger))
			r.With(limit).Post("/reserve/{scheduleId}/{slotId}", reserveSlotHandler(svc, logger))
			r.Get("/doctor/{doctorId}", doctorAppointmentsHandler(svc, logger))
			r.Get("/patient/{patientId}", patientAppointmentsHandler(svc, logger))
			r.Get("/{id}", getAppointmentHandler(svc, logger))
			r.Get("/{id}/events", appointmentEventsHandler(svc, logger))
			r.Patch("/{id}/cancel", cancelAppointmentHandler(svc, logger))
			r.With(limit).Patch("/{id}/reschedule", rescheduleAppointmentHandler(svc, logger))
		})

		r.Get("/schedules/{scheduleId}", getScheduleHandler(svc, logger))

		r.Route("/doctor/schedules", func(r chi.Router) {
			r.Post("/", createScheduleHandler(svc, logger))
			r.Get("/available", availableSchedulesHandler(svc, logger))
			r.Get("/{doctorUserId}", doctorSchedulesHandler(svc, logger))
			r.Patch("/{scheduleId}/slots/{slotId}", toggleSlotHandler(svc, logger))
			r.Put("/{scheduleId}/slots/{slotId}", editSlotHandler(svc, logger))
			r.Delete("/{scheduleId}/slots/{slotId}", deleteSlotHandler(svc, logger))
		})
	})

	return cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
	}).Handler(r)
}
