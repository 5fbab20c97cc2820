package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"go.uber.org/zap"

	"github.com/hackgods/medvault-scheduling/internal/appointment"
	"github.com/hackgods/medvault-scheduling/internal/config"
	"github.com/hackgods/medvault-scheduling/internal/db"
	"github.com/hackgods/medvault-scheduling/internal/logging"
)

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}

	logger := logging.Must(cfg).Named("seed")
	defer func() { _ = logger.Sync() }()

	doctors := getInt("SEED_DOCTORS", 20)
	days := getInt("SEED_DAYS", 7)
	logger.Info("seed starting", zap.Int("doctors", doctors), zap.Int("days", days))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	if cfg.MigrationsEnabled {
		migrator, err := db.NewMigrator(pool, logger)
		if err != nil {
			logger.Fatal("init migrator", zap.Error(err))
		}
		if err := migrator.Up(ctx); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
		_ = migrator.Close()
	}

	faker := gofakeit.New(uint64(time.Now().UnixNano()))
	svc := appointment.NewService(appointment.NewPgRepository(pool), nil, logger, cfg)

	created, err := seedSchedules(ctx, svc, faker, doctors, days, time.Now())
	if err != nil {
		logger.Fatal("seed schedules", zap.Error(err))
	}

	logger.Info("seed complete", zap.Int("schedules", created))
}

func seedSchedules(ctx context.Context, svc *appointment.Service, faker *gofakeit.Faker, doctors, days int, from time.Time) (int, error) {
	created := 0
	for d := 1; d <= doctors; d++ {
		name := "Dr. " + faker.Name()
		specialty := specialties[faker.Number(0, len(specialties)-1)]

		for day := 1; day <= days; day++ {
			date := from.AddDate(0, 0, day)
			_, err := svc.CreateSchedule(ctx, appointment.NewSchedule{
				DoctorUserID:   int64(d),
				DoctorName:     name,
				Specialization: specialty,
				Date:           date.Format("2006-01-02"),
				Slots:          halfHourSlots(9, 17),
			})
			if err != nil {
				return created, fmt.Errorf("doctor %d day %d: %w", d, day, err)
			}
			created++
		}
	}
	return created, nil
}

// halfHourSlots builds active 30 minute slots from startHour up to endHour.
func halfHourSlots(startHour, endHour int) appointment.SlotList {
	slots := make(appointment.SlotList, 0, (endHour-startHour)*2)
	for m := startHour * 60; m < endHour*60; m += 30 {
		begin := fmt.Sprintf("%02d:%02d", m/60, m%60)
		end := fmt.Sprintf("%02d:%02d", (m+30)/60, (m+30)%60)
		slots = append(slots, appointment.Slot{
			ID:     begin + "-" + end,
			Time:   begin + "-" + end,
			Active: true,
		})
	}
	return slots
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
