package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/hackgods/medvault-scheduling/internal/appointment"
	"github.com/hackgods/medvault-scheduling/internal/config"
	"github.com/hackgods/medvault-scheduling/internal/db"
	"github.com/hackgods/medvault-scheduling/internal/logging"
)

type SimConfig struct {
	APIBaseURL      string
	Duration        time.Duration
	Workers         int
	BookingRatio    float64
	ReserveRatio    float64
	CancelRatio     float64
	RescheduleRatio float64
	ReadRatio       float64
	Patients        int
	ScheduleLimit   int
	PostgresDSN     string
	JWTSecret       string
}

type slotRef struct {
	ScheduleID int64
	SlotID     string
}

type DataPool struct {
	Slots        []slotRef
	mu           sync.RWMutex
	appointments []int64 // Thread-safe list of created appointment IDs
}

func (dp *DataPool) AddAppointment(id int64) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (int64, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return 0, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]

	return avg, min, max, p50, p95
}

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Booking    OperationMetrics
	Reserve    OperationMetrics
	Cancel     OperationMetrics
	Reschedule OperationMetrics
	ReadByID   OperationMetrics
	ListByPat  OperationMetrics
	Available  OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	token   string
	logger  *zap.Logger
	metrics Metrics
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}
	logger := logging.Must(baseCfg).Named("simulate")
	defer func() { _ = logger.Sync() }()

	cfg := loadConfig(baseCfg)
	if err := validateConfig(cfg); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	logger.Info("simulator starting",
		zap.Duration("duration", cfg.Duration),
		zap.Int("workers", cfg.Workers),
		zap.Float64("booking", cfg.BookingRatio),
		zap.Float64("reserve", cfg.ReserveRatio),
		zap.Float64("cancel", cfg.CancelRatio),
		zap.Float64("reschedule", cfg.RescheduleRatio),
		zap.Float64("read", cfg.ReadRatio))

	// Load seeded schedules from Postgres
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, appointment.NewPgRepository(pgPool), cfg)
	if err != nil {
		logger.Fatal("load data pool", zap.Error(err))
	}
	logger.Info("data loaded", zap.Int("slots", len(dataPool.Slots)))

	token, err := simulatorToken(cfg.JWTSecret)
	if err != nil {
		logger.Fatal("sign token", zap.Error(err))
	}

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		token:  token,
		logger: logger,
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig(base config.Config) SimConfig {
	cfg := SimConfig{
		APIBaseURL:      strings.TrimRight(getEnv("SIM_API_BASE_URL", "http://localhost:8080"), "/"),
		Duration:        getDuration("SIM_DURATION", 30*time.Second),
		Workers:         getInt("SIM_WORKERS", 10),
		BookingRatio:    getFloat("SIM_BOOKING_RATIO", 0.35),
		ReserveRatio:    getFloat("SIM_RESERVE_RATIO", 0.15),
		CancelRatio:     getFloat("SIM_CANCEL_RATIO", 0.1),
		RescheduleRatio: getFloat("SIM_RESCHEDULE_RATIO", 0.1),
		ReadRatio:       getFloat("SIM_READ_RATIO", 0.3),
		Patients:        getInt("SIM_PATIENTS", 4000),
		ScheduleLimit:   getInt("SIM_SCHEDULE_LIMIT", 500),
		PostgresDSN:     base.PostgresDSN,
		JWTSecret:       base.JWTSecret,
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.ReserveRatio + cfg.CancelRatio + cfg.RescheduleRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.ReserveRatio /= total
		cfg.CancelRatio /= total
		cfg.RescheduleRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Patients <= 0 {
		return fmt.Errorf("SIM_PATIENTS must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, repo appointment.Repository, cfg SimConfig) (*DataPool, error) {
	schedules, err := repo.ListSchedules(ctx)
	if err != nil {
		return nil, fmt.Errorf("load schedules: %w", err)
	}
	if len(schedules) > cfg.ScheduleLimit {
		schedules = schedules[:cfg.ScheduleLimit]
	}

	dataPool := &DataPool{}
	for _, s := range schedules {
		for _, slot := range s.Slots {
			dataPool.Slots = append(dataPool.Slots, slotRef{ScheduleID: s.ID, SlotID: slot.ID})
		}
	}

	if len(dataPool.Slots) == 0 {
		return nil, fmt.Errorf("no slots loaded, run cmd/seed first")
	}
	return dataPool, nil
}

// simulatorToken signs a short-lived token when the server verifies bearer
// tokens.
func simulatorToken(secret string) (string, error) {
	if secret == "" {
		return "", nil
	}
	claims := jwt.MapClaims{
		"userId": 0,
		"role":   "SIMULATOR",
		"exp":    time.Now().Add(time.Hour).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.logger.Info("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
	c := s.config

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < c.BookingRatio:
				s.doBooking(ctx, rng)
			case r < c.BookingRatio+c.ReserveRatio:
				s.doReserve(ctx, rng)
			case r < c.BookingRatio+c.ReserveRatio+c.CancelRatio:
				s.doCancel(ctx, rng)
			case r < c.BookingRatio+c.ReserveRatio+c.CancelRatio+c.RescheduleRatio:
				s.doReschedule(ctx, rng)
			default:
				switch rng.Intn(3) {
				case 0:
					s.doReadByID(ctx, rng)
				case 1:
					s.doListByPatient(ctx, rng)
				case 2:
					s.timed(ctx, &s.metrics.Available, http.MethodGet, "/api/doctor/schedules/available", nil, nil)
				}
			}
		}
	}
}

func (s *Simulator) randomSlot(rng *rand.Rand) slotRef {
	return s.pool.Slots[rng.Intn(len(s.pool.Slots))]
}

func (s *Simulator) randomPatient(rng *rand.Rand) int64 {
	return int64(rng.Intn(s.config.Patients) + 1)
}

// timed sends one request, records it in om and decodes a 200 body into out.
func (s *Simulator) timed(ctx context.Context, om *OperationMetrics, method, path string, body, out any) {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)

	if err != nil {
		// The run deadline cancels in-flight requests; those are not errors.
		if ctx.Err() == nil {
			om.Record(latency, false, false)
		}
		return
	}
	defer resp.Body.Close()

	success := resp.StatusCode == http.StatusOK
	conflict := resp.StatusCode == http.StatusConflict
	if success && out != nil {
		_ = json.NewDecoder(resp.Body).Decode(out)
	}
	om.Record(latency, success, conflict)
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	slot := s.randomSlot(rng)

	var resp struct {
		Data struct {
			ID int64 `json:"id"`
		} `json:"data"`
	}
	s.timed(ctx, &s.metrics.Booking, http.MethodPost, "/api/appointments", map[string]any{
		"scheduleId":    slot.ScheduleID,
		"slotId":        slot.SlotID,
		"patientUserId": s.randomPatient(rng),
	}, &resp)

	if resp.Data.ID != 0 {
		s.pool.AddAppointment(resp.Data.ID)
	}
}

func (s *Simulator) doReserve(ctx context.Context, rng *rand.Rand) {
	slot := s.randomSlot(rng)
	path := fmt.Sprintf("/api/appointments/reserve/%d/%s", slot.ScheduleID, slot.SlotID)

	s.timed(ctx, &s.metrics.Reserve, http.MethodPost, path, map[string]any{
		"patientUserId": s.randomPatient(rng),
		"ttl":           rng.Intn(30) + 1,
	}, nil)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}
	s.timed(ctx, &s.metrics.Cancel, http.MethodPatch, fmt.Sprintf("/api/appointments/%d/cancel", id), nil, nil)
}

func (s *Simulator) doReschedule(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}
	slot := s.randomSlot(rng)
	s.timed(ctx, &s.metrics.Reschedule, http.MethodPatch, fmt.Sprintf("/api/appointments/%d/reschedule", id), map[string]any{
		"scheduleId": slot.ScheduleID,
		"slotId":     slot.SlotID,
	}, nil)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}
	s.timed(ctx, &s.metrics.ReadByID, http.MethodGet, fmt.Sprintf("/api/appointments/%d", id), nil, nil)
}

func (s *Simulator) doListByPatient(ctx context.Context, rng *rand.Rand) {
	path := fmt.Sprintf("/api/appointments/patient/%d", s.randomPatient(rng))
	s.timed(ctx, &s.metrics.ListByPat, http.MethodGet, path, nil, nil)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Reserve", &s.metrics.Reserve)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Reschedule", &s.metrics.Reschedule)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("List by Patient", &s.metrics.ListByPat)
	printOperationReport("Available schedules", &s.metrics.Available)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
