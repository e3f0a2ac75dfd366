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

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/auth"
	"github.com/hackgods/clinic-appointments/internal/bootstrap"
	"github.com/hackgods/clinic-appointments/internal/config"
	"github.com/hackgods/clinic-appointments/internal/logging"
	redisclient "github.com/hackgods/clinic-appointments/internal/redis"
)

type SimConfig struct {
	APIBaseURL      string
	Duration        time.Duration
	Workers         int
	BookingRatio    float64
	CancelRatio     float64
	RescheduleRatio float64
	ReadRatio       float64
	UserLimit       int
	Days            int
	SlotsPerDay     int
}

type bookedAppointment struct {
	ID       string
	UserID   string
	DoctorID string
}

type DataPool struct {
	Users        []string
	Doctors      []string
	Slots        []appointment.SlotKey
	userTokens   map[string]string
	doctorTokens map[string]string

	mu           sync.RWMutex
	appointments []bookedAppointment
}

func (dp *DataPool) AddAppointment(a bookedAppointment) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, a)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (bookedAppointment, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return bookedAppointment{}, false
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
	Cancel     OperationMetrics
	Reschedule OperationMetrics
	Read       OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("info", "prod")
		bootLog.Fatal().Err(err).Msg("failed to load base config")
	}
	logger := logging.New(baseCfg.LogLevel, baseCfg.Env)

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	logger.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("booking", cfg.BookingRatio).
		Float64("cancel", cfg.CancelRatio).
		Float64("reschedule", cfg.RescheduleRatio).
		Float64("read", cfg.ReadRatio).
		Msg("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := bootstrap.OpenStore(ctx, baseCfg, false, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open store")
	}
	defer store.Close()

	tokens := auth.NewTokenIssuer(baseCfg.SigningSecret(), time.Hour)
	dataPool, err := loadDataPool(ctx, store, tokens, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}
	logger.Info().
		Int("users", len(dataPool.Users)).
		Int("doctors", len(dataPool.Doctors)).
		Int("slots", len(dataPool.Slots)).
		Msg("data pool loaded")

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
	}

	sim.Run(logger)
	sim.PrintReport()

	if ok := audit(context.Background(), store, logger); !ok {
		os.Exit(1)
	}
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:      getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:        getDuration("SIM_DURATION", 30*time.Second),
		Workers:         getInt("SIM_WORKERS", 10),
		BookingRatio:    getFloat("SIM_BOOKING_RATIO", 0.5),
		CancelRatio:     getFloat("SIM_CANCEL_RATIO", 0.15),
		RescheduleRatio: getFloat("SIM_RESCHEDULE_RATIO", 0.15),
		ReadRatio:       getFloat("SIM_READ_RATIO", 0.2),
		UserLimit:       getInt("SIM_USER_LIMIT", 500),
		Days:            getInt("SIM_DAYS", 3),
		SlotsPerDay:     getInt("SIM_SLOTS_PER_DAY", 8),
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.CancelRatio + cfg.RescheduleRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.CancelRatio /= total
		cfg.RescheduleRatio /= total
		cfg.ReadRatio /= total
	}
	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Days <= 0 || cfg.SlotsPerDay <= 0 {
		return fmt.Errorf("SIM_DAYS and SIM_SLOTS_PER_DAY must be > 0")
	}
	return nil
}

// loadDataPool reads available doctors and patients from the store and mints
// tokens for them, so no passwords are needed. A small slot grid keeps
// contention high.
func loadDataPool(ctx context.Context, repo appointment.Repository, tokens *auth.TokenIssuer, cfg SimConfig) (*DataPool, error) {
	dp := &DataPool{
		userTokens:   make(map[string]string),
		doctorTokens: make(map[string]string),
	}

	users, err := repo.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	for i, u := range users {
		if i >= cfg.UserLimit {
			break
		}
		tok, err := tokens.Issue(appointment.UserActor(u.ID))
		if err != nil {
			return nil, err
		}
		dp.Users = append(dp.Users, u.ID)
		dp.userTokens[u.ID] = tok
	}

	doctors, err := repo.ListDoctors(ctx)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}
	for _, d := range doctors {
		if !d.Available {
			continue
		}
		tok, err := tokens.Issue(appointment.DoctorActor(d.ID))
		if err != nil {
			return nil, err
		}
		dp.Doctors = append(dp.Doctors, d.ID)
		dp.doctorTokens[d.ID] = tok
	}

	start := time.Now().AddDate(0, 0, 1)
	for day := 0; day < cfg.Days; day++ {
		date := start.AddDate(0, 0, day).Format(time.DateOnly)
		for slot := 0; slot < cfg.SlotsPerDay; slot++ {
			t := time.Date(2000, 1, 1, 9, 0, 0, 0, time.UTC).Add(time.Duration(slot) * 30 * time.Minute)
			dp.Slots = append(dp.Slots, appointment.SlotKey{Date: date, Time: t.Format("15:04")})
		}
	}

	if len(dp.Users) == 0 {
		return nil, fmt.Errorf("no users loaded, run the seed command first")
	}
	if len(dp.Doctors) == 0 {
		return nil, fmt.Errorf("no available doctors loaded, run the seed command first")
	}
	return dp, nil
}

func (s *Simulator) Run(logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	logger.Info().Dur("duration", s.config.Duration).Int("workers", s.config.Workers).Msg("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	logger.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.BookingRatio:
				s.doBooking(ctx, rng)
			case r < s.config.BookingRatio+s.config.CancelRatio:
				s.doCancel(ctx, rng)
			case r < s.config.BookingRatio+s.config.CancelRatio+s.config.RescheduleRatio:
				s.doReschedule(ctx, rng)
			default:
				s.doRead(ctx, rng)
			}
		}
	}
}

// call sends a JSON request and reports the status code, or 0 on transport errors.
func (s *Simulator) call(ctx context.Context, method, path, token string, payload any, out any) int {
	var body io.Reader
	if payload != nil {
		b, _ := json.Marshal(payload)
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, body)
	if err != nil {
		return 0
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0
	}
	defer resp.Body.Close()

	if out != nil {
		_ = json.NewDecoder(resp.Body).Decode(out)
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return resp.StatusCode
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	userID := s.pool.Users[rng.Intn(len(s.pool.Users))]
	doctorID := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]
	slot := s.pool.Slots[rng.Intn(len(s.pool.Slots))]

	var resp struct {
		Appointment struct {
			ID string `json:"_id"`
		} `json:"appointment"`
	}

	start := time.Now()
	status := s.call(ctx, http.MethodPost, "/api/user/book-appointment", s.pool.userTokens[userID], map[string]string{
		"docId":    doctorID,
		"slotDate": slot.Date,
		"slotTime": slot.Time,
	}, &resp)
	latency := time.Since(start)

	if status == http.StatusOK && resp.Appointment.ID != "" {
		s.pool.AddAppointment(bookedAppointment{ID: resp.Appointment.ID, UserID: userID, DoctorID: doctorID})
	}
	s.metrics.Booking.Record(latency, status == http.StatusOK, status == http.StatusConflict)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	appt, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	status := s.call(ctx, http.MethodPost, "/api/user/cancel-appointment", s.pool.userTokens[appt.UserID],
		map[string]string{"appointmentId": appt.ID}, nil)
	latency := time.Since(start)

	s.metrics.Cancel.Record(latency, status == http.StatusOK, status == http.StatusConflict)
}

func (s *Simulator) doReschedule(ctx context.Context, rng *rand.Rand) {
	appt, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}
	slot := s.pool.Slots[rng.Intn(len(s.pool.Slots))]

	start := time.Now()
	status := s.call(ctx, http.MethodPut, "/api/doctor/appointment/"+appt.ID, s.pool.doctorTokens[appt.DoctorID],
		map[string]string{"slotDate": slot.Date, "slotTime": slot.Time}, nil)
	latency := time.Since(start)

	s.metrics.Reschedule.Record(latency, status == http.StatusOK, status == http.StatusConflict)
}

func (s *Simulator) doRead(ctx context.Context, rng *rand.Rand) {
	var status int
	start := time.Now()
	if rng.Intn(2) == 0 {
		userID := s.pool.Users[rng.Intn(len(s.pool.Users))]
		status = s.call(ctx, http.MethodGet, "/api/user/appointments", s.pool.userTokens[userID], nil, nil)
	} else {
		status = s.call(ctx, http.MethodGet, "/api/doctor/list", "", nil, nil)
	}
	s.metrics.Read.Record(time.Since(start), status == http.StatusOK, false)
}

// audit checks that no slot ended up double-booked or leaked during the run.
func audit(ctx context.Context, repo appointment.Repository, logger zerolog.Logger) bool {
	svc := appointment.NewService(repo, redisclient.NewLocalLocker(time.Second), nil, logger)
	report, err := svc.Reconcile(ctx, false)
	if err != nil {
		logger.Error().Err(err).Msg("ledger audit failed")
		return false
	}

	fmt.Println("LEDGER AUDIT")
	fmt.Printf("  Doctors checked: %d\n", report.DoctorsChecked)
	if report.Clean() {
		fmt.Println("  Result: clean")
		return true
	}
	for _, d := range report.Drifts {
		fmt.Printf("  Doctor %s: missing=%d orphaned=%d duplicated=%d\n",
			d.DoctorID, len(d.Missing), len(d.Orphaned), len(d.Duplicated))
	}
	return false
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Reschedule", &s.metrics.Reschedule)
	printOperationReport("Read", &s.metrics.Read)
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

func repeat(s string, n int) string {
	return strings.Repeat(s, n)
}
