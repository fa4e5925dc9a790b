package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/weili-projects/reservation-api/internal/appointment"
	"github.com/weili-projects/reservation-api/internal/config"
	"github.com/weili-projects/reservation-api/internal/db"
	"github.com/weili-projects/reservation-api/internal/logging"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	ConfirmRatio float64
	ReadRatio    float64
	ClientLimit  int
	SlotLimit    int
	PostgresDSN  string
}

type DataPool struct {
	Providers []uuid.UUID
	Clients   []uuid.UUID
	Slots     []uuid.UUID

	mu           sync.RWMutex
	appointments []uuid.UUID
}

func (dp *DataPool) AddAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) RandomAppointment(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

// OperationMetrics counts outcomes per operation. Rejections are keyed by the
// error code in the response body, e.g. slot_unavailable or expired.
type OperationMetrics struct {
	Total   int64
	Success int64
	Failed  int64

	mu         sync.Mutex
	rejections map[string]int64
	latencies  []time.Duration
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, code string) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case code == "":
		atomic.AddInt64(&om.Failed, 1)
	}

	om.mu.Lock()
	om.latencies = append(om.latencies, latency)
	if !success && code != "" {
		if om.rejections == nil {
			om.rejections = make(map[string]int64)
		}
		om.rejections[code]++
	}
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95, max time.Duration) {
	om.mu.Lock()
	latencies := make([]time.Duration, len(om.latencies))
	copy(latencies, om.latencies)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	n := len(latencies)
	return sum / time.Duration(n), latencies[n*50/100], latencies[min(n*95/100, n-1)], latencies[n-1]
}

type Metrics struct {
	Booking      OperationMetrics
	Confirm      OperationMetrics
	Read         OperationMetrics
	Availability OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	logger  *zap.Logger
	metrics Metrics
}

func main() {
	cfg, baseCfg := loadConfig()
	logger, err := logging.New(baseCfg.Env, baseCfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := validateConfig(cfg); err != nil {
		logger.Fatal("invalid simulator config", zap.Error(err))
	}

	logger.Info("simulator starting",
		zap.Duration("duration", cfg.Duration),
		zap.Int("workers", cfg.Workers),
		zap.Float64("booking", cfg.BookingRatio),
		zap.Float64("confirm", cfg.ConfirmRatio),
		zap.Float64("read", cfg.ReadRatio),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolConfig{MaxConns: 4})
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	pgPool.Close()
	if err != nil {
		logger.Fatal("load data pool", zap.Error(err))
	}

	logger.Info("data loaded",
		zap.Int("providers", len(dataPool.Providers)),
		zap.Int("clients", len(dataPool.Clients)),
		zap.Int("slots", len(dataPool.Slots)),
	)

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
	sim.Run()
	sim.PrintReport()
}

func loadConfig() (SimConfig, config.Config) {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.5),
		ConfirmRatio: getFloat("SIM_CONFIRM_RATIO", 0.2),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.3),
		ClientLimit:  getInt("SIM_CLIENT_LIMIT", 1000),
		SlotLimit:    getInt("SIM_SLOT_LIMIT", 500),
		PostgresDSN:  baseCfg.PostgresDSN,
	}

	total := cfg.BookingRatio + cfg.ConfirmRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.ConfirmRatio /= total
		cfg.ReadRatio /= total
	}
	return cfg, baseCfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dp := &DataPool{}
	var err error

	if dp.Providers, err = loadIDs(ctx, pool, `SELECT id FROM providers ORDER BY created_at`); err != nil {
		return nil, fmt.Errorf("load providers: %w", err)
	}
	if dp.Clients, err = loadIDs(ctx, pool, `SELECT id FROM clients LIMIT $1`, cfg.ClientLimit); err != nil {
		return nil, fmt.Errorf("load clients: %w", err)
	}
	// Only slots that still clear the advance notice rule are worth booking.
	if dp.Slots, err = loadIDs(ctx, pool, `
		SELECT id FROM slots
		WHERE start_time >= $1
		ORDER BY start_time
		LIMIT $2
	`, time.Now().UTC().Add(appointment.AdvanceNotice+time.Hour), cfg.SlotLimit); err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}

	if len(dp.Clients) == 0 {
		return nil, fmt.Errorf("no clients loaded, run cmd/seed first")
	}
	if len(dp.Slots) == 0 {
		return nil, fmt.Errorf("no bookable slots loaded, run cmd/seed first")
	}
	return dp, nil
}

func loadIDs(ctx context.Context, pool *pgxpool.Pool, query string, args ...any) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

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

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng)
		case r < s.config.BookingRatio+s.config.ConfirmRatio:
			s.doConfirm(ctx, rng)
		case rng.Intn(2) == 0:
			s.doRead(ctx, rng)
		default:
			s.doAvailability(ctx, rng)
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	body, _ := json.Marshal(map[string]string{
		"slot_id":   s.pool.Slots[rng.Intn(len(s.pool.Slots))].String(),
		"client_id": s.pool.Clients[rng.Intn(len(s.pool.Clients))].String(),
	})

	status, respBody, latency, err := s.call(ctx, http.MethodPost, "/appointments", body)
	if err != nil {
		return
	}

	if status == http.StatusCreated {
		var resp struct {
			AppointmentID uuid.UUID `json:"appointment_id"`
		}
		if json.Unmarshal(respBody, &resp) == nil && resp.AppointmentID != uuid.Nil {
			s.pool.AddAppointment(resp.AppointmentID)
		}
	}
	s.metrics.Booking.Record(latency, status == http.StatusCreated, rejectionCode(status, respBody))
}

func (s *Simulator) doConfirm(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	status, respBody, latency, err := s.call(ctx, http.MethodPost, "/appointments/"+id.String()+"/confirm", nil)
	if err != nil {
		return
	}
	s.metrics.Confirm.Record(latency, status == http.StatusOK, rejectionCode(status, respBody))
}

func (s *Simulator) doRead(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	status, respBody, latency, err := s.call(ctx, http.MethodGet, "/appointments/"+id.String(), nil)
	if err != nil {
		return
	}
	s.metrics.Read.Record(latency, status == http.StatusOK, rejectionCode(status, respBody))
}

func (s *Simulator) doAvailability(ctx context.Context, rng *rand.Rand) {
	if len(s.pool.Providers) == 0 {
		return
	}
	id := s.pool.Providers[rng.Intn(len(s.pool.Providers))]
	status, respBody, latency, err := s.call(ctx, http.MethodGet, "/providers/"+id.String()+"/availability", nil)
	if err != nil {
		return
	}
	s.metrics.Availability.Record(latency, status == http.StatusOK, rejectionCode(status, respBody))
}

// call returns an error only when the request never completed, which happens
// routinely as the run deadline cancels in-flight requests.
func (s *Simulator) call(ctx context.Context, method, path string, body []byte) (int, []byte, time.Duration, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return 0, nil, 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Debug("request failed", zap.String("path", path), zap.Error(err))
		}
		return 0, nil, 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	return resp.StatusCode, respBody, time.Since(start), err
}

// rejectionCode returns the error code of a 4xx response. 5xx responses and
// successes return "".
func rejectionCode(status int, body []byte) string {
	if status < 400 || status >= 500 {
		return ""
	}
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) != nil || e.Error == "" {
		return strconv.Itoa(status)
	}
	return e.Error
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n\n", s.config.Workers)

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Confirm", &s.metrics.Confirm)
	printOperationReport("Read by ID", &s.metrics.Read)
	printOperationReport("List availability", &s.metrics.Availability)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}
	pct := func(n int64) float64 { return float64(n) / float64(total) * 100 }

	success := atomic.LoadInt64(&om.Success)
	failed := atomic.LoadInt64(&om.Failed)
	avg, p50, p95, max := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, pct(success))

	om.mu.Lock()
	codes := make([]string, 0, len(om.rejections))
	for code := range om.rejections {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		fmt.Printf("  Rejected %s: %d (%.1f%%)\n", code, om.rejections[code], pct(om.rejections[code]))
	}
	om.mu.Unlock()

	if failed > 0 {
		fmt.Printf("  Server errors: %d (%.1f%%)\n", failed, pct(failed))
	}
	fmt.Printf("  Latency: avg=%s p50=%s p95=%s max=%s\n\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond),
		p95.Round(time.Millisecond), max.Round(time.Millisecond))
}

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
