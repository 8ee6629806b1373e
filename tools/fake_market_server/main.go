// Command fake_market_server is a stand-in for the remote settlement
// service, used for local runs and load tests of the reconciliation
// engine. It serves the same records endpoint the engine fetches from,
// with knobs for latency, random failures and 429 throttling.
//
// Records can be seeded explicitly via POST /admin/records, or generated
// deterministically per period when FAKE_MARKET_GENERATE is set.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

type rawRecord struct {
	EntityID  string `json:"entityId"`
	Quantity  string `json:"quantity"`
	UnitPrice string `json:"unitPrice"`
	SoFlag    bool   `json:"soFlag"`
	CadlFlag  bool   `json:"cadlFlag"`
}

type fakeMarketServer struct {
	start        time.Time
	latency      time.Duration
	failRate     float64
	throttleRate float64
	apiKey       string
	generate     bool

	mu         sync.Mutex
	records    map[string][]rawRecord // "YYYY-MM-DD/period"
	byPeriod   map[string]int64
	byStatus   map[string]int64
	totalCalls int64
}

func main() {
	addr := getenvDefault("FAKE_MARKET_ADDR", ":18080")
	latencyMs := getenvIntDefault("FAKE_MARKET_LATENCY_MS", 0)
	failRate := getenvFloatDefault("FAKE_MARKET_FAIL_RATE", 0)
	throttleRate := getenvFloatDefault("FAKE_MARKET_THROTTLE_RATE", 0)
	apiKey := os.Getenv("FAKE_MARKET_API_KEY")
	generate := os.Getenv("FAKE_MARKET_GENERATE") != ""

	srv := &fakeMarketServer{
		start:        time.Now().UTC(),
		latency:      time.Duration(latencyMs) * time.Millisecond,
		failRate:     failRate,
		throttleRate: throttleRate,
		apiKey:       apiKey,
		generate:     generate,
		records:      make(map[string][]rawRecord),
		byPeriod:     make(map[string]int64),
		byStatus:     make(map[string]int64),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", srv.handleHealth)
	mux.HandleFunc("/stats", srv.handleStats)
	mux.HandleFunc("/records", srv.handleRecords)
	mux.HandleFunc("/admin/records", srv.handleAdminRecords)

	log.Printf("fake market server listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal(err)
	}
}

func (s *fakeMarketServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *fakeMarketServer) handleStats(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	payload := map[string]any{
		"started_at": s.start.Format(time.RFC3339),
		"total":      atomic.LoadInt64(&s.totalCalls),
		"by_period":  s.byPeriod,
		"by_status":  s.byStatus,
	}
	writeJSON(w, payload)
}

func (s *fakeMarketServer) handleRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	date := r.URL.Query().Get("settlementDate")
	periodRaw := r.URL.Query().Get("settlementPeriod")
	period, err := strconv.Atoi(periodRaw)
	if date == "" || err != nil || period < 1 || period > 48 {
		http.Error(w, "settlementDate and settlementPeriod required", http.StatusBadRequest)
		return
	}
	if s.apiKey != "" && r.URL.Query().Get("apiKey") != s.apiKey {
		s.recordCall(date, period, "unauthorized")
		http.Error(w, "invalid api key", http.StatusUnauthorized)
		return
	}

	if s.latency > 0 {
		time.Sleep(s.latency)
	}
	if s.throttleRate > 0 && rand.Float64() < s.throttleRate {
		s.recordCall(date, period, "throttled")
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}
	if s.failRate > 0 && rand.Float64() < s.failRate {
		s.recordCall(date, period, "failed")
		http.Error(w, "fake upstream error", http.StatusInternalServerError)
		return
	}

	s.mu.Lock()
	records, ok := s.records[periodKey(date, period)]
	s.mu.Unlock()
	if !ok && s.generate {
		records = generateRecords(date, period)
	}
	if records == nil {
		records = []rawRecord{}
	}

	s.recordCall(date, period, "ok")
	writeJSON(w, map[string]any{"records": records})
}

// handleAdminRecords replaces the seeded records for one period.
func (s *fakeMarketServer) handleAdminRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var payload struct {
		SettlementDate   string      `json:"settlementDate"`
		SettlementPeriod int         `json:"settlementPeriod"`
		Records          []rawRecord `json:"records"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if payload.SettlementDate == "" || payload.SettlementPeriod < 1 || payload.SettlementPeriod > 48 {
		http.Error(w, "settlementDate and settlementPeriod required", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.records[periodKey(payload.SettlementDate, payload.SettlementPeriod)] = payload.Records
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

// generateRecords produces a small deterministic batch for a period so the
// engine can be exercised without seeding. Quantities are negative and both
// flags alternate, so every generated record passes acceptance.
func generateRecords(date string, period int) []rawRecord {
	records := make([]rawRecord, 0, 3)
	for i := 0; i < 3; i++ {
		records = append(records, rawRecord{
			EntityID:  fmt.Sprintf("E-%03d", i+1),
			Quantity:  fmt.Sprintf("-%d.5", period+i),
			UnitPrice: "40",
			SoFlag:    i%2 == 0,
			CadlFlag:  i%2 == 1,
		})
	}
	return records
}

func periodKey(date string, period int) string {
	return fmt.Sprintf("%s/%d", date, period)
}

func (s *fakeMarketServer) recordCall(date string, period int, status string) {
	atomic.AddInt64(&s.totalCalls, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byPeriod[periodKey(date, period)]++
	s.byStatus[status]++
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
