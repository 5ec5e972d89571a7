// Load test tool for the SAFV simulation API.
//
// Usage:
//
//	go run ./cmd/loadtest -url http://localhost:8080 -plans plans.csv
//
// This tool:
//  1. Reads payment plans from a CSV file, or generates synthetic ones
//  2. Sends each plan to POST /t/{tenantID}/simulations
//  3. Recomputes the metrics locally and counts mismatching responses
//  4. Reports latency percentiles, throughput and rate-limited requests
package main

import (
	"bytes"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/opensource-finance/safv/internal/api"
	"github.com/opensource-finance/safv/internal/domain"
	"github.com/opensource-finance/safv/internal/finance"
)

// PlanSpec is a level-payment plan: Installments equal payments of Amount at periods 1..n.
type PlanSpec struct {
	Principal    float64
	DiscountRate float64
	Installments int
	Amount       float64
}

func (p PlanSpec) schedule() []domain.Installment {
	out := make([]domain.Installment, p.Installments)
	for i := range out {
		out[i] = domain.Installment{Period: i + 1, Amount: p.Amount}
	}
	return out
}

// Metrics tracks load test results
type Metrics struct {
	TotalProcessed int64
	TotalErrors    int64
	RateLimited    int64
	Mismatches     int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (m *Metrics) record(d time.Duration) {
	m.mu.Lock()
	m.latencies = append(m.latencies, d)
	m.mu.Unlock()
}

// Percentile returns the p-th percentile (0-100) of recorded latencies, nearest rank.
func (m *Metrics) Percentile(p float64) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.latencies) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(m.latencies))
	copy(sorted, m.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}

func main() {
	plansPath := flag.String("plans", "", "CSV of plans (principal,discount_rate,installments,amount); synthetic when empty")
	baseURL := flag.String("url", "http://localhost:8080", "SAFV base URL")
	tenantID := flag.String("tenant", "loadtest", "Tenant ID for requests")
	count := flag.Int("count", 1000, "Synthetic plans to generate")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	periodsPerYear := flag.Int("periods", domain.DefaultPeriodsPerYear, "Periods per year configured for the tenant")
	seed := flag.Int64("seed", 1, "Seed for synthetic plans")
	verbose := flag.Bool("verbose", false, "Print each mismatch or error")
	flag.Parse()

	fmt.Println("SAFV LOAD TEST - Plan simulations")
	fmt.Printf("\nSAFV URL:    %s\n", *baseURL)
	fmt.Printf("Tenant ID:   %s\n", *tenantID)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: SAFV not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure SAFV is running:")
		fmt.Println("  go run ./cmd/safv")
		os.Exit(1)
	}
	fmt.Println("SAFV is healthy")

	var plans []PlanSpec
	if *plansPath != "" {
		f, err := os.Open(*plansPath)
		if err != nil {
			fmt.Printf("ERROR: Failed to open plans: %v\n", err)
			os.Exit(1)
		}
		plans, err = readPlansCSV(f)
		f.Close()
		if err != nil {
			fmt.Printf("ERROR: Failed to read plans: %v\n", err)
			os.Exit(1)
		}
	} else {
		plans = generatePlans(*count, rand.New(rand.NewSource(*seed)))
	}
	fmt.Printf("Loaded %d plans\n", len(plans))

	fmt.Printf("\nRunning load test with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runLoadTest(plans, *baseURL, *tenantID, *workers, *periodsPerYear, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// readPlansCSV reads plans, skipping malformed rows.
func readPlansCSV(r io.Reader) ([]PlanSpec, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, col := range []string{"principal", "discount_rate", "installments", "amount"} {
		if _, ok := colIndex[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	var plans []PlanSpec
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		principal, err1 := strconv.ParseFloat(record[colIndex["principal"]], 64)
		rate, err2 := strconv.ParseFloat(record[colIndex["discount_rate"]], 64)
		n, err3 := strconv.Atoi(record[colIndex["installments"]])
		amount, err4 := strconv.ParseFloat(record[colIndex["amount"]], 64)
		if err := errors.Join(err1, err2, err3, err4); err != nil || principal <= 0 || rate < 0 || n <= 0 || amount <= 0 {
			continue
		}
		plans = append(plans, PlanSpec{Principal: principal, DiscountRate: rate, Installments: n, Amount: amount})
	}
	return plans, nil
}

// generatePlans creates consumer-credit-like plans priced at their own discount rate.
func generatePlans(n int, rng *rand.Rand) []PlanSpec {
	plans := make([]PlanSpec, n)
	for i := range plans {
		principal := float64(1000 + rng.Intn(49000))
		rate := 0.05 + rng.Float64()*0.45
		installments := 6 + rng.Intn(55)
		plans[i] = PlanSpec{
			Principal:    principal,
			DiscountRate: math.Round(rate*10000) / 10000,
			Installments: installments,
			Amount:       finance.Round2(finance.Payment(principal, rate, installments, domain.DefaultPeriodsPerYear)),
		}
	}
	return plans
}

func runLoadTest(plans []PlanSpec, baseURL, tenantID string, numWorkers, periodsPerYear int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan PlanSpec, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for plan := range work {
				start := time.Now()
				result, status, err := simulatePlan(client, baseURL, tenantID, plan)
				metrics.record(time.Since(start))
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if status == http.StatusTooManyRequests {
					atomic.AddInt64(&metrics.RateLimited, 1)
					continue
				}
				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %+v -> %v\n", plan, err)
					}
					continue
				}

				want := finance.CalculateSimulationMetrics(plan.Principal, plan.DiscountRate, plan.schedule(), periodsPerYear)
				if result.PresentValue != want.PresentValue || result.Payment != want.Payment {
					atomic.AddInt64(&metrics.Mismatches, 1)
					if verbose {
						fmt.Printf("MISMATCH: %+v -> server pv=%.2f pmt=%.2f, local pv=%.2f pmt=%.2f\n",
							plan, result.PresentValue, result.Payment, want.PresentValue, want.Payment)
					}
				}
			}
		}()
	}

	for _, plan := range plans {
		work <- plan
	}
	close(work)

	wg.Wait()

	return metrics
}

func simulatePlan(client *http.Client, baseURL, tenantID string, plan PlanSpec) (*domain.SimulationMetrics, int, error) {
	period := func(i int) *int { return &i }
	installments := make([]api.InstallmentInput, plan.Installments)
	for i := range installments {
		installments[i] = api.InstallmentInput{Period: period(i + 1), Amount: plan.Amount}
	}
	body, err := json.Marshal(api.SimulationRequest{
		Principal:    &plan.Principal,
		DiscountRate: &plan.DiscountRate,
		Installments: installments,
	})
	if err != nil {
		return nil, 0, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/t/"+tenantID+"/simulations", bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result api.SimulationResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, resp.StatusCode, err
	}
	if len(result.Outcomes) != 1 {
		return nil, resp.StatusCode, fmt.Errorf("expected 1 outcome, got %d", len(result.Outcomes))
	}
	return &result.Outcomes[0].Result, resp.StatusCode, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\nLOAD TEST RESULTS")

	fmt.Printf("\nREQUESTS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)
	fmt.Printf("   Rate Limited:     %d\n", m.RateLimited)
	fmt.Printf("   Mismatches:       %d\n", m.Mismatches)

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		fmt.Printf("   p50 Latency:      %v\n", m.Percentile(50).Round(time.Microsecond))
		fmt.Printf("   p95 Latency:      %v\n", m.Percentile(95).Round(time.Microsecond))
		fmt.Printf("   p99 Latency:      %v\n", m.Percentile(99).Round(time.Microsecond))
		fmt.Printf("   Throughput:       %.2f req/sec\n", float64(m.TotalProcessed)/duration.Seconds())
	}

	if m.Mismatches > 0 {
		fmt.Println("\n   Server results differ from local computation; check the tenant's periodsPerYear.")
	}
	fmt.Println()
}
