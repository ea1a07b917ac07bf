// Command loadtest drives concurrent chat turns against a running chat
// service and reports throughput, latency percentiles, status codes and
// the grounding policy mix of successful replies.
//
// Usage:
//
//	go run ./cmd/loadtest [-url http://localhost:8080] [-concurrency 10] [-duration 30s]
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

type Config struct {
	BaseURL     string
	APIKey      string
	Concurrency int
	Duration    time.Duration
	RAG         bool
	Messages    []string
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	mu            sync.Mutex
	latencies     []time.Duration
	statusCodes   map[int]int64
	policies      map[string]int64
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 10000),
		statusCodes: make(map[int]int64),
		policies:    make(map[string]int64),
	}
}

// RecordRequest tallies one turn. policy is empty for failed turns.
func (s *Stats) RecordRequest(duration time.Duration, statusCode int, policy string, err error) {
	s.totalRequests.Add(1)
	if err != nil {
		s.errorCount.Add(1)
		return
	}
	if statusCode >= 200 && statusCode < 300 {
		s.successCount.Add(1)
	} else {
		s.errorCount.Add(1)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.latencies = append(s.latencies, duration)
	s.statusCodes[statusCode]++
	if policy != "" {
		s.policies[policy]++
	}
}

var defaultMessages = []string{
	"How many vacation days do I get?",
	"What is the vacation carry-over policy?",
	"When do I need a medical certificate for sick leave?",
	"How many days per week can I work remotely?",
	"What is the deadline for submitting expenses?",
	"How much is reimbursed for meals during travel?",
	"What should I do if my laptop is stolen?",
	"How large is the annual training budget?",
	"What are the core working hours?",
	"Can I bring my dog to the office?",
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the chat service")
	apiKey := flag.String("api-key", os.Getenv("RAG_API_KEY"), "API key when auth is enabled")
	concurrency := flag.Int("concurrency", 10, "number of concurrent sessions")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	rag := flag.Bool("rag", true, "ground replies in the corpus")
	flag.Parse()

	cfg := Config{
		BaseURL:     *baseURL,
		APIKey:      *apiKey,
		Concurrency: *concurrency,
		Duration:    *duration,
		RAG:         *rag,
		Messages:    defaultMessages,
	}

	fmt.Println("=== Grounded Chat Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Sessions:    %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("RAG:         %t\n", cfg.RAG)
	fmt.Println()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	fmt.Print("Running")
	go progress(ctx)
	stats := runLoadTest(ctx, cfg)
	fmt.Println(" done!")
	fmt.Println()

	if !printReport(os.Stdout, stats, cfg.Duration) {
		os.Exit(1)
	}
}

func progress(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Print(".")
		}
	}
}

// runLoadTest runs one worker per session until ctx is done. Each worker
// keeps its own session so history grows the way a real conversation does.
func runLoadTest(ctx context.Context, cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	var wg sync.WaitGroup
	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			sessionID := fmt.Sprintf("loadtest-%d-%d", os.Getpid(), workerID)
			for i := workerID; ctx.Err() == nil; i++ {
				msg := cfg.Messages[i%len(cfg.Messages)]
				start := time.Now()
				status, policy, err := sendTurn(ctx, client, cfg, sessionID, msg)
				if ctx.Err() != nil {
					return
				}
				stats.RecordRequest(time.Since(start), status, policy, err)
			}
		}(w)
	}
	wg.Wait()
	return stats
}

func sendTurn(ctx context.Context, client *http.Client, cfg Config, sessionID, message string) (int, string, error) {
	body, err := json.Marshal(map[string]any{
		"session_id": sessionID,
		"message":    message,
		"rag":        cfg.RAG,
	})
	if err != nil {
		return 0, "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseURL+"/api/v1/chat", bytes.NewReader(body))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, "", nil
	}
	var reply struct {
		Policy string `json:"policy"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return resp.StatusCode, "", fmt.Errorf("decoding reply: %w", err)
	}
	return resp.StatusCode, reply.Policy, nil
}

// printReport writes the summary and reports whether any request completed.
func printReport(out io.Writer, stats *Stats, duration time.Duration) bool {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	errs := stats.errorCount.Load()

	fmt.Fprintln(out, "=== Results ===")
	fmt.Fprintf(out, "Total Turns:     %d\n", total)
	fmt.Fprintf(out, "Successful:      %d\n", success)
	fmt.Fprintf(out, "Errors:          %d\n", errs)
	if total > 0 {
		fmt.Fprintf(out, "Error Rate:      %.2f%%\n", float64(errs)/float64(total)*100)
		fmt.Fprintf(out, "Turns/sec:       %.2f\n", float64(total)/duration.Seconds())
	}

	stats.mu.Lock()
	latencies := make([]time.Duration, len(stats.latencies))
	copy(latencies, stats.latencies)
	codes := make(map[int]int64, len(stats.statusCodes))
	for k, v := range stats.statusCodes {
		codes[k] = v
	}
	policies := make(map[string]int64, len(stats.policies))
	for k, v := range stats.policies {
		policies[k] = v
	}
	stats.mu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Fprintln(out)
		fmt.Fprintln(out, "=== Latency ===")
		fmt.Fprintf(out, "Min:    %s\n", latencies[0])
		fmt.Fprintf(out, "Avg:    %s\n", avg)
		fmt.Fprintf(out, "P50:    %s\n", percentile(latencies, 50))
		fmt.Fprintf(out, "P95:    %s\n", percentile(latencies, 95))
		fmt.Fprintf(out, "P99:    %s\n", percentile(latencies, 99))
		fmt.Fprintf(out, "Max:    %s\n", latencies[len(latencies)-1])
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "=== Status Codes ===")
	keys := make([]int, 0, len(codes))
	for code := range codes {
		keys = append(keys, code)
	}
	sort.Ints(keys)
	for _, code := range keys {
		fmt.Fprintf(out, "  %d: %d\n", code, codes[code])
	}

	if len(policies) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "=== Policies ===")
		names := make([]string, 0, len(policies))
		for p := range policies {
			names = append(names, p)
		}
		sort.Strings(names)
		for _, p := range names {
			fmt.Fprintf(out, "  %-10s %d\n", p, policies[p])
		}
	}

	if total == 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "WARNING: No turns completed. Is the chat service running?")
		return false
	}
	return true
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
