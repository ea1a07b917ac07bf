package analytics

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/grounded-chat/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/grounded-chat/pkg/logger"
)

const maxLatencySamples = 10000

type AggregatedStats struct {
	TotalTurns       int64            `json:"total_turns"`
	FailedTurns      int64            `json:"failed_turns"`
	TurnsByPolicy    map[string]int64 `json:"turns_by_policy"`
	RAGTurns         int64            `json:"rag_turns"`
	AvgSources       float64          `json:"avg_sources"`
	AvgLatencyMs     float64          `json:"avg_latency_ms"`
	P50LatencyMs     int64            `json:"p50_latency_ms"`
	P95LatencyMs     int64            `json:"p95_latency_ms"`
	P99LatencyMs     int64            `json:"p99_latency_ms"`
	DistinctSessions int              `json:"distinct_sessions"`
	TopSessions      []SessionCount   `json:"top_sessions"`
	TurnsPerMinute   float64          `json:"turns_per_minute"`
}

type SessionCount struct {
	SessionID string `json:"session_id"`
	Turns     int64  `json:"turns"`
}

// Aggregator folds chat events into running statistics. The latency
// window keeps the most recent samples only.
type Aggregator struct {
	mu           sync.RWMutex
	totalTurns   int64
	failedTurns  int64
	ragTurns     int64
	totalSources int64
	byPolicy     map[string]int64
	latencies    []int64
	nextSample   int
	sessions     map[string]int64
	startTime    time.Time
	logger       *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		byPolicy:  make(map[string]int64),
		latencies: make([]int64, 0, 1024),
		sessions:  make(map[string]int64),
		startTime: time.Now(),
		logger:    logger.WithComponent("analytics-aggregator"),
	}
}

// HandleEvent returns a Kafka handler that records chat events. Malformed
// messages are logged and skipped so the consumer can commit past them.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ChatEvent](value)
		if err != nil {
			agg.logger.Error("failed to decode analytics event", "error", err)
			return nil
		}
		if event.Type != EventChatTurn {
			agg.logger.Debug("ignoring analytics event", "type", event.Type)
			return nil
		}
		agg.Record(event)
		return nil
	}
}

// Record adds one event to the statistics.
func (a *Aggregator) Record(event ChatEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totalTurns++
	if !event.Success {
		a.failedTurns++
	}
	if event.RAGEnabled {
		a.ragTurns++
	}
	a.totalSources += int64(event.SourceCount)
	a.byPolicy[event.Policy]++
	a.sessions[event.SessionID]++

	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.nextSample] = event.LatencyMs
		a.nextSample = (a.nextSample + 1) % maxLatencySamples
	}
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalTurns:       a.totalTurns,
		FailedTurns:      a.failedTurns,
		RAGTurns:         a.ragTurns,
		TurnsByPolicy:    make(map[string]int64, len(a.byPolicy)),
		DistinctSessions: len(a.sessions),
	}
	for p, n := range a.byPolicy {
		stats.TurnsByPolicy[p] = n
	}
	if a.totalTurns > 0 {
		stats.AvgSources = float64(a.totalSources) / float64(a.totalTurns)
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopSessions = topSessions(a.sessions, 10)
	elapsed := time.Since(a.startTime).Minutes()
	if elapsed > 0 {
		stats.TurnsPerMinute = float64(stats.TotalTurns) / elapsed
	}

	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topSessions(counts map[string]int64, n int) []SessionCount {
	result := make([]SessionCount, 0, len(counts))
	for id, count := range counts {
		result = append(result, SessionCount{SessionID: id, Turns: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Turns != result[j].Turns {
			return result[i].Turns > result[j].Turns
		}
		return result[i].SessionID < result[j].SessionID
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
