package search

import (
	"context"
	"errors"
	"net"
	"slices"
	"strings"
	"sync"
	"time"

	"pricescout/searchservice/internal/domain"
	"pricescout/searchservice/internal/metrics"
)

// Breaker tuning: an adapter is skipped after adapterFailureThreshold failed
// runs in a row, first for adapterBlockBase, doubling per further failure.
const (
	adapterFailureThreshold = 3
	adapterBlockBase        = 2 * time.Minute
	adapterBlockMax         = 15 * time.Minute
)

type adapterHealth struct {
	failStreak    int
	blockedUntil  time.Time
	lastError     string
	lastSuccessAt time.Time
	lastFailureAt time.Time
	lastLatency   time.Duration
	lastTimeout   bool
	lastQuery     string
	requests      int64
	failures      int64
	timeouts      int64
}

func (a *adapterHealth) succeed(now time.Time) {
	a.failStreak = 0
	a.blockedUntil = time.Time{}
	a.lastError = ""
	a.lastSuccessAt = now
}

func (a *adapterHealth) fail(err error, now time.Time) {
	a.failStreak++
	a.failures++
	a.lastFailureAt = now
	a.lastError = err.Error()
}

func (a *adapterHealth) fill(item *domain.SourceDiagnostics) {
	item.ConsecutiveFailures = a.failStreak
	item.BlockedUntil = timePtr(a.blockedUntil)
	item.LastError = a.lastError
	item.LastSuccessAt = timePtr(a.lastSuccessAt)
	item.LastFailureAt = timePtr(a.lastFailureAt)
	item.LastLatencyMS = a.lastLatency.Milliseconds()
	item.LastTimeout = a.lastTimeout
	item.LastQuery = a.lastQuery
	item.TotalRequests = a.requests
	item.TotalFailures = a.failures
	item.TimeoutCount = a.timeouts
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// healthTracker keeps per-adapter outcomes across runs of one Service for
// diagnostics. It only skips adapters when blocking is on. A nil tracker
// never blocks and records nothing.
type healthTracker struct {
	mu       sync.Mutex
	blocking bool
	states   map[string]*adapterHealth
}

func newHealthTracker(blocking bool) *healthTracker {
	return &healthTracker{blocking: blocking, states: make(map[string]*adapterHealth)}
}

func (h *healthTracker) isBlocked(adapterName string, now time.Time) (bool, time.Time, string) {
	name := normalizeAdapterName(adapterName)
	if h == nil || !h.blocking || name == "" {
		return false, time.Time{}, ""
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	state, ok := h.states[name]
	if !ok || !now.Before(state.blockedUntil) {
		return false, time.Time{}, ""
	}
	return true, state.blockedUntil, state.lastError
}

func (h *healthTracker) record(adapterName, query string, err error, latency time.Duration, now time.Time) {
	name := normalizeAdapterName(adapterName)
	if h == nil || name == "" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	state, ok := h.states[name]
	if !ok {
		state = &adapterHealth{}
		h.states[name] = state
	}
	state.requests++
	state.lastQuery = strings.TrimSpace(query)
	state.lastTimeout = isTimeoutLikeError(err)
	if state.lastTimeout {
		state.timeouts++
	}
	if latency > 0 {
		state.lastLatency = latency
	}

	if err == nil {
		state.succeed(now)
		metrics.AdapterAvailable.WithLabelValues(name).Set(1)
		return
	}
	state.fail(err, now)
	if h.blocking && state.failStreak >= adapterFailureThreshold {
		state.blockedUntil = now.Add(exponentialBlockDuration(state.failStreak))
		metrics.AdapterAvailable.WithLabelValues(name).Set(0)
	}
}

// exponentialBlockDuration is adapterBlockBase doubled once per failure past
// the threshold, capped at adapterBlockMax.
func exponentialBlockDuration(consecutiveFailures int) time.Duration {
	extra := max(consecutiveFailures-adapterFailureThreshold, 0)
	if extra >= 8 {
		return adapterBlockMax
	}
	return min(adapterBlockBase<<extra, adapterBlockMax)
}

func isTimeoutLikeError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "timeout") || strings.Contains(message, "deadline exceeded")
}

// diagnostics reports the breaker state of every source, sorted by name.
func (h *healthTracker) diagnostics(infos []domain.SourceInfo) []domain.SourceDiagnostics {
	if len(infos) == 0 {
		return nil
	}
	items := make([]domain.SourceDiagnostics, 0, len(infos))
	for _, info := range infos {
		items = append(items, domain.SourceDiagnostics{
			Name:    info.Name,
			Label:   info.Label,
			Kind:    info.Kind,
			Tier:    info.Tier,
			Enabled: info.Enabled,
		})
	}

	if h != nil {
		h.mu.Lock()
		for i := range items {
			if state, ok := h.states[normalizeAdapterName(items[i].Name)]; ok {
				state.fill(&items[i])
			}
		}
		h.mu.Unlock()
	}

	slices.SortFunc(items, func(a, b domain.SourceDiagnostics) int {
		return strings.Compare(a.Name, b.Name)
	})
	return items
}

func normalizeAdapterName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
