package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/semaphore"

	"pricescout/searchservice/internal/domain"
	"pricescout/searchservice/internal/metrics"
)

const (
	DefaultWorkers     = 8
	DefaultCallTimeout = 6 * time.Second
	DefaultBudget      = 12 * time.Second
)

type CallStatus int

const (
	CallSucceeded CallStatus = iota
	CallFailed
	CallTimedOut
)

func (s CallStatus) String() string {
	switch s {
	case CallSucceeded:
		return "ok"
	case CallFailed:
		return "error"
	case CallTimedOut:
		return "timeout"
	default:
		return "unknown"
	}
}

// CallResult is the outcome of one (variant, adapter) call. Offers is only
// populated for CallSucceeded.
type CallResult struct {
	Adapter    string
	Variant    string
	Status     CallStatus
	Offers     []domain.RawOffer
	Err        error
	Elapsed    time.Duration
	FinishedAt time.Time
}

// FanOut is everything one Run collected before its deadline.
type FanOut struct {
	Offers []domain.RawOffer
	Calls  []CallResult
}

type SchedulerOption func(*Scheduler)

func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func withHealth(health *healthTracker) SchedulerOption {
	return func(s *Scheduler) {
		s.health = health
	}
}

// Scheduler runs adapter calls on a bounded pool under a shared deadline.
type Scheduler struct {
	workers     int
	callTimeout time.Duration
	health      *healthTracker
	logger      *slog.Logger
}

func NewScheduler(workers int, callTimeout time.Duration, opts ...SchedulerOption) *Scheduler {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	s := &Scheduler{
		workers:     workers,
		callTimeout: callTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type scheduledCall struct {
	index   int
	adapter Adapter
	variant string
}

// Run issues one call per (variant, adapter) pair and returns once every call
// has reported or the budget is spent, whichever comes first. Calls still
// running at the deadline are cancelled and reported as timed out; anything
// they return afterwards is dropped.
func (s *Scheduler) Run(ctx context.Context, variants []string, adapters []Adapter, budget time.Duration) FanOut {
	calls := make([]scheduledCall, 0, len(variants)*len(adapters))
	for _, variant := range variants {
		for _, adapter := range adapters {
			if adapter == nil {
				continue
			}
			calls = append(calls, scheduledCall{index: len(calls), adapter: adapter, variant: variant})
		}
	}
	if len(calls) == 0 {
		return FanOut{}
	}

	if budget <= 0 {
		budget = DefaultBudget
	}
	callTimeout := min(s.callTimeout, budget)
	deadline := time.Now().Add(budget)
	runCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	sem := semaphore.NewWeighted(int64(s.workers))
	results := make(chan indexedResult, len(calls))
	for _, call := range calls {
		go func(call scheduledCall) {
			results <- indexedResult{index: call.index, result: s.execute(runCtx, sem, call, callTimeout)}
		}(call)
	}

	reported := make([]bool, len(calls))
	collected := make([]CallResult, 0, len(calls))
	admit := func(item indexedResult) {
		reported[item.index] = true
		collected = append(collected, discardLate(item.result, deadline))
	}

	for pending := len(calls); pending > 0; {
		select {
		case item := <-results:
			admit(item)
			pending--
		case <-runCtx.Done():
			for drained := false; !drained && pending > 0; {
				select {
				case item := <-results:
					admit(item)
					pending--
				default:
					drained = true
				}
			}
			for i, call := range calls {
				if reported[i] {
					continue
				}
				collected = append(collected, CallResult{
					Adapter:    call.adapter.Name(),
					Variant:    call.variant,
					Status:     CallTimedOut,
					Err:        runCtx.Err(),
					Elapsed:    budget,
					FinishedAt: deadline,
				})
			}
			pending = 0
		}
	}

	// Cancellation caused by the caller says nothing about adapter health.
	if !errors.Is(ctx.Err(), context.Canceled) {
		s.recordHealth(collected)
	}

	out := FanOut{Calls: collected}
	for _, result := range collected {
		if result.Status == CallSucceeded {
			out.Offers = append(out.Offers, result.Offers...)
		}
	}
	return out
}

// recordHealth reports one outcome per adapter for the whole run: success if
// any variant succeeded, otherwise the last failure. A single run therefore
// moves an adapter's failure streak by at most one. Calls skipped by an open
// breaker are not outcomes.
func (s *Scheduler) recordHealth(calls []CallResult) {
	if s.health == nil {
		return
	}
	outcomes := make(map[string]CallResult, len(calls))
	order := make([]string, 0, len(calls))
	for _, call := range calls {
		if errors.Is(call.Err, ErrAdapterUnavailable) {
			continue
		}
		current, seen := outcomes[call.Adapter]
		if !seen {
			order = append(order, call.Adapter)
		}
		if !seen || current.Status != CallSucceeded {
			outcomes[call.Adapter] = call
		}
	}
	for _, name := range order {
		call := outcomes[name]
		finishedAt := call.FinishedAt
		if finishedAt.IsZero() {
			finishedAt = time.Now()
		}
		s.health.record(name, call.Variant, call.Err, call.Elapsed, finishedAt)
	}
}

type indexedResult struct {
	index  int
	result CallResult
}

func discardLate(result CallResult, deadline time.Time) CallResult {
	if result.Status != CallSucceeded || !result.FinishedAt.After(deadline) {
		return result
	}
	result.Status = CallTimedOut
	result.Offers = nil
	result.Err = context.DeadlineExceeded
	return result
}

type fetchOutcome struct {
	offers []domain.RawOffer
	err    error
}

func (s *Scheduler) execute(runCtx context.Context, sem *semaphore.Weighted, call scheduledCall, timeout time.Duration) CallResult {
	name := call.adapter.Name()
	result := CallResult{Adapter: name, Variant: call.variant}

	started := time.Now()
	if blocked, until, lastErr := s.health.isBlocked(name, started); blocked {
		result.Status = CallFailed
		result.Err = fmt.Errorf("%w until %s: %s", ErrAdapterUnavailable, until.Format(time.RFC3339), lastErr)
		result.FinishedAt = time.Now()
		return result
	}

	if err := sem.Acquire(runCtx, 1); err != nil {
		result.Status = CallTimedOut
		result.Err = err
		result.FinishedAt = time.Now()
		return result
	}
	defer sem.Release(1)
	if err := runCtx.Err(); err != nil {
		result.Status = CallTimedOut
		result.Err = err
		result.FinishedAt = time.Now()
		return result
	}

	callCtx, cancel := context.WithTimeout(runCtx, timeout)
	defer cancel()
	callCtx, span := tracer.Start(callCtx, "adapter.fetch")
	defer span.End()
	span.SetAttributes(
		attribute.String("adapter.name", name),
		attribute.String("search.variant", call.variant),
	)

	begin := time.Now()
	done := make(chan fetchOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fetchOutcome{err: panicError(r)}
			}
		}()
		offers, err := call.adapter.Fetch(callCtx, call.variant)
		done <- fetchOutcome{offers: offers, err: err}
	}()

	select {
	case outcome := <-done:
		result.Offers = outcome.offers
		result.Err = outcome.err
		switch {
		case outcome.err == nil:
			result.Status = CallSucceeded
		case callCtx.Err() != nil && errors.Is(outcome.err, context.DeadlineExceeded):
			result.Status = CallTimedOut
		default:
			result.Status = CallFailed
		}
	case <-callCtx.Done():
		result.Status = CallTimedOut
		result.Err = callCtx.Err()
	}
	if result.Status != CallSucceeded {
		result.Offers = nil
	}
	result.FinishedAt = time.Now()
	result.Elapsed = result.FinishedAt.Sub(begin)

	label := normalizeAdapterName(name)
	metrics.AdapterRequestsTotal.WithLabelValues(label, result.Status.String()).Inc()
	metrics.AdapterRequestDuration.WithLabelValues(label).Observe(result.Elapsed.Seconds())

	attrs := []any{
		slog.String("adapter", name),
		slog.String("variant", call.variant),
		slog.String("status", result.Status.String()),
		slog.Int("count", len(result.Offers)),
		slog.Int64("elapsedMs", result.Elapsed.Milliseconds()),
	}
	if result.Err != nil {
		span.RecordError(result.Err)
		span.SetStatus(codes.Error, result.Status.String())
		s.logger.Warn("adapter call failed", append(attrs, slog.String("error", result.Err.Error()))...)
	} else {
		span.SetAttributes(attribute.Int("adapter.offers", len(result.Offers)))
		s.logger.Debug("adapter call finished", attrs...)
	}
	return result
}

func panicError(recovered any) error {
	if err, ok := recovered.(error); ok {
		return fmt.Errorf("%w: %w", ErrAdapterPanic, err)
	}
	return fmt.Errorf("%w: %v", ErrAdapterPanic, recovered)
}
