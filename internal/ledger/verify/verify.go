// Package verify replays the hash chain and reports every point of
// divergence. A violation is a reported finding, not a system error: the
// engine returns a Report, it never fails because the ledger is tampered.
package verify

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"veritas/internal/ledger"
	"veritas/internal/ledger/hashchain"
	"veritas/internal/platform/metrics"
	dErrors "veritas/pkg/domain-errors"
)

// EventSource is the read-only slice of the ledger store the engine needs.
type EventSource interface {
	Query(ctx context.Context, filter ledger.Filter, page ledger.Page) ([]*ledger.Event, error)
}

// Status summarizes a verification run.
type Status string

const (
	StatusValid   Status = "VALID"
	StatusInvalid Status = "INVALID"
	StatusEmpty   Status = "EMPTY"
)

// ViolationKind classifies how an event diverged from the chain.
type ViolationKind string

const (
	// KindPayloadMismatch means the stored hash_current does not match the
	// hash recomputed from the event's canonical content: the event itself
	// was corrupted or rewritten.
	KindPayloadMismatch ViolationKind = "payload_mismatch"
	// KindLinkBreak means the stored hash_prev does not match the previous
	// event's hash_current: an event was deleted, reordered or substituted.
	KindLinkBreak ViolationKind = "link_break"
)

// Violation pinpoints a single chain divergence.
type Violation struct {
	Sequence int64         `json:"sequence"`
	EventID  string        `json:"event_id"`
	Kind     ViolationKind `json:"kind"`
	Expected string        `json:"expected"`
	Found    string        `json:"found"`
	Detail   string        `json:"detail"`
}

// Report is the outcome of a verification run. Violations holds every
// divergence found, not just the first.
type Report struct {
	Status        Status      `json:"status"`
	VerifiedCount int         `json:"verified_count"`
	Violations    []Violation `json:"violations"`
}

const defaultBatchSize = 200

// Engine streams the ledger in ascending sequence order and checks both
// payload integrity and chain linkage for every event.
type Engine struct {
	source    EventSource
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	batchSize int
}

// Option configures the Engine.
type Option func(*Engine)

// WithMetrics sets the metrics instance for the engine.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithBatchSize overrides how many events are fetched per page while
// streaming. Mainly useful in tests.
func WithBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithTracer allows injecting a custom OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

// NewEngine creates a verification engine over the given event source.
func NewEngine(source EventSource, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		source:    source,
		logger:    logger,
		batchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer("veritas/verify")
	}
	return e
}

// Verify replays the chain from fromSequence to the tail.
//
// For each event it (a) recomputes hash_current from the canonical content
// and compares it to the stored value, and (b) compares the stored hash_prev
// against the expected predecessor hash. After each event the expectation
// advances to the *stored* hash_current, so a single corrupted event is
// reported once instead of cascading a false positive onto every successor.
func (e *Engine) Verify(ctx context.Context, fromSequence int64) (*Report, error) {
	ctx, span := e.tracer.Start(ctx, "verify.chain",
		trace.WithAttributes(attribute.Int64("from_sequence", fromSequence)))
	defer span.End()

	if fromSequence < 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "from_sequence must not be negative")
	}

	expectedPrev, err := e.seedExpectedPrev(ctx, fromSequence)
	if err != nil {
		return nil, err
	}

	report := &Report{Status: StatusValid, Violations: []Violation{}}
	offset := fromSequence

	for {
		if err := ctx.Err(); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "verification cancelled")
		}

		batch, err := e.source.Query(ctx, ledger.Filter{}, ledger.Page{
			Limit:  e.batchSize,
			Offset: int(offset),
			Order:  ledger.OrderAsc,
		})
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "failed to stream ledger events")
		}
		if len(batch) == 0 {
			break
		}

		for _, event := range batch {
			e.checkEvent(event, expectedPrev, report)
			expectedPrev = event.HashCurrent
			report.VerifiedCount++
		}
		offset += int64(len(batch))
	}

	if report.VerifiedCount == 0 {
		report.Status = StatusEmpty
	} else if len(report.Violations) > 0 {
		report.Status = StatusInvalid
	}

	span.SetAttributes(
		attribute.Int("verified_count", report.VerifiedCount),
		attribute.Int("violations", len(report.Violations)),
		attribute.String("status", string(report.Status)),
	)
	if e.metrics != nil {
		e.metrics.IncrementChainVerifications(string(report.Status))
	}
	if report.Status == StatusInvalid && e.logger != nil {
		e.logger.WarnContext(ctx, "chain verification found violations",
			"violations", len(report.Violations),
			"verified_count", report.VerifiedCount,
		)
	}
	return report, nil
}

// seedExpectedPrev determines the hash the event at fromSequence must link
// to: the genesis constant for a full run, or the stored hash_current of the
// predecessor for an incremental run.
func (e *Engine) seedExpectedPrev(ctx context.Context, fromSequence int64) (string, error) {
	if fromSequence == 0 {
		return hashchain.Genesis, nil
	}
	prev, err := e.source.Query(ctx, ledger.Filter{}, ledger.Page{
		Limit:  1,
		Offset: int(fromSequence - 1),
		Order:  ledger.OrderAsc,
	})
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "failed to read predecessor event")
	}
	if len(prev) == 0 {
		return "", dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("no event at sequence %d", fromSequence-1))
	}
	return prev[0].HashCurrent, nil
}

func (e *Engine) checkEvent(event *ledger.Event, expectedPrev string, report *Report) {
	recomputed, err := event.ComputeHash()
	if err != nil {
		// An event that cannot be canonicalized cannot match its hash.
		report.Violations = append(report.Violations, e.violation(event, KindPayloadMismatch,
			"", event.HashCurrent, "event payload failed canonical serialization"))
	} else if recomputed != event.HashCurrent {
		report.Violations = append(report.Violations, e.violation(event, KindPayloadMismatch,
			recomputed, event.HashCurrent, "recomputed hash does not match stored hash_current"))
	}

	if event.HashPrev != expectedPrev {
		report.Violations = append(report.Violations, e.violation(event, KindLinkBreak,
			expectedPrev, event.HashPrev, "hash_prev does not match previous event's hash_current"))
	}
}

func (e *Engine) violation(event *ledger.Event, kind ViolationKind, expected, found, detail string) Violation {
	if e.metrics != nil {
		e.metrics.IncrementChainViolations(string(kind))
	}
	return Violation{
		Sequence: event.Sequence,
		EventID:  event.ID,
		Kind:     kind,
		Expected: expected,
		Found:    found,
		Detail:   detail,
	}
}
