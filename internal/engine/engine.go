// Package engine wires the normalizer, metrics store, plan analyzer, and
// sequence tracker into a single query performance analysis engine. The
// engine is an explicit instance with an owned lifecycle; there is no
// process-wide state.
package engine

import (
	"context"
	"database/sql"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coregx/queryscope/internal/logger"
	"github.com/coregx/queryscope/internal/metrics"
	"github.com/coregx/queryscope/internal/normalizer"
	"github.com/coregx/queryscope/internal/plan"
	"github.com/coregx/queryscope/internal/report"
	"github.com/coregx/queryscope/internal/tracer"
	"github.com/coregx/queryscope/internal/tracker"
)

// Default configuration values. Hosts override them through options.
const (
	DefaultSlowQueryThreshold = 1000 * time.Millisecond
	DefaultNPlusOneThreshold  = 10
	DefaultAnalysisWindow     = 60 * time.Minute
	DefaultMaxAnalyzedQueries = 100
)

// Execution reports one executed statement to the engine.
type Execution struct {
	// SQL is the raw statement text as executed.
	SQL string
	// Duration is the wall-clock execution time. Set HasDuration when the
	// caller measured it; a zero Duration alone is ambiguous.
	Duration    time.Duration
	HasDuration bool
	// RowsReturned is the result row count when the caller knows it.
	RowsReturned int64
	HasRows      bool
	// At is the execution time; zero means now.
	At time.Time
}

// QueryHook observes every recorded statement after normalization. Hooks run
// synchronously on the recording path and must be fast.
type QueryHook func(fingerprint string, exec Execution)

// Engine ingests executed statements, maintains per-fingerprint statistics,
// lazily analyzes execution plans, and detects N+1 access patterns.
type Engine struct {
	cfg config

	store    *metrics.Store
	analyzer *plan.Analyzer // nil when plan analysis is disabled
	tracker  *tracker.Tracker

	log       logger.Logger
	trace     tracer.Tracer
	sanitizer *logger.Sanitizer
	hook      QueryHook
	now       func() time.Time

	// wg tracks in-flight background plan fetches so Close can drain them.
	// mu orders the closed check against wg.Add so no dispatch can slip in
	// after Close has started waiting.
	mu     sync.Mutex
	wg     sync.WaitGroup
	closed atomic.Bool
}

// New creates an Engine. Without WithDB or WithExplainer the engine still
// records metrics and detects N+1 patterns; plan analysis stays off.
func New(opts ...Option) (*Engine, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.err != nil {
		return nil, cfg.err
	}

	e := &Engine{
		cfg:       cfg,
		store:     metrics.NewStore(cfg.maxAnalyzedQueries),
		tracker:   tracker.New(cfg.nPlusOneThreshold, cfg.analysisWindow),
		log:       cfg.log,
		trace:     cfg.trace,
		sanitizer: logger.NewSanitizer(nil),
		hook:      cfg.hook,
		now:       cfg.now,
	}

	if cfg.explainer != nil && cfg.cachePlans {
		e.analyzer = plan.NewAnalyzer(plan.AnalyzerConfig{
			Explainer:     cfg.explainer,
			UseAnalyze:    cfg.explainAnalyze,
			Timeout:       cfg.explainTimeout,
			MaxConcurrent: cfg.maxConcurrentExplains,
			CacheCapacity: cfg.maxAnalyzedQueries,
			Logger:        cfg.log,
		})
	}
	return e, nil
}

// RecordQuery ingests one executed statement. It never returns an error and
// never blocks on database work: plan analysis is dispatched to a background
// goroutine. Calls after Close are ignored.
func (e *Engine) RecordQuery(ctx context.Context, exec Execution) {
	if e.closed.Load() || exec.SQL == "" {
		return
	}
	at := exec.At
	if at.IsZero() {
		at = e.now()
	}

	res := normalizer.Normalize(exec.SQL)

	_, span := e.trace.StartSpan(ctx, "queryscope.record")
	defer span.End()
	tracer.AddObservationAttributes(span, &tracer.ObservationMetadata{
		Statement:    e.sanitizer.SafeQuery(exec.SQL),
		Fingerprint:  res.Fingerprint,
		DurationMS:   float64(exec.Duration) / float64(time.Millisecond),
		RowsReturned: exec.RowsReturned,
	})

	e.store.Record(res.Fingerprint, res.Normalized, metrics.Observation{
		Duration:    exec.Duration,
		HasDuration: exec.HasDuration,
		Rows:        exec.RowsReturned,
		HasRows:     exec.HasRows,
		At:          at,
	})
	e.tracker.Record(res.Fingerprint, at)

	if e.analyzer != nil {
		if _, done := e.analyzer.Cached(res.Fingerprint); !done {
			e.dispatchAnalysis(ctx, res.Fingerprint, exec.SQL)
		}
	}

	if e.hook != nil {
		e.hook(res.Fingerprint, exec)
	}
}

// dispatchAnalysis fetches and applies the execution plan off the hot path.
// The caller's context is detached so a cancelled request does not abort a
// plan fetch other queries will reuse.
func (e *Engine) dispatchAnalysis(ctx context.Context, fingerprint, rawSQL string) {
	e.mu.Lock()
	if e.closed.Load() {
		e.mu.Unlock()
		return
	}
	e.wg.Add(1)
	e.mu.Unlock()
	go func() {
		defer e.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				e.log.Error("plan analysis panic", "fingerprint", fingerprint, "panic", rec)
			}
		}()

		p := e.analyzer.Analyze(context.WithoutCancel(ctx), fingerprint, rawSQL)
		if p == nil {
			return
		}
		e.store.ApplyPlan(fingerprint, p.RowsExamined(), len(p.TableScans), len(p.IndexScans))
		e.log.Debug("execution plan analyzed",
			"fingerprint", fingerprint,
			"table_scans", len(p.TableScans),
			"recommendations", len(p.Recommendations))
	}()
}

// Report assembles the current analysis state into a report. Report assembly
// reads snapshots and never blocks recording.
func (e *Engine) Report(ctx context.Context) *report.Report {
	_, span := e.trace.StartSpan(ctx, "queryscope.report")
	defer span.End()

	detections := e.tracker.Detect(
		func(fp string) (string, time.Duration, bool) {
			m, ok := e.store.Get(fp)
			if !ok {
				return "", 0, false
			}
			return m.SampleText, m.TotalDuration, true
		},
		normalizer.ExtractTables,
	)

	var plans []*plan.ExecutionPlan
	if e.analyzer != nil {
		plans = e.analyzer.Plans()
	}

	return report.Build(report.Config{
		SlowQueryThreshold: e.cfg.slowQueryThreshold,
		TopN:               e.cfg.topN,
	}, report.Sources{
		Store:        e.store,
		Plans:        plans,
		Detections:   detections,
		Observations: e.store.Stats().Observations,
		Now:          e.now(),
	})
}

// WriteReport renders the current report as text to w.
func (e *Engine) WriteReport(ctx context.Context, w io.Writer) error {
	return report.Render(w, e.Report(ctx))
}

// Stats exposes internal counters for monitoring.
type Stats struct {
	Store   metrics.Stats
	Plans   plan.Stats
	Tracked int
}

// Stats returns engine counters.
func (e *Engine) Stats() Stats {
	s := Stats{
		Store:   e.store.Stats(),
		Tracked: e.tracker.Len(),
	}
	if e.analyzer != nil {
		s.Plans = e.analyzer.Stats()
	}
	return s
}

// Close stops accepting new work and waits for in-flight plan analyses to
// finish. The engine does not own the *sql.DB and never closes it.
func (e *Engine) Close() error {
	// Swapping under mu means no dispatch is mid-Add when the swap lands,
	// so the WaitGroup count is final before Wait starts.
	e.mu.Lock()
	alreadyClosed := e.closed.Swap(true)
	e.mu.Unlock()
	if alreadyClosed {
		return nil
	}
	e.wg.Wait()
	return nil
}

// explainerFor builds a dialect explainer for the driver behind db.
func explainerFor(db *sql.DB, driverName string) (plan.Explainer, error) {
	return plan.NewExplainer(db, driverName)
}
