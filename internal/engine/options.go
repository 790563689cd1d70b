package engine

import (
	"database/sql"
	"time"

	"github.com/coregx/queryscope/internal/logger"
	"github.com/coregx/queryscope/internal/plan"
	"github.com/coregx/queryscope/internal/tracer"
)

// config collects constructor settings before the Engine is assembled.
type config struct {
	slowQueryThreshold    time.Duration
	nPlusOneThreshold     int
	analysisWindow        time.Duration
	maxAnalyzedQueries    int
	explainAnalyze        bool
	cachePlans            bool
	explainTimeout        time.Duration
	maxConcurrentExplains int
	topN                  int

	explainer plan.Explainer
	log       logger.Logger
	trace     tracer.Tracer
	hook      QueryHook
	now       func() time.Time

	// err defers option failures to New so option functions stay simple.
	err error
}

func defaultConfig() config {
	return config{
		slowQueryThreshold: DefaultSlowQueryThreshold,
		nPlusOneThreshold:  DefaultNPlusOneThreshold,
		analysisWindow:     DefaultAnalysisWindow,
		maxAnalyzedQueries: DefaultMaxAnalyzedQueries,
		cachePlans:         true,
		log:                &logger.NoopLogger{},
		trace:              &tracer.NoopTracer{},
		now:                time.Now,
	}
}

// Option is a functional option for configuring an Engine.
type Option func(*config)

// WithSlowQueryThreshold sets the average duration at which a query counts
// as slow.
func WithSlowQueryThreshold(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.slowQueryThreshold = d
		}
	}
}

// WithNPlusOneThreshold sets the per-window occurrence count that flags a
// fingerprint as a suspected N+1 pattern.
func WithNPlusOneThreshold(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.nPlusOneThreshold = n
		}
	}
}

// WithAnalysisWindow sets how long recorded occurrences stay eligible for
// N+1 detection.
func WithAnalysisWindow(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.analysisWindow = d
		}
	}
}

// WithMaxAnalyzedQueries bounds how many distinct fingerprints the engine
// tracks; the oldest-seen fingerprint is evicted past the bound.
func WithMaxAnalyzedQueries(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxAnalyzedQueries = n
		}
	}
}

// WithExplainAnalyze enables EXPLAIN ANALYZE, which executes the query to
// collect actual row counts. Off by default because of its cost.
func WithExplainAnalyze(enabled bool) Option {
	return func(c *config) {
		c.explainAnalyze = enabled
	}
}

// WithPlanCaching toggles execution plan analysis. Plans are computed at
// most once per fingerprint and cached; disabling caching disables analysis
// entirely, since re-running EXPLAIN per execution would make the analyzer
// a load source on the database.
func WithPlanCaching(enabled bool) Option {
	return func(c *config) {
		c.cachePlans = enabled
	}
}

// WithDB enables plan analysis against db using the dialect matching
// driverName. New fails on unsupported drivers.
func WithDB(db *sql.DB, driverName string) Option {
	return func(c *config) {
		exp, err := explainerFor(db, driverName)
		if err != nil {
			c.err = err
			return
		}
		c.explainer = exp
	}
}

// WithExplainer supplies a custom plan source, bypassing driver detection.
func WithExplainer(exp plan.Explainer) Option {
	return func(c *config) {
		c.explainer = exp
	}
}

// WithExplainTimeout bounds each plan fetch.
func WithExplainTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.explainTimeout = d
		}
	}
}

// WithMaxConcurrentExplains caps in-flight plan fetches.
func WithMaxConcurrentExplains(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxConcurrentExplains = n
		}
	}
}

// WithTopN caps each ranked list in reports.
func WithTopN(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.topN = n
		}
	}
}

// WithLogger sets the engine's logger.
func WithLogger(l logger.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.log = l
		}
	}
}

// WithTracer sets the engine's tracer.
func WithTracer(t tracer.Tracer) Option {
	return func(c *config) {
		if t != nil {
			c.trace = t
		}
	}
}

// WithQueryHook registers a hook observing every recorded statement.
func WithQueryHook(h QueryHook) Option {
	return func(c *config) {
		c.hook = h
	}
}

// WithClock overrides the engine's time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.now = now
		}
	}
}
