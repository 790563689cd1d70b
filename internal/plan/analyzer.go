package plan

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coregx/queryscope/internal/logger"
)

const (
	// DefaultCacheCapacity is the default maximum number of cached plans.
	DefaultCacheCapacity = 100
	// DefaultTimeout bounds a single EXPLAIN round trip.
	DefaultTimeout = 5 * time.Second
	// DefaultMaxConcurrent caps in-flight EXPLAIN calls so the analyzer
	// never becomes a load source on the database.
	DefaultMaxConcurrent = 2
)

// AnalyzerConfig configures an Analyzer.
type AnalyzerConfig struct {
	// Explainer fetches plans; nil disables analysis entirely.
	Explainer Explainer
	// UseAnalyze enables EXPLAIN ANALYZE (executes the query; expensive).
	UseAnalyze bool
	// Timeout bounds each plan fetch.
	Timeout time.Duration
	// MaxConcurrent caps concurrent plan fetches.
	MaxConcurrent int
	// CacheCapacity bounds the plan cache.
	CacheCapacity int
	// Logger receives warnings on fetch failures.
	Logger logger.Logger
}

// cacheEntry holds a cached plan. A nil plan marks a terminal failure:
// the fingerprint was analyzed, the fetch failed, and it will not be retried.
type cacheEntry struct {
	fingerprint string
	plan        *ExecutionPlan
}

// inflightCall tracks one in-progress fetch so concurrent requests for the
// same fingerprint share a single EXPLAIN round trip.
type inflightCall struct {
	done chan struct{}
	plan *ExecutionPlan
}

// Analyzer computes execution plans at most once per fingerprint.
// Failed fetches are remembered as terminal misses: retrying a query the
// database already rejected only adds load, so the fingerprint is skipped
// for the rest of the process lifetime.
type Analyzer struct {
	explainer  Explainer
	useAnalyze bool
	timeout    time.Duration
	log        logger.Logger
	capacity   int

	mu       sync.Mutex
	items    map[string]*list.Element
	lruList  *list.List
	inflight map[string]*inflightCall

	// sem bounds concurrent EXPLAIN calls.
	sem chan struct{}

	hits     atomic.Uint64
	misses   atomic.Uint64
	failures atomic.Uint64
}

// NewAnalyzer creates an Analyzer from the given configuration.
func NewAnalyzer(cfg AnalyzerConfig) *Analyzer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.CacheCapacity <= 0 {
		cfg.CacheCapacity = DefaultCacheCapacity
	}
	if cfg.Logger == nil {
		cfg.Logger = &logger.NoopLogger{}
	}
	return &Analyzer{
		explainer:  cfg.Explainer,
		useAnalyze: cfg.UseAnalyze,
		timeout:    cfg.Timeout,
		log:        cfg.Logger,
		capacity:   cfg.CacheCapacity,
		items:      make(map[string]*list.Element, cfg.CacheCapacity),
		lruList:    list.New(),
		inflight:   make(map[string]*inflightCall),
		sem:        make(chan struct{}, cfg.MaxConcurrent),
	}
}

// Analyze returns the execution plan for a fingerprint, fetching and caching
// it on first sight. Returns nil when analysis is disabled, the fetch fails,
// or a previous fetch for this fingerprint failed. Concurrent calls for the
// same fingerprint share one fetch.
func (a *Analyzer) Analyze(ctx context.Context, fingerprint, rawSQL string) *ExecutionPlan {
	if a.explainer == nil {
		return nil
	}

	a.mu.Lock()
	if elem, ok := a.items[fingerprint]; ok {
		a.lruList.MoveToFront(elem)
		a.mu.Unlock()
		a.hits.Add(1)
		return elem.Value.(*cacheEntry).plan
	}
	if call, ok := a.inflight[fingerprint]; ok {
		a.mu.Unlock()
		select {
		case <-call.done:
			return call.plan
		case <-ctx.Done():
			return nil
		}
	}
	call := &inflightCall{done: make(chan struct{})}
	a.inflight[fingerprint] = call
	a.mu.Unlock()

	a.misses.Add(1)
	p := a.fetch(ctx, fingerprint, rawSQL)

	a.mu.Lock()
	delete(a.inflight, fingerprint)
	a.insert(fingerprint, p)
	a.mu.Unlock()

	call.plan = p
	close(call.done)
	return p
}

// Cached returns the cached plan for a fingerprint without triggering a
// fetch. The second return is false when nothing (not even a terminal
// failure) is cached.
func (a *Analyzer) Cached(fingerprint string) (*ExecutionPlan, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	elem, ok := a.items[fingerprint]
	if !ok {
		return nil, false
	}
	return elem.Value.(*cacheEntry).plan, true
}

// Plans returns all successfully cached plans.
func (a *Analyzer) Plans() []*ExecutionPlan {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]*ExecutionPlan, 0, a.lruList.Len())
	for elem := a.lruList.Front(); elem != nil; elem = elem.Next() {
		if entry := elem.Value.(*cacheEntry); entry.plan != nil {
			out = append(out, entry.plan)
		}
	}
	return out
}

// fetch performs the bounded EXPLAIN round trip and interprets the result.
// All failures are logged at warning level and reported as nil; nothing
// escapes into the caller's hot path.
func (a *Analyzer) fetch(ctx context.Context, fingerprint, rawSQL string) *ExecutionPlan {
	select {
	case a.sem <- struct{}{}:
	case <-ctx.Done():
		a.failures.Add(1)
		a.log.Warn("plan analysis canceled before start",
			"fingerprint", fingerprint, "error", ctx.Err())
		return nil
	}
	defer func() { <-a.sem }()

	fetchCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	res, err := a.explainer.Explain(fetchCtx, rawSQL, a.useAnalyze)
	if err != nil {
		a.failures.Add(1)
		a.log.Warn("plan fetch failed",
			"fingerprint", fingerprint, "error", err)
		return nil
	}

	p, err := Interpret(fingerprint, res)
	if err != nil {
		a.failures.Add(1)
		a.log.Warn("plan interpretation failed",
			"fingerprint", fingerprint, "error", err)
		return nil
	}
	return p
}

// insert stores a result (nil marks a terminal failure) with LRU eviction.
// Must be called with the lock held.
func (a *Analyzer) insert(fingerprint string, p *ExecutionPlan) {
	if elem, ok := a.items[fingerprint]; ok {
		a.lruList.MoveToFront(elem)
		elem.Value.(*cacheEntry).plan = p
		return
	}
	if a.lruList.Len() >= a.capacity {
		oldest := a.lruList.Back()
		if oldest != nil {
			a.lruList.Remove(oldest)
			delete(a.items, oldest.Value.(*cacheEntry).fingerprint)
		}
	}
	elem := a.lruList.PushFront(&cacheEntry{fingerprint: fingerprint, plan: p})
	a.items[fingerprint] = elem
}

// Stats holds plan cache counters.
type Stats struct {
	Size     int
	Capacity int
	Hits     uint64
	Misses   uint64
	Failures uint64
}

// Stats returns cache statistics.
func (a *Analyzer) Stats() Stats {
	a.mu.Lock()
	size := a.lruList.Len()
	a.mu.Unlock()

	return Stats{
		Size:     size,
		Capacity: a.capacity,
		Hits:     a.hits.Load(),
		Misses:   a.misses.Load(),
		Failures: a.failures.Load(),
	}
}
