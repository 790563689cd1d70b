package plan

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExplainer counts calls and serves a canned plan or error.
type fakeExplainer struct {
	calls atomic.Int32
	err   error
	delay time.Duration
}

func (f *fakeExplainer) Explain(ctx context.Context, _ string, _ bool) (*ExplainResult, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &ExplainResult{
		Database: "postgres",
		Root:     &Node{NodeType: "Seq Scan", RelationName: "users", TotalCost: 50, PlanRows: 100},
	}, nil
}

func newTestAnalyzer(exp Explainer) *Analyzer {
	return NewAnalyzer(AnalyzerConfig{Explainer: exp})
}

func TestAnalyzer_ComputesOncePerFingerprint(t *testing.T) {
	exp := &fakeExplainer{}
	a := newTestAnalyzer(exp)
	ctx := context.Background()

	p1 := a.Analyze(ctx, "fp1", "SELECT * FROM users")
	p2 := a.Analyze(ctx, "fp1", "SELECT * FROM users")

	require.NotNil(t, p1)
	assert.Same(t, p1, p2, "repeated analysis must return the cached plan")
	assert.Equal(t, int32(1), exp.calls.Load(), "EXPLAIN must run once per fingerprint")

	stats := a.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
}

func TestAnalyzer_FailureIsTerminal(t *testing.T) {
	exp := &fakeExplainer{err: errors.New("permission denied")}
	a := newTestAnalyzer(exp)
	ctx := context.Background()

	assert.Nil(t, a.Analyze(ctx, "fp1", "SELECT 1"))
	// The failure is cached; the database is not asked again.
	assert.Nil(t, a.Analyze(ctx, "fp1", "SELECT 1"))
	assert.Equal(t, int32(1), exp.calls.Load())

	p, cached := a.Cached("fp1")
	assert.True(t, cached)
	assert.Nil(t, p)
	assert.Equal(t, uint64(1), a.Stats().Failures)
}

func TestAnalyzer_SingleFlight(t *testing.T) {
	exp := &fakeExplainer{delay: 50 * time.Millisecond}
	a := newTestAnalyzer(exp)
	ctx := context.Background()

	var wg sync.WaitGroup
	plans := make([]*ExecutionPlan, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			plans[i] = a.Analyze(ctx, "fp1", "SELECT * FROM users")
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), exp.calls.Load(), "concurrent callers must share one fetch")
	for i, p := range plans {
		require.NotNil(t, p, "caller %d got nil plan", i)
		assert.Same(t, plans[0], p)
	}
}

func TestAnalyzer_PlansExcludesFailures(t *testing.T) {
	okExp := &fakeExplainer{}
	a := newTestAnalyzer(okExp)
	ctx := context.Background()

	a.Analyze(ctx, "good", "SELECT * FROM users")

	okExp.err = errors.New("boom")
	a.Analyze(ctx, "bad", "SELECT * FROM broken")

	plans := a.Plans()
	require.Len(t, plans, 1)
	assert.Equal(t, "good", plans[0].Fingerprint)
	assert.Equal(t, 2, a.Stats().Size, "terminal failures still occupy the cache")
}

func TestAnalyzer_NilExplainerDisablesAnalysis(t *testing.T) {
	a := NewAnalyzer(AnalyzerConfig{})
	assert.Nil(t, a.Analyze(context.Background(), "fp1", "SELECT 1"))
	assert.Empty(t, a.Plans())
}

func TestAnalyzer_CacheEviction(t *testing.T) {
	exp := &fakeExplainer{}
	a := NewAnalyzer(AnalyzerConfig{Explainer: exp, CacheCapacity: 2})
	ctx := context.Background()

	a.Analyze(ctx, "fp1", "q1")
	a.Analyze(ctx, "fp2", "q2")
	a.Analyze(ctx, "fp3", "q3")

	_, cached := a.Cached("fp1")
	assert.False(t, cached, "oldest entry should have been evicted")
	assert.Equal(t, 2, a.Stats().Size)

	// Re-analysis of the evicted fingerprint fetches again.
	a.Analyze(ctx, "fp1", "q1")
	assert.Equal(t, int32(4), exp.calls.Load())
}

func TestAnalyzer_ContextCancellation(t *testing.T) {
	exp := &fakeExplainer{delay: time.Second}
	a := newTestAnalyzer(exp)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.Nil(t, a.Analyze(ctx, "fp1", "SELECT 1"))
}
