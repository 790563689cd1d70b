// Package queryscope provides a query performance analysis engine for Go
// applications using PostgreSQL, MySQL, or SQLite. It ingests executed SQL
// statements with their timings, maintains per-fingerprint statistics,
// lazily inspects execution plans, detects N+1 access patterns, and renders
// structured performance reports, with OpenTelemetry tracing out of the box.
package queryscope

import (
	"github.com/coregx/queryscope/internal/engine"
	"github.com/coregx/queryscope/internal/logger"
	"github.com/coregx/queryscope/internal/plan"
	"github.com/coregx/queryscope/internal/report"
	"github.com/coregx/queryscope/internal/tracer"
)

type (
	// Engine is the query performance analysis engine.
	Engine = engine.Engine
	// Option is a functional option for configuring an Engine.
	Option = engine.Option
	// Execution reports one executed statement to the engine.
	Execution = engine.Execution
	// QueryHook observes every recorded statement after normalization.
	QueryHook = engine.QueryHook
	// Stats exposes the engine's internal counters.
	Stats = engine.Stats

	// Report is the engine's complete analysis output, serializable to JSON.
	Report = report.Report
	// QueryEntry is one ranked query in a report list.
	QueryEntry = report.QueryEntry
	// NPlusOnePattern is one suspected N+1 pattern in a report.
	NPlusOnePattern = report.NPlusOnePattern
	// Summary holds the aggregate counts of a report.
	Summary = report.Summary

	// Explainer fetches execution plans from a database.
	Explainer = plan.Explainer
	// ExplainResult is a parsed plan tree with execution metadata.
	ExplainResult = plan.ExplainResult
	// ExecutionPlan is the interpreted plan for one fingerprint.
	ExecutionPlan = plan.ExecutionPlan
	// Node is one node of a plan tree.
	Node = plan.Node

	// Logger is the engine's pluggable logging interface.
	Logger = logger.Logger
	// Tracer is the engine's pluggable tracing interface.
	Tracer = tracer.Tracer
)

// Re-export constructors and options.
var (
	New = engine.New

	WithSlowQueryThreshold    = engine.WithSlowQueryThreshold
	WithNPlusOneThreshold     = engine.WithNPlusOneThreshold
	WithAnalysisWindow        = engine.WithAnalysisWindow
	WithMaxAnalyzedQueries    = engine.WithMaxAnalyzedQueries
	WithExplainAnalyze        = engine.WithExplainAnalyze
	WithPlanCaching           = engine.WithPlanCaching
	WithDB                    = engine.WithDB
	WithExplainer             = engine.WithExplainer
	WithExplainTimeout        = engine.WithExplainTimeout
	WithMaxConcurrentExplains = engine.WithMaxConcurrentExplains
	WithTopN                  = engine.WithTopN
	WithLogger                = engine.WithLogger
	WithTracer                = engine.WithTracer
	WithQueryHook             = engine.WithQueryHook

	NewExplainer   = plan.NewExplainer
	NewSlogAdapter = logger.NewSlogAdapter
	NewOtelTracer  = tracer.NewOtelTracer
)
