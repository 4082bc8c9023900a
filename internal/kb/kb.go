// Package kb is the knowledge-base facade: it answers an intent plus
// parameters with normalized domain records.
//
// A call resolves the intent's template, validates and binds parameters,
// executes the query once and normalizes the rows. Caller-input errors are
// returned before any I/O; transport errors are returned as the executor
// reported them. A KnowledgeBase holds no state across calls and is safe
// for concurrent use.
package kb

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"course-kb/internal/domain"
	"course-kb/internal/kberr"
	"course-kb/internal/metrics"
	"course-kb/internal/normalize"
	"course-kb/internal/sparql"
	"course-kb/internal/templates"
)

// Executor runs a SELECT query. *fuseki.Client satisfies it.
type Executor interface {
	Select(ctx context.Context, query string) (*sparql.Results, error)
}

// Pinger is implemented by executors that can check store liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

type KnowledgeBase struct {
	exec    Executor
	lib     *templates.Library
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type Option func(*KnowledgeBase)

// WithLibrary replaces the built-in template library.
func WithLibrary(lib *templates.Library) Option {
	return func(k *KnowledgeBase) { k.lib = lib }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(k *KnowledgeBase) { k.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(k *KnowledgeBase) { k.logger = l }
}

func New(exec Executor, opts ...Option) *KnowledgeBase {
	k := &KnowledgeBase{
		exec:   exec,
		lib:    templates.Default(),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(k)
	}
	return k
}

// Library returns the template library in use.
func (k *KnowledgeBase) Library() *templates.Library { return k.lib }

// Result is the outcome of one query. Records are ordered by code (or id)
// and unique by key. Diagnostics list the rows that were dropped.
type Result struct {
	QueryID     string                 `json:"query_id"`
	Intent      string                 `json:"intent"`
	Records     []domain.Record        `json:"records"`
	Diagnostics []normalize.Diagnostic `json:"diagnostics,omitempty"`
}

// Partial reports whether rows were dropped during normalization.
func (r *Result) Partial() bool {
	return len(r.Diagnostics) > 0
}

// Warning returns the partial-result warning, or nil for a complete result.
func (r *Result) Warning() *kberr.PartialResultWarning {
	if !r.Partial() {
		return nil
	}
	return &kberr.PartialResultWarning{Intent: r.Intent, Dropped: len(r.Diagnostics), Kept: len(r.Records)}
}

// ExecuteQuery answers intent with params. An empty result is not an error.
func (k *KnowledgeBase) ExecuteQuery(ctx context.Context, intent string, params map[string]string) (*Result, error) {
	start := time.Now()
	queryID := uuid.NewString()
	log := k.logger.With("query_id", queryID, "intent", intent)

	tpl, err := k.lib.Resolve(intent)
	if err != nil {
		k.record(ctx, log, intent, start, 0, err)
		return nil, err
	}

	query, err := tpl.Bind(params)
	if err != nil {
		k.record(ctx, log, tpl.Intent, start, 0, err)
		return nil, err
	}

	log.Debug("executing query", "template", tpl.Intent)
	res, err := k.exec.Select(ctx, query)
	if err != nil {
		k.record(ctx, log, tpl.Intent, start, 0, err)
		return nil, err
	}

	records, diags := normalize.Normalize(tpl.Kind, res, tpl.Shape)
	out := &Result{
		QueryID:     queryID,
		Intent:      tpl.Intent,
		Records:     records,
		Diagnostics: diags,
	}

	for _, d := range diags {
		k.metrics.RecordDropped(tpl.Intent, string(d.Reason))
		log.Warn("dropped result row", "row", d.Row, "column", d.Column, "reason", d.Reason, "detail", d.Detail)
	}
	if w := out.Warning(); w != nil {
		log.Warn("partial result", "dropped", w.Dropped, "kept", w.Kept)
	}
	k.record(ctx, log, tpl.Intent, start, len(records), nil)
	return out, nil
}

func (k *KnowledgeBase) record(ctx context.Context, log *slog.Logger, intent string, start time.Time, n int, err error) {
	elapsed := time.Since(start)
	outcome := kberr.KindName(err)
	k.metrics.RecordQuery(intent, outcome, n, elapsed)

	if err != nil {
		level := slog.LevelWarn
		if kberr.ClassOf(err) == kberr.ClassInput {
			level = slog.LevelDebug
		}
		log.Log(ctx, level, "query failed", "outcome", outcome, "class", kberr.ClassOf(err).String(), "error", err, "elapsed", elapsed)
		return
	}
	log.Info("query done", "records", n, "elapsed", elapsed)
}

// Ping checks that the store answers. Executors without a Ping method are
// checked with a one-row SELECT.
func (k *KnowledgeBase) Ping(ctx context.Context) error {
	if p, ok := k.exec.(Pinger); ok {
		return p.Ping(ctx)
	}
	_, err := k.exec.Select(ctx, "SELECT ?s WHERE { ?s ?p ?o } LIMIT 1")
	return err
}
