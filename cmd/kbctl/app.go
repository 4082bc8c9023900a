package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"course-kb/internal/config"
	"course-kb/internal/domain"
	"course-kb/internal/fuseki"
	"course-kb/internal/kb"
	"course-kb/internal/kberr"
	"course-kb/internal/metrics"
)

// errCatalogChanged makes diff exit non-zero when the catalogs differ.
var errCatalogChanged = errors.New("catalog changed")

type globalFlags struct {
	configPath string
	logLevel   string
}

// app is the wiring shared by every subcommand.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	client  *fuseki.Client
	kb      *kb.KnowledgeBase
	metrics *metrics.Metrics
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// newApp loads and validates the configuration and builds the client
// stack. mutate, if set, adjusts the configuration before validation.
func newApp(g *globalFlags, stderr io.Writer, mutate func(*config.Config)) (*app, error) {
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: parseLogLevel(g.logLevel)}))
	slog.SetDefault(logger)

	cfg, err := config.LoadFile(g.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if mutate != nil {
		mutate(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	m, err := metrics.New()
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	client, err := fuseki.New(cfg.Fuseki, fuseki.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	logger.Debug("configured store", "query_url", client.QueryURL(), "timeout", cfg.Fuseki.Timeout)

	return &app{
		cfg:     cfg,
		logger:  logger,
		client:  client,
		kb:      kb.New(client, kb.WithLogger(logger), kb.WithMetrics(m)),
		metrics: m,
	}, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// pickAll projects each record onto the given JSON keys. Keys a record
// does not have are left out rather than reported.
func pickAll(records []domain.Record, keys []string) []map[string]any {
	out := make([]map[string]any, 0, len(records))
	for _, r := range records {
		out = append(out, pick(r, keys...))
	}
	return out
}

func pick(v any, keys ...string) map[string]any {
	b, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}

	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return map[string]any{}
	}

	out := make(map[string]any, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if val, ok := m[k]; ok {
			out[k] = val
		}
	}
	return out
}

// parseParams turns key=value arguments into intent parameters.
func parseParams(args []string) (map[string]string, error) {
	params := make(map[string]string, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("parameter %q is not key=value", a)
		}
		if _, dup := params[k]; dup {
			return nil, fmt.Errorf("parameter %q given twice", k)
		}
		params[k] = v
	}
	return params, nil
}

// Exit codes: 1 generic, 2 panic, 3 caller input, 4 store unavailable,
// 5 query rejected by the store.
func exitCode(err error) int {
	switch kberr.ClassOf(err) {
	case kberr.ClassInput:
		return 3
	case kberr.ClassTransport:
		return 4
	case kberr.ClassDeveloper:
		return 5
	default:
		return 1
	}
}
