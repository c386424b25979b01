package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	pgxzero "github.com/jackc/pgx-zerolog"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/multitracer"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/newrelic/go-agent/v3/integrations/nrpgx5"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"

	"github.com/akave-ai/logreader/internal/config"
)

// LoggerService owns the optional New Relic application shared by the
// logger and the scan scheduler.
type LoggerService struct {
	nrApp *newrelic.Application
}

// NewLoggerService starts the New Relic agent when a license key is
// configured. Without one the service is a no-op holder.
func NewLoggerService(cfg *config.ObservabilityConfig) *LoggerService {
	service := &LoggerService{}
	if !cfg.NewRelicEnabled() {
		return service
	}

	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName(cfg.ServiceName),
		newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
		newrelic.ConfigAppLogForwardingEnabled(cfg.NewRelic.AppLogForwardingEnabled),
		newrelic.ConfigDistributedTracerEnabled(cfg.NewRelic.DistributedTracingEnabled),
		newrelic.ConfigFromEnvironment(),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize new relic: %v\n", err)
		return service
	}
	service.nrApp = app
	return service
}

// Application returns the New Relic application, or nil.
func (ls *LoggerService) Application() *newrelic.Application {
	if ls == nil {
		return nil
	}
	return ls.nrApp
}

// Shutdown flushes pending New Relic data.
func (ls *LoggerService) Shutdown() {
	if ls != nil && ls.nrApp != nil {
		ls.nrApp.Shutdown(10 * time.Second)
	}
}

// New writes console output to stderr in development and JSON to stdout
// otherwise. logging.format, when set, overrides the choice.
func New(cfg *config.ObservabilityConfig) zerolog.Logger {
	if useConsole(cfg) {
		return newLogger(cfg, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006-01-02 15:04:05"})
	}
	return newLogger(cfg, os.Stdout)
}

func useConsole(cfg *config.ObservabilityConfig) bool {
	switch cfg.Logging.Format {
	case "console":
		return true
	case "json":
		return false
	}
	return cfg.Environment == "development"
}

func newLogger(cfg *config.ObservabilityConfig, writer io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	return zerolog.New(writer).
		Level(cfg.GetLogLevel()).
		With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Str("environment", cfg.Environment).
		Logger()
}

// WithTraceContext adds New Relic trace identifiers from txn to the logger.
func WithTraceContext(logger zerolog.Logger, txn *newrelic.Transaction) zerolog.Logger {
	if txn == nil {
		return logger
	}
	md := txn.GetTraceMetadata()
	return logger.With().
		Str("trace.id", md.TraceID).
		Str("span.id", md.SpanID).
		Logger()
}

// NewPgxTracer logs queries through zerolog at the configured level and,
// when New Relic is active, records them as datastore segments.
func NewPgxTracer(logger zerolog.Logger, level string, service *LoggerService) pgx.QueryTracer {
	traceLogger := &tracelog.TraceLog{
		Logger:   pgxzero.NewLogger(logger.With().Str("component", "pgx").Logger()),
		LogLevel: PgxLogLevel(level),
	}
	if service.Application() == nil {
		return traceLogger
	}
	return multitracer.New(traceLogger, nrpgx5.NewTracer())
}

// PgxLogLevel maps a level name to tracelog, defaulting to warn.
func PgxLogLevel(level string) tracelog.LogLevel {
	l, err := tracelog.LogLevelFromString(level)
	if err != nil {
		return tracelog.LogLevelWarn
	}
	return l
}
