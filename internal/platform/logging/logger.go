// Package logging provides structured logging with correlation-ID support,
// threaded from an ArbEvent's correlation_id through every component that
// handles it.
package logging

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ContextKey is the type for context keys carried by this package.
type ContextKey string

const (
	CorrelationIDKey ContextKey = "correlation_id"
	StrategyIDKey    ContextKey = "strategy_id"
	VenueIDKey       ContextKey = "venue_id"
	ServiceKey       ContextKey = "service"
)

// Logger wraps logrus.Logger with ArbFarm-specific context propagation.
type Logger struct {
	*logrus.Logger
	service string
}

// New creates a Logger for the named component ("scanner", "executor", ...).
func New(service, level, format string) *Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}

	logger.SetOutput(os.Stdout)

	return &Logger{Logger: logger, service: service}
}

// NewFromEnv builds a Logger using LOG_LEVEL/LOG_FORMAT, defaulting to
// info/json for unattended operation.
func NewFromEnv(service string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(service, level, format)
}

// WithContext attaches correlation_id/strategy_id/venue_id pulled from ctx,
// if present.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("service", l.service)

	if v := ctx.Value(CorrelationIDKey); v != nil {
		entry = entry.WithField("correlation_id", v)
	}
	if v := ctx.Value(StrategyIDKey); v != nil {
		entry = entry.WithField("strategy_id", v)
	}
	if v := ctx.Value(VenueIDKey); v != nil {
		entry = entry.WithField("venue_id", v)
	}

	return entry
}

func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["service"] = l.service
	return l.Logger.WithFields(fields)
}

func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{
		"service": l.service,
		"error":   err.Error(),
	})
}

// NewCorrelationID mints a fresh UUIDv4 for a signal/edge chain that has none
// yet (the first event in a causal chain, per spec.md §5's "Signal → Edge →
// Trade ... is causally ordered").
func NewCorrelationID() uuid.UUID {
	return uuid.New()
}

func WithCorrelationID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, id)
}

func CorrelationIDFrom(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(CorrelationIDKey).(uuid.UUID)
	return id, ok
}

// LogTrade logs an Executor submit/confirm outcome for a given edge.
func (l *Logger) LogTrade(ctx context.Context, edgeID uuid.UUID, txSignature string, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"edge_id":      edgeID,
		"tx_signature": txSignature,
	})
	if err != nil {
		entry.WithError(err).Error("trade submission failed")
		return
	}
	entry.Info("trade submitted")
}

// LogSimulation logs a TransactionSimulator result.
func (l *Logger) LogSimulation(ctx context.Context, edgeID uuid.UUID, success bool, profitLamports int64, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"edge_id":         edgeID,
		"success":         success,
		"profit_lamports": profitLamports,
	})
	if err != nil {
		entry.WithError(err).Warn("simulation failed")
		return
	}
	entry.Debug("simulation completed")
}
