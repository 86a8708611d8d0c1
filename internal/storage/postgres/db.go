// Package postgres implements the durable repository interfaces declared
// across internal/domain/* and internal/eventbus, internal/reporting, over
// database/sql plus lib/pq — following the teacher's
// repository-interface-plus-concrete-store split
// (services/automation/supabase/repository.go) but in the plain
// database/sql idiom system/events/store_postgres.go already uses in this
// workspace, since the teacher's Supabase/PostgREST base has no place in a
// self-hosted Postgres deployment. The schema DDL lives in
// internal/platform/migrations; this package holds only the Go-side
// query/Scan code.
package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"

	"github.com/arbfarm/swarm/internal/platform/apperr"
	"github.com/arbfarm/swarm/internal/platform/config"
	"github.com/arbfarm/swarm/internal/platform/metrics"
)

// Open connects to Postgres per cfg and applies the teacher's pool-tuning
// convention (max open/idle conns, conn lifetime from config rather than
// driver defaults).
func Open(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, apperr.Database("open", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifeSecs > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifeSecs) * time.Second)
	}

	return db, nil
}

// observe records a query's duration and, on failure, an error count — the
// storage layer's equivalent of the ambient logging/metrics wrapping every
// other component applies to its own unit of work.
func observe(table, operation string, start time.Time, err error) {
	metrics.StorageQueryDuration.WithLabelValues(table, operation).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StorageErrors.WithLabelValues(table, operation).Inc()
	}
}

// dbError wraps a raw database/sql error as an *apperr.AppError, collapsing
// sql.ErrNoRows to apperr.NotFound so callers never need to import
// database/sql themselves.
func dbError(operation, resource, id string, err error) error {
	if err == nil {
		return nil
	}
	if err == sql.ErrNoRows {
		return apperr.NotFound(resource, id)
	}
	return apperr.Database(operation, err)
}

// ctxOrBackground protects against a nil context reaching a *sql.DB call,
// matching original_source/.../events/bus.rs's never-block invariant: a
// forgotten ctx should never crash a store, only run without a deadline.
func ctxOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
