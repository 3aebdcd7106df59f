// Package registry implements the local-registry state tracker: state lives
// in a local embedded relational store with a wire-exact schema, suitable
// only for single-replica deployments (there is no cluster-wide exclusion
// primitive backing it).
//
// The golang-migrate + database/sql + embedded-migrations-FS shape is
// grounded on the teacher's Postgres metadata store migration runner
// (pkg/store/metadata/postgres/migrate.go), swapped to the pure-Go
// glebarez/sqlite driver so the registry needs no cgo toolchain.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "github.com/glebarez/go-sqlite"

	"github.com/blobtailer/blobtailer/internal/logger"
	"github.com/blobtailer/blobtailer/internal/telemetry"
	"github.com/blobtailer/blobtailer/pkg/tracker"
	"github.com/blobtailer/blobtailer/pkg/tracker/registry/migrations"
)

const strategyName = "registry"

const (
	statusProcessing = "processing"
	statusCompleted  = "completed"
	statusFailed     = "failed"
)

// Config configures the local-registry tracker.
type Config struct {
	Path      string // filesystem path to the sqlite database file
	Processor string
}

// Tracker stores claim state in a local sqlite database. It never leases
// blobs — WasLeaseRenewalCompromised always reports false — since there is
// no multi-replica coordination to compromise.
type Tracker struct {
	db        *sql.DB
	processor string
}

var _ tracker.Tracker = (*Tracker)(nil)

// Open opens (creating if necessary) the registry database at cfg.Path and
// applies the blobs-table migration.
func Open(cfg Config) (*Tracker, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("tracker/registry: open %s: %w", cfg.Path, err)
	}
	db.SetMaxOpenConns(1) // sqlite serializes writers; avoid pool contention

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Tracker{db: db, processor: cfg.Processor}, nil
}

func applyMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("tracker/registry: sqlite migrate driver: %w", err)
	}
	sourceDriver, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("tracker/registry: migrations source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("tracker/registry: migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("tracker/registry: apply migrations: %w", err)
	}
	return nil
}

// FilterCandidates excludes blobs whose row has status=completed.
func (t *Tracker) FilterCandidates(ctx context.Context, blobs []tracker.BlobInfo) ([]tracker.BlobInfo, error) {
	ctx, span := telemetry.StartTrackerSpan(ctx, telemetry.SpanTrackerFilter, strategyName)
	defer span.End()

	candidates := make([]tracker.BlobInfo, 0, len(blobs))
	for _, b := range blobs {
		var status string
		err := t.db.QueryRowContext(ctx, `SELECT status FROM blobs WHERE name = ?`, b.Name).Scan(&status)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			candidates = append(candidates, b)
		case err != nil:
			telemetry.RecordError(ctx, err)
			return nil, err
		case status != statusCompleted:
			candidates = append(candidates, b)
		}
	}
	return candidates, nil
}

// Claim attempts an atomic INSERT; rows-affected=1 means this caller now
// owns the blob, 0 means another local record already exists (processing
// or failed) and must be transitioned by a later mark, not claimed afresh.
func (t *Tracker) Claim(ctx context.Context, name string) (bool, error) {
	ctx, span := telemetry.StartTrackerSpan(ctx, telemetry.SpanPollClaim, strategyName, telemetry.BlobName(name))
	defer span.End()

	now := time.Now().UTC().Format(time.RFC3339)
	res, err := t.db.ExecContext(ctx,
		`INSERT INTO blobs (name, status, started_at, processor) VALUES (?, ?, ?, ?)
		 ON CONFLICT(name) DO NOTHING`,
		name, statusProcessing, now, t.processor)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		telemetry.RecordError(ctx, err)
		return false, err
	}
	return n == 1, nil
}

// MarkCompleted updates the row's terminal columns.
func (t *Tracker) MarkCompleted(ctx context.Context, name string) error {
	ctx, span := telemetry.StartTrackerSpan(ctx, telemetry.SpanTrackerComplete, strategyName, telemetry.BlobName(name))
	defer span.End()

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := t.db.ExecContext(ctx,
		`UPDATE blobs SET status = ?, completed_at = ?, processor = ? WHERE name = ?`,
		statusCompleted, now, t.processor, name)
	if err != nil {
		telemetry.RecordError(ctx, err)
	}
	return err
}

// MarkFailed updates the row's terminal columns with an error reason.
func (t *Tracker) MarkFailed(ctx context.Context, name string, reason string) error {
	ctx, span := telemetry.StartTrackerSpan(ctx, telemetry.SpanTrackerFail, strategyName, telemetry.BlobName(name))
	defer span.End()

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := t.db.ExecContext(ctx,
		`UPDATE blobs SET status = ?, completed_at = ?, error = ?, processor = ? WHERE name = ?`,
		statusFailed, now, reason, t.processor, name)
	if err != nil {
		telemetry.RecordError(ctx, err)
	}
	return err
}

// Release deletes a non-terminal (processing) row, allowing the blob to be
// rediscovered and reclaimed on a later cycle. Terminal rows survive.
func (t *Tracker) Release(ctx context.Context, name string) error {
	ctx, span := telemetry.StartTrackerSpan(ctx, telemetry.SpanLeaseRelease, strategyName, telemetry.BlobName(name))
	defer span.End()

	_, err := t.db.ExecContext(ctx,
		`DELETE FROM blobs WHERE name = ? AND status = ?`, name, statusProcessing)
	if err != nil {
		telemetry.RecordError(ctx, err)
	}
	return err
}

// WasLeaseRenewalCompromised always returns false: the registry variant
// uses no leases.
func (t *Tracker) WasLeaseRenewalCompromised(name string) bool {
	return false
}

// Close closes the underlying database connection. There are no leases to
// release for this variant.
func (t *Tracker) Close(ctx context.Context) {
	if err := t.db.Close(); err != nil {
		logger.Warn("tracker/registry: error closing database", "error", err)
	}
}
