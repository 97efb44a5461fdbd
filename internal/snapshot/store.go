// Package snapshot keeps a local SQLite record of query results so runs can
// be listed, inspected and diffed offline.
package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/tonimelisma/workitems-go/internal/workitems"
)

const (
	lockRetryInterval = 50 * time.Millisecond
	lockTimeout       = 10 * time.Second
	dirPerms          = 0o700
)

// Sentinel errors.
var (
	ErrRunNotFound  = errors.New("snapshot: run not found")
	ErrAmbiguousRun = errors.New("snapshot: run id prefix is ambiguous")
	ErrLocked       = errors.New("snapshot: database is locked by another process")
)

// Run is one recorded query execution.
type Run struct {
	ID         string              `json:"id" yaml:"id"`
	Profile    string              `json:"profile,omitempty" yaml:"profile,omitempty"`
	Label      string              `json:"label" yaml:"label"`
	Query      string              `json:"query,omitempty" yaml:"query,omitempty"`
	CapturedAt time.Time           `json:"capturedAt" yaml:"captured_at"`
	Count      int                 `json:"count" yaml:"count"`
	Items      []workitems.Summary `json:"items,omitempty" yaml:"items,omitempty"`
}

// Filter narrows Runs. Zero values match everything.
type Filter struct {
	Label string
	Since time.Time
	Limit uint64
}

// Store is a snapshot database. Writes take a cross-process lock on
// "<path>.lock".
type Store struct {
	db      *sql.DB
	lock    *flock.Flock
	sq      squirrel.StatementBuilderType
	logger  *slog.Logger
	nowFunc func() time.Time
	newID   func() string
}

// Open opens (creating if needed) the snapshot database at path.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(path), dirPerms); err != nil {
		return nil, fmt.Errorf("snapshot: creating directory: %w", err)
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"+
			"&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)",
		path,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("snapshot: opening database %s: %w", path, err)
	}

	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("snapshot store opened", slog.String("db_path", path))

	return &Store{
		db:      db,
		lock:    flock.New(path + ".lock"),
		sq:      squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
		logger:  logger,
		nowFunc: time.Now,
		newID:   uuid.NewString,
	}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// withLock runs fn while holding the cross-process write lock.
func (s *Store) withLock(ctx context.Context, fn func() error) error {
	lctx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	ok, err := s.lock.TryLockContext(lctx, lockRetryInterval)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return ErrLocked
		}

		return fmt.Errorf("snapshot: acquiring lock: %w", err)
	}

	if !ok {
		return ErrLocked
	}

	defer func() {
		if uerr := s.lock.Unlock(); uerr != nil {
			s.logger.Warn("releasing snapshot lock", slog.String("error", uerr.Error()))
		}
	}()

	return fn()
}

// Record stores run and its items in one transaction. ID and CapturedAt are
// filled in when empty. The stored run is returned.
func (s *Store) Record(ctx context.Context, run Run) (Run, error) {
	if run.Label == "" {
		return Run{}, errors.New("snapshot: run label is required")
	}

	if run.ID == "" {
		run.ID = s.newID()
	}

	if run.CapturedAt.IsZero() {
		run.CapturedAt = s.nowFunc()
	}

	run.CapturedAt = run.CapturedAt.UTC()
	run.Items = dedupe(run.Items)
	run.Count = len(run.Items)

	err := s.withLock(ctx, func() error {
		return s.insertRun(ctx, &run)
	})
	if err != nil {
		return Run{}, err
	}

	s.logger.Info("recorded snapshot",
		slog.String("run", run.ID),
		slog.String("label", run.Label),
		slog.Int("items", run.Count),
	)

	return run, nil
}

func (s *Store) insertRun(ctx context.Context, run *Run) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("snapshot: beginning transaction: %w", err)
	}

	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Warn("rolling back snapshot", slog.String("error", rbErr.Error()))
			}
		}
	}()

	query, args, err := s.sq.Insert("runs").
		Columns("id", "profile", "label", "query", "captured_at", "item_count").
		Values(run.ID, run.Profile, run.Label, run.Query, run.CapturedAt.UnixNano(), run.Count).
		ToSql()
	if err != nil {
		return fmt.Errorf("snapshot: building run insert: %w", err)
	}

	if _, err = tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("snapshot: inserting run: %w", err)
	}

	for i := range run.Items {
		item := &run.Items[i]

		data, mErr := json.Marshal(item)
		if mErr != nil {
			err = fmt.Errorf("snapshot: encoding item %d: %w", item.ID, mErr)
			return err
		}

		query, args, err = s.sq.Insert("run_items").
			Columns("run_id", "position", "item_id", "rev", "state", "data").
			Values(run.ID, i, item.ID, item.Rev, item.State, string(data)).
			ToSql()
		if err != nil {
			return fmt.Errorf("snapshot: building item insert: %w", err)
		}

		if _, err = tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("snapshot: inserting item %d: %w", item.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("snapshot: committing: %w", err)
	}

	return nil
}

func dedupe(items []workitems.Summary) []workitems.Summary {
	seen := make(map[int]bool, len(items))
	out := make([]workitems.Summary, 0, len(items))

	for i := range items {
		if seen[items[i].ID] {
			continue
		}

		seen[items[i].ID] = true
		out = append(out, items[i])
	}

	return out
}

var runColumns = []string{"id", "profile", "label", "query", "captured_at", "item_count"}

// Runs lists runs newest first.
func (s *Store) Runs(ctx context.Context, f Filter) ([]Run, error) {
	sel := s.sq.Select(runColumns...).From("runs").OrderBy("captured_at DESC", "id")

	if f.Label != "" {
		sel = sel.Where(squirrel.Eq{"label": f.Label})
	}

	if !f.Since.IsZero() {
		sel = sel.Where(squirrel.GtOrEq{"captured_at": f.Since.UnixNano()})
	}

	if f.Limit > 0 {
		sel = sel.Limit(f.Limit)
	}

	return s.queryRuns(ctx, sel)
}

// Run looks up a run by full id or unique id prefix. Items are not loaded.
func (s *Store) Run(ctx context.Context, idOrPrefix string) (*Run, error) {
	if idOrPrefix == "" {
		return nil, ErrRunNotFound
	}

	sel := s.sq.Select(runColumns...).From("runs").
		Where(squirrel.Like{"id": idOrPrefix + "%"}).
		OrderBy("id").
		Limit(2)

	runs, err := s.queryRuns(ctx, sel)
	if err != nil {
		return nil, err
	}

	switch {
	case len(runs) == 0:
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, idOrPrefix)
	case len(runs) > 1 && runs[0].ID != idOrPrefix:
		return nil, fmt.Errorf("%w: %s", ErrAmbiguousRun, idOrPrefix)
	}

	return &runs[0], nil
}

func (s *Store) queryRuns(ctx context.Context, sel squirrel.SelectBuilder) ([]Run, error) {
	query, args, err := sel.ToSql()
	if err != nil {
		return nil, fmt.Errorf("snapshot: building run query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("snapshot: listing runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}

	for rows.Next() {
		var (
			r     Run
			nanos int64
		)

		if err := rows.Scan(&r.ID, &r.Profile, &r.Label, &r.Query, &nanos, &r.Count); err != nil {
			return nil, fmt.Errorf("snapshot: scanning run: %w", err)
		}

		r.CapturedAt = time.Unix(0, nanos).UTC()
		runs = append(runs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("snapshot: iterating runs: %w", err)
	}

	return runs, nil
}

// Items returns the summaries recorded for runID in their original order.
func (s *Store) Items(ctx context.Context, runID string) ([]workitems.Summary, error) {
	query, args, err := s.sq.Select("data").From("run_items").
		Where(squirrel.Eq{"run_id": runID}).
		OrderBy("position").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("snapshot: building item query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("snapshot: loading items: %w", err)
	}
	defer rows.Close()

	items := []workitems.Summary{}

	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("snapshot: scanning item: %w", err)
		}

		var item workitems.Summary
		if err := json.Unmarshal([]byte(data), &item); err != nil {
			return nil, fmt.Errorf("snapshot: decoding item: %w", err)
		}

		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("snapshot: iterating items: %w", err)
	}

	return items, nil
}
