// Package sqlite archives completed sessions in an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/cory-johannsen/gamerunner/internal/game/session"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store persists session results in SQLite.
type Store struct {
	db *sql.DB
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

// Open opens the database at path and applies the embedded migrations.
//
// Precondition: path must be non-empty; ":memory:" is not supported because
// every pooled connection would see a different database.
// Postcondition: Returns a ready Store or a non-nil error.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := migrateUp(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// migrateUp applies pending migrations. The migrator is not closed because
// closing its database driver would close db.
func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("creating migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveResult inserts one completed session.
//
// Precondition: res.Outcome must be JSON-encodable.
// Postcondition: A new row exists, or a non-nil error is returned.
func (s *Store) SaveResult(ctx context.Context, res session.Result) error {
	members, err := json.Marshal(nonNil(res.MemberIDs))
	if err != nil {
		return fmt.Errorf("encoding members: %w", err)
	}
	var outcome sql.NullString
	if res.Outcome != nil {
		data, err := json.Marshal(res.Outcome)
		if err != nil {
			return fmt.Errorf("encoding outcome: %w", err)
		}
		outcome = sql.NullString{String: string(data), Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO session_results
		   (session_id, game_type, owner_id, member_ids, outcome, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		res.SessionID, res.Type, res.OwnerID, string(members), outcome,
		toMillis(res.StartedAt), toMillis(res.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting session result %d: %w", res.SessionID, err)
	}
	return nil
}

// Recent returns up to limit results, most recently finished first.
func (s *Store) Recent(ctx context.Context, limit int) ([]session.Result, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, game_type, owner_id, member_ids, outcome, started_at, finished_at
		 FROM session_results
		 ORDER BY finished_at DESC, id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying session results: %w", err)
	}
	defer rows.Close()

	var results []session.Result
	for rows.Next() {
		var (
			res               session.Result
			members           string
			outcome           sql.NullString
			started, finished int64
		)
		if err := rows.Scan(&res.SessionID, &res.Type, &res.OwnerID, &members, &outcome, &started, &finished); err != nil {
			return nil, fmt.Errorf("scanning session result: %w", err)
		}
		if err := json.Unmarshal([]byte(members), &res.MemberIDs); err != nil {
			return nil, fmt.Errorf("decoding members of session %d: %w", res.SessionID, err)
		}
		if outcome.Valid {
			if err := json.Unmarshal([]byte(outcome.String), &res.Outcome); err != nil {
				return nil, fmt.Errorf("decoding outcome of session %d: %w", res.SessionID, err)
			}
		}
		res.StartedAt = fromMillis(started)
		res.FinishedAt = fromMillis(finished)
		results = append(results, res)
	}
	return results, rows.Err()
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
