// Package store is the document store behind the memo board. Boards and memos live in two tables
// of a database/sql database; every write is a single statement so the database's own row
// atomicity is the only concurrency control.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/astromechza/memoboard/pkg/memo"
)

// Error is a failure of the underlying database, as opposed to a validation or not-found outcome.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("failed to %s: %s", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// wrap classifies err as a store Error and attaches a stack trace for the operator log.
func wrap(op string, err error) error {
	return errors.WithStack(&Error{Op: op, Err: err})
}

type Store struct {
	database *sql.DB
	dialect  Dialect
	newID    func() string
}

// Open connects to the database, checks it is reachable and ensures the schema exists.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}
	slog.Info("Opening database", "driver", driver)
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	if dialect.Driver == SQLite.Driver {
		// sqlite serialises writers anyway, a single connection avoids SQLITE_BUSY under load
		db.SetMaxOpenConns(1)
	}
	s := New(db, dialect)
	if err := s.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an already open database. The caller is responsible for the schema.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{
		database: db,
		dialect:  dialect,
		newID:    uuid.NewString,
	}
}

func (s *Store) init(ctx context.Context) error {
	for _, stmt := range s.dialect.Schema {
		if _, err := s.database.ExecContext(ctx, stmt); err != nil {
			return wrap("create schema", err)
		}
	}
	slog.Info("Ensured initial tables exist")
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.database.PingContext(ctx); err != nil {
		return wrap("ping database", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.database.Close()
}

func (s *Store) Boards() *BoardRegistry {
	return &BoardRegistry{store: s}
}

func (s *Store) Memos() *MemoRepository {
	return &MemoRepository{store: s}
}

func scanMemo(row interface{ Scan(...interface{}) error }) (memo.Memo, error) {
	var m memo.Memo
	var rawContent []byte
	if err := row.Scan(&m.ID, &m.Board, &rawContent); err != nil {
		return memo.Memo{}, err
	}
	if err := json.Unmarshal(rawContent, &m.Content); err != nil {
		return memo.Memo{}, fmt.Errorf("failed to decode content of %s: %w", m.ID, err)
	}
	if m.Content == nil {
		m.Content = make(map[string]json.RawMessage)
	}
	return m, nil
}
