package store

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/astromechza/memoboard/pkg/memo"
)

// Dialect captures the handful of statements that differ between the supported drivers. Both
// drivers accept $N placeholders; with sqlite3 they must be numbered in the order they first
// appear in the statement text.
type Dialect struct {
	Driver string
	Schema []string
	// JSONParam wraps placeholder n so the bound text is stored as json.
	JSONParam func(n int) string
	// PatchContent returns an expression that applies p to the content column, using
	// placeholders starting at $first, and the matching arguments.
	PatchContent func(p memo.Patch, first int) (string, []interface{}, error)
}

var SQLite = Dialect{
	Driver: "sqlite3",
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS boards (
			board text not null primary key
		)`,
		`CREATE TABLE IF NOT EXISTS memos (
			seq integer primary key autoincrement,
			id text not null unique,
			board text not null,
			content text not null check (json_valid(content))
		)`,
		`CREATE INDEX IF NOT EXISTS memos_board_seq ON memos (board, seq)`,
	},
	JSONParam: func(n int) string {
		return fmt.Sprintf("json($%d)", n)
	},
	PatchContent: func(p memo.Patch, first int) (string, []interface{}, error) {
		expr := "content"
		args := make([]interface{}, 0, len(p.Unset)+2*len(p.Set))
		n := first
		if len(p.Unset) > 0 {
			params := make([]string, 0, len(p.Unset))
			for _, k := range p.Unset {
				params = append(params, fmt.Sprintf("$%d", n))
				args = append(args, "$."+k)
				n++
			}
			expr = fmt.Sprintf("json_remove(%s, %s)", expr, strings.Join(params, ", "))
		}
		if len(p.Set) > 0 {
			params := make([]string, 0, 2*len(p.Set))
			for _, k := range p.SetKeys() {
				params = append(params, fmt.Sprintf("$%d, json($%d)", n, n+1))
				args = append(args, "$."+k, string(p.Set[k]))
				n += 2
			}
			expr = fmt.Sprintf("json_set(%s, %s)", expr, strings.Join(params, ", "))
		}
		return expr, args, nil
	},
}

var Postgres = Dialect{
	Driver: "postgres",
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS boards (
			board text not null primary key
		)`,
		`CREATE TABLE IF NOT EXISTS memos (
			seq bigserial primary key,
			id text not null unique,
			board text not null,
			content jsonb not null
		)`,
		`CREATE INDEX IF NOT EXISTS memos_board_seq ON memos (board, seq)`,
	},
	JSONParam: func(n int) string {
		return fmt.Sprintf("$%d::jsonb", n)
	},
	PatchContent: func(p memo.Patch, first int) (string, []interface{}, error) {
		setFields := p.Set
		if setFields == nil {
			setFields = map[string]json.RawMessage{}
		}
		// a nil map would encode as json null, and content || null is null
		set, err := json.Marshal(setFields)
		if err != nil {
			return "", nil, fmt.Errorf("failed to encode patch: %w", err)
		}
		unset := p.Unset
		if unset == nil {
			unset = []string{}
		}
		return fmt.Sprintf("(content - $%d::text[]) || $%d::jsonb", first, first+1),
			[]interface{}{pq.Array(unset), string(set)}, nil
	},
}

// DialectFor returns the dialect registered for a database/sql driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case SQLite.Driver:
		return SQLite, nil
	case Postgres.Driver:
		return Postgres, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported driver %q", driver)
	}
}
