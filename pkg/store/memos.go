package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"

	"github.com/astromechza/memoboard/pkg/memo"
)

// MemoRepository owns the full lifecycle of memo records.
type MemoRepository struct {
	store *Store
}

// List returns the memos of a board in store insertion order. A board with no memos yields an
// empty, non-nil slice.
func (r *MemoRepository) List(ctx context.Context, board string) ([]memo.Memo, error) {
	rows, err := r.store.database.QueryContext(
		ctx, `SELECT id, board, content FROM memos WHERE board = $1 ORDER BY seq`, board,
	)
	if err != nil {
		return nil, wrap("query memos", err)
	}
	defer rows.Close()

	out := make([]memo.Memo, 0)
	for rows.Next() {
		m, err := scanMemo(rows)
		if err != nil {
			return nil, wrap("scan memo", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("query memos", err)
	}
	return out, nil
}

// Get returns a single memo by id.
func (r *MemoRepository) Get(ctx context.Context, id string) (memo.Memo, error) {
	m, err := scanMemo(r.store.database.QueryRowContext(
		ctx, `SELECT id, board, content FROM memos WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return memo.Memo{}, memo.ErrNotFound
		}
		return memo.Memo{}, wrap("query memo", err)
	}
	return m, nil
}

// Create persists a new memo with a store assigned id.
func (r *MemoRepository) Create(ctx context.Context, draft memo.Draft) (memo.Memo, error) {
	if err := memo.ValidateBoard(draft.Board); err != nil {
		return memo.Memo{}, err
	}
	content := draft.Content
	if content == nil {
		content = make(map[string]json.RawMessage)
	}
	rawContent, err := json.Marshal(content)
	if err != nil {
		return memo.Memo{}, &memo.ValidationError{Reason: fmt.Sprintf("fields are not valid json: %s", err)}
	}
	m, err := scanMemo(r.store.database.QueryRowContext(
		ctx,
		fmt.Sprintf(
			`INSERT INTO memos (id, board, content) VALUES ($1, $2, %s) RETURNING id, board, content`,
			r.store.dialect.JSONParam(3),
		),
		r.store.newID(), draft.Board, string(rawContent),
	))
	if err != nil {
		return memo.Memo{}, wrap("insert memo", err)
	}
	return m, nil
}

// Delete removes the memo with the given id from the given board and returns it. The lookup and
// the removal are one statement.
func (r *MemoRepository) Delete(ctx context.Context, id, board string) (memo.Memo, error) {
	m, err := scanMemo(r.store.database.QueryRowContext(
		ctx,
		`DELETE FROM memos WHERE id = $1 AND board = $2 RETURNING id, board, content`,
		id, board,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return memo.Memo{}, memo.ErrNotFound
		}
		return memo.Memo{}, wrap("delete memo", err)
	}
	return m, nil
}

// Update applies the patch to the stored memo in a single conditional statement and returns the
// result. Fields not named by the patch are left untouched, so concurrent updates to different
// fields never lose each other; for the same field the later write wins.
func (r *MemoRepository) Update(ctx context.Context, p memo.Patch) (memo.Memo, error) {
	if len(p.Set) == 0 && len(p.Unset) == 0 {
		return memo.Memo{}, &memo.ValidationError{Reason: "no fields to update"}
	}
	expr, args, err := r.store.dialect.PatchContent(p, 1)
	if err != nil {
		return memo.Memo{}, &memo.ValidationError{Reason: err.Error()}
	}
	query := fmt.Sprintf(`UPDATE memos SET content = %s WHERE id = $%d`, expr, len(args)+1)
	args = append(args, p.ID)
	if p.Board != "" {
		query += fmt.Sprintf(` AND board = $%d`, len(args)+1)
		args = append(args, p.Board)
	}
	query += ` RETURNING id, board, content`

	m, err := scanMemo(r.store.database.QueryRowContext(ctx, query, args...))
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return memo.Memo{}, wrap("update memo", err)
	}
	if p.Board == "" {
		return memo.Memo{}, memo.ErrNotFound
	}
	// the row may exist under another board
	if _, err := r.Get(ctx, p.ID); err != nil {
		return memo.Memo{}, err
	}
	return memo.Memo{}, &memo.ValidationError{Field: memo.BoardKey, Reason: "cannot be changed"}
}
