package store

import (
	"context"

	"github.com/astromechza/memoboard/pkg/memo"
)

// BoardRegistry creates boards lazily on first read.
type BoardRegistry struct {
	store *Store
}

// Ensure creates the board if it is missing and reports whether it already existed. The insert
// is a single conflict-ignoring statement, so among concurrent first readers exactly one sees
// existed == false.
func (r *BoardRegistry) Ensure(ctx context.Context, board string) (bool, error) {
	if err := memo.ValidateBoard(board); err != nil {
		return false, err
	}
	res, err := r.store.database.ExecContext(
		ctx, `INSERT INTO boards (board) VALUES ($1) ON CONFLICT (board) DO NOTHING`, board,
	)
	if err != nil {
		return false, wrap("ensure board", err)
	}
	created, err := res.RowsAffected()
	if err != nil {
		return false, wrap("count rows affected by board insert", err)
	}
	return created == 0, nil
}

