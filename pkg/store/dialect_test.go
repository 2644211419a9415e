package store_test

import (
	"database/sql/driver"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astromechza/memoboard/pkg/memo"
	"github.com/astromechza/memoboard/pkg/store"
)

func arrayValue(t *testing.T, arg interface{}) driver.Value {
	t.Helper()
	valuer, ok := arg.(driver.Valuer)
	require.True(t, ok, "%T is not a driver.Valuer", arg)
	v, err := valuer.Value()
	require.NoError(t, err)
	return v
}

func TestPostgres_PatchContentUnsetOnly(t *testing.T) {
	expr, args, err := store.Postgres.PatchContent(memo.Patch{ID: "a", Unset: []string{"y"}}, 3)
	require.NoError(t, err)
	assert.Equal(t, "(content - $3::text[]) || $4::jsonb", expr)
	require.Len(t, args, 2)
	assert.Equal(t, `{"y"}`, arrayValue(t, args[0]))
	// merging null into jsonb yields null, so the empty set must still be an object
	assert.Equal(t, "{}", args[1])
}

func TestPostgres_PatchContentSetOnly(t *testing.T) {
	_, args, err := store.Postgres.PatchContent(memo.Patch{
		ID:  "a",
		Set: map[string]json.RawMessage{"text": json.RawMessage(`"bye"`)},
	}, 1)
	require.NoError(t, err)
	require.Len(t, args, 2)
	assert.Equal(t, "{}", arrayValue(t, args[0]))
	assert.JSONEq(t, `{"text":"bye"}`, args[1].(string))
}

func TestSQLite_PatchContentPlaceholdersAscend(t *testing.T) {
	expr, args, err := store.SQLite.PatchContent(memo.Patch{
		ID:    "a",
		Set:   map[string]json.RawMessage{"b": json.RawMessage(`1`), "a": json.RawMessage(`"x"`)},
		Unset: []string{"c"},
	}, 2)
	require.NoError(t, err)
	assert.Equal(t, "json_set(json_remove(content, $2), $3, json($4), $5, json($6))", expr)
	assert.Equal(t, []interface{}{"$.c", "$.a", `"x"`, "$.b", "1"}, args)
}
