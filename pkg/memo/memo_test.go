package memo

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemo_MarshalJSON(t *testing.T) {
	m := Memo{
		ID:    "abc",
		Board: "team1",
		Content: map[string]json.RawMessage{
			"text": json.RawMessage(`"hi"`),
			"pos":  json.RawMessage(`{"x":1,"y":2}`),
		},
	}
	raw, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"_id":"abc","board":"team1","text":"hi","pos":{"x":1,"y":2}}`, string(raw))

	var back Memo
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, "abc", back.ID)
	assert.Equal(t, "team1", back.Board)
	assert.Equal(t, "hi", back.Get("text"))
	assert.Equal(t, []string{"pos", "text"}, back.Keys())
}

func TestMemo_UnmarshalRejectsNonObject(t *testing.T) {
	var m Memo
	require.Error(t, json.Unmarshal([]byte(`[1,2]`), &m))
}

func TestParseDraft(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
		check   func(t *testing.T, d Draft)
	}{
		{
			name: "valid",
			body: `{"board":"team1","text":"hi","x":1}`,
			check: func(t *testing.T, d Draft) {
				assert.Equal(t, "team1", d.Board)
				assert.Len(t, d.Content, 2)
				assert.JSONEq(t, `"hi"`, string(d.Content["text"]))
			},
		},
		{
			name: "caller id is discarded",
			body: `{"board":"team1","_id":"mine","text":"hi"}`,
			check: func(t *testing.T, d Draft) {
				assert.NotContains(t, d.Content, IDKey)
				assert.NotContains(t, d.Content, BoardKey)
			},
		},
		{name: "invalid json", body: `{"board":`, wantErr: "request body must be valid json"},
		{name: "not an object", body: `["team1"]`, wantErr: "request body must be a json object"},
		{name: "missing board", body: `{"text":"hi"}`, wantErr: "board: is required"},
		{name: "empty board", body: `{"board":""}`, wantErr: "board: is required"},
		{name: "board not a string", body: `{"board":7}`, wantErr: "board: must be a string"},
		{name: "long board", body: `{"board":"` + strings.Repeat("b", MaxBoardLength+1) + `"}`, wantErr: "board: must be at most"},
		{name: "bad key", body: `{"board":"b","a.b":1}`, wantErr: "a.b: field names must start"},
		{name: "leading digit key", body: `{"board":"b","1a":1}`, wantErr: "1a: field names must start"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d, err := ParseDraft([]byte(tc.body))
			if tc.wantErr != "" {
				require.ErrorIs(t, err, ErrValidation)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			tc.check(t, d)
		})
	}
}

func TestParseDraft_TooManyFields(t *testing.T) {
	obj := map[string]int{}
	for i := 0; i <= MaxFields; i++ {
		obj["f"+strings.Repeat("x", i%10)+string(rune('a'+i%26))+string(rune('a'+i/26))] = i
	}
	body, err := json.Marshal(obj)
	require.NoError(t, err)
	body = append([]byte(`{"board":"b",`), body[1:]...)
	_, err = ParseDraft(body)
	require.ErrorIs(t, err, ErrValidation)
}

func TestParsePatch(t *testing.T) {
	p, err := ParsePatch([]byte(`{"_id":"abc","text":"bye","gone":null}`))
	require.NoError(t, err)
	assert.Equal(t, "abc", p.ID)
	assert.Empty(t, p.Board)
	assert.Equal(t, []string{"text"}, p.SetKeys())
	assert.Equal(t, []string{"gone"}, p.Unset)

	p, err = ParsePatch([]byte(`{"_id":"abc","board":"team1","text":"bye"}`))
	require.NoError(t, err)
	assert.Equal(t, "team1", p.Board)
	assert.NotContains(t, p.Set, BoardKey)

	for _, body := range []string{
		`{"text":"bye"}`,
		`{"_id":"","text":"bye"}`,
		`{"_id":5,"text":"bye"}`,
		`{"_id":"abc"}`,
		`{"_id":"abc","board":"team1"}`,
		`{"_id":"abc","board":"","text":"x"}`,
		`{"_id":"abc","$where":"x"}`,
	} {
		_, err := ParsePatch([]byte(body))
		assert.ErrorIs(t, err, ErrValidation, body)
	}
}

func TestParseRemoval(t *testing.T) {
	r, err := ParseRemoval([]byte(`{"_id":"abc","board":"team1"}`))
	require.NoError(t, err)
	assert.Equal(t, Removal{ID: "abc", Board: "team1"}, r)

	_, err = ParseRemoval([]byte(`{"_id":"abc"}`))
	require.ErrorIs(t, err, ErrValidation)
	_, err = ParseRemoval([]byte(`{"board":"team1"}`))
	require.ErrorIs(t, err, ErrValidation)
}
