// Package memo holds the board and memo records shared by the store, the api and the push channel,
// together with the rules that decide which request fields may be written.
package memo

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/samber/lo"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	// IDKey is the identity key as seen on the wire.
	IDKey = "_id"
	// BoardKey is the routing key as seen on the wire.
	BoardKey = "board"
)

// Board is a named grouping of memos. Identifiers are compared by exact, case-sensitive equality.
type Board struct {
	Board string `json:"board"`
}

// Memo is a single note record. Content holds every caller supplied field other than the id and
// the board, each as raw JSON.
type Memo struct {
	ID      string
	Board   string
	Content map[string]json.RawMessage
}

// Keys returns the content keys in lexical order.
func (m Memo) Keys() []string {
	keys := lo.Keys(m.Content)
	sort.Strings(keys)
	return keys
}

// MarshalJSON renders the memo as one flat object: {"_id": .., "board": .., <content>}.
func (m Memo) MarshalJSON() ([]byte, error) {
	out, err := sjson.SetBytes([]byte(`{}`), IDKey, m.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to set id: %w", err)
	}
	if out, err = sjson.SetBytes(out, BoardKey, m.Board); err != nil {
		return nil, fmt.Errorf("failed to set board: %w", err)
	}
	for _, k := range m.Keys() {
		// content keys are restricted to [A-Za-z0-9_] so they are always literal sjson paths
		if out, err = sjson.SetRawBytes(out, k, m.Content[k]); err != nil {
			return nil, fmt.Errorf("failed to set %s: %w", k, err)
		}
	}
	return out, nil
}

// UnmarshalJSON is the inverse of MarshalJSON. It does not apply the write rules, it is used to
// read memos that the server has already accepted.
func (m *Memo) UnmarshalJSON(raw []byte) error {
	parsed := gjson.ParseBytes(raw)
	if !parsed.IsObject() {
		return fmt.Errorf("memo must be a json object")
	}
	m.ID = parsed.Get(IDKey).String()
	m.Board = parsed.Get(BoardKey).String()
	m.Content = make(map[string]json.RawMessage)
	parsed.ForEach(func(key, value gjson.Result) bool {
		if k := key.String(); k != IDKey && k != BoardKey {
			m.Content[k] = json.RawMessage(value.Raw)
		}
		return true
	})
	return nil
}

// Get returns the content field k decoded into a Go value, or nil if absent.
func (m Memo) Get(k string) interface{} {
	raw, ok := m.Content[k]
	if !ok {
		return nil
	}
	return gjson.ParseBytes(raw).Value()
}
