package memo

import (
	"encoding/json"
	"regexp"
	"sort"
	"unicode/utf8"

	"github.com/samber/lo"
	"github.com/tidwall/gjson"
)

const (
	MaxBoardLength = 128
	MaxFields      = 64
)

var fieldKeyPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,63}$`)

// Draft is a validated create request.
type Draft struct {
	Board   string
	Content map[string]json.RawMessage
}

// Patch is a validated update request. Set fields are overwritten, Unset fields are removed.
// Board is empty unless the caller named the board, in which case it must match the stored one.
type Patch struct {
	ID    string
	Board string
	Set   map[string]json.RawMessage
	Unset []string
}

// Removal is a validated delete request.
type Removal struct {
	ID    string
	Board string
}

// ValidateBoard checks a board identifier.
func ValidateBoard(board string) error {
	if board == "" {
		return invalid(BoardKey, "is required")
	}
	if !utf8.ValidString(board) {
		return invalid(BoardKey, "must be valid utf-8")
	}
	if len(board) > MaxBoardLength {
		return invalid(BoardKey, "must be at most %d bytes", MaxBoardLength)
	}
	return nil
}

// ParseDraft validates the body of a create request. Any supplied _id is discarded since ids are
// assigned by the store.
func ParseDraft(body []byte) (Draft, error) {
	obj, err := decodeObject(body)
	if err != nil {
		return Draft{}, err
	}
	board, err := stringField(obj, BoardKey, true)
	if err != nil {
		return Draft{}, err
	}
	if err := ValidateBoard(board); err != nil {
		return Draft{}, err
	}
	content := lo.OmitByKeys(obj, []string{IDKey, BoardKey})
	if err := validateKeys(content); err != nil {
		return Draft{}, err
	}
	return Draft{Board: board, Content: content}, nil
}

// ParsePatch validates the body of an update request.
func ParsePatch(body []byte) (Patch, error) {
	obj, err := decodeObject(body)
	if err != nil {
		return Patch{}, err
	}
	id, err := stringField(obj, IDKey, true)
	if err != nil {
		return Patch{}, err
	}
	board, err := stringField(obj, BoardKey, false)
	if err != nil {
		return Patch{}, err
	}
	if _, ok := obj[BoardKey]; ok {
		if err := ValidateBoard(board); err != nil {
			return Patch{}, err
		}
	}
	content := lo.OmitByKeys(obj, []string{IDKey, BoardKey})
	if len(content) == 0 {
		return Patch{}, invalid("", "no fields to update")
	}
	if err := validateKeys(content); err != nil {
		return Patch{}, err
	}
	p := Patch{ID: id, Board: board, Set: make(map[string]json.RawMessage, len(content))}
	for k, v := range content {
		if gjson.ParseBytes(v).Type == gjson.Null {
			p.Unset = append(p.Unset, k)
		} else {
			p.Set[k] = v
		}
	}
	sort.Strings(p.Unset)
	return p, nil
}

// SetKeys returns the keys of Set in lexical order.
func (p Patch) SetKeys() []string {
	keys := lo.Keys(p.Set)
	sort.Strings(keys)
	return keys
}

// ParseRemoval validates the body of a delete request.
func ParseRemoval(body []byte) (Removal, error) {
	obj, err := decodeObject(body)
	if err != nil {
		return Removal{}, err
	}
	id, err := stringField(obj, IDKey, true)
	if err != nil {
		return Removal{}, err
	}
	board, err := stringField(obj, BoardKey, true)
	if err != nil {
		return Removal{}, err
	}
	if err := ValidateBoard(board); err != nil {
		return Removal{}, err
	}
	return Removal{ID: id, Board: board}, nil
}

func decodeObject(body []byte) (map[string]json.RawMessage, error) {
	if !gjson.ValidBytes(body) {
		return nil, invalid("", "request body must be valid json")
	}
	if !gjson.ParseBytes(body).IsObject() {
		return nil, invalid("", "request body must be a json object")
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, invalid("", "request body must be a json object")
	}
	return obj, nil
}

func stringField(obj map[string]json.RawMessage, key string, required bool) (string, error) {
	raw, ok := obj[key]
	if !ok {
		if required {
			return "", invalid(key, "is required")
		}
		return "", nil
	}
	v := gjson.ParseBytes(raw)
	if v.Type != gjson.String {
		return "", invalid(key, "must be a string")
	}
	if required && v.Str == "" {
		return "", invalid(key, "is required")
	}
	return v.Str, nil
}

func validateKeys(content map[string]json.RawMessage) error {
	if len(content) > MaxFields {
		return invalid("", "at most %d fields are allowed", MaxFields)
	}
	keys := lo.Keys(content)
	sort.Strings(keys)
	for _, k := range keys {
		if !fieldKeyPattern.MatchString(k) {
			return invalid(k, "field names must start with a letter and contain only letters, digits and underscores")
		}
	}
	return nil
}
