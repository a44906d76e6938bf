// Package identity derives a stable per-record identifier from the table's
// identifier columns. Row actions use the identifier to address a record
// without relying on its position in the current page.
package identity

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Key is the reserved record field holding the serialized identity. It cannot
// collide with a configured data index; schema validation rejects it.
const Key = "__recordIdentifierKey__"

// Pair is one identifier column and its value.
type Pair struct {
	Column string
	Value  any
}

// Build serializes the identifier values of rec as
// [{"col1":v1},{"col2":v2},...] in column order. Missing fields encode as null.
func Build(columns []string, rec map[string]any) (string, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, col := range columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(col)
		if err != nil {
			return "", fmt.Errorf("identity column %q: %w", col, err)
		}
		v, err := json.Marshal(rec[col])
		if err != nil {
			return "", fmt.Errorf("identity value for %q: %w", col, err)
		}
		buf.WriteByte('{')
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return buf.String(), nil
}

// Parse reverses Build. Numbers decode as json.Number so identifiers round-trip
// without float rounding.
func Parse(tag string) ([]Pair, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(tag)))
	dec.UseNumber()

	var raw []map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse identity: %w", err)
	}

	pairs := make([]Pair, 0, len(raw))
	for i, m := range raw {
		if len(m) != 1 {
			return nil, fmt.Errorf("parse identity: element %d has %d keys, want 1", i, len(m))
		}
		for col, v := range m {
			pairs = append(pairs, Pair{Column: col, Value: v})
		}
	}
	if len(pairs) == 0 {
		return nil, errors.New("parse identity: no identifier columns")
	}
	return pairs, nil
}
