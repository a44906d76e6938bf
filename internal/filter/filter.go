// Package filter holds the applied-filter model and its wire encodings.
//
// Filters map a column key to operator to value, where the value is a
// primitive or a slice of primitives for multi-value operators such as "in".
// Read-style requests (GET) carry filters as flattened "<column>.<operator>"
// query keys; every other method carries them as a nested "filters" object.
package filter

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrKeyCollision is returned when two filters flatten to the same query key.
var ErrKeyCollision = errors.New("filter key collision")

// Operator is a comparison operator understood by the record API.
type Operator string

const (
	OpEquals     Operator = "eq"
	OpNotEquals  Operator = "neq"
	OpContains   Operator = "contains"
	OpStartsWith Operator = "starts"
	OpEndsWith   Operator = "ends"
	OpGreater    Operator = "gt"
	OpGreaterEq  Operator = "gte"
	OpLess       Operator = "lt"
	OpLessEq     Operator = "lte"
	OpIn         Operator = "in"
)

// Label returns a short human-readable form of the operator.
func (op Operator) Label() string {
	switch op {
	case OpEquals:
		return "="
	case OpNotEquals:
		return "!="
	case OpContains:
		return "contains"
	case OpStartsWith:
		return "starts with"
	case OpEndsWith:
		return "ends with"
	case OpGreater:
		return ">"
	case OpGreaterEq:
		return ">="
	case OpLess:
		return "<"
	case OpLessEq:
		return "<="
	case OpIn:
		return "in"
	}
	return string(op)
}

// Valid reports whether op is a known operator.
func (op Operator) Valid() bool {
	switch op {
	case OpEquals, OpNotEquals, OpContains, OpStartsWith, OpEndsWith,
		OpGreater, OpGreaterEq, OpLess, OpLessEq, OpIn:
		return true
	}
	return false
}

// Payload keys that sit beside the encoded filters.
const (
	KeyCursor = "cursor"
	KeyLimit  = "limit"
	KeyNested = "filters"
)

// Filters maps column → operator → value.
type Filters map[string]map[string]any

// Clone returns a copy that shares no maps or slices with f.
func (f Filters) Clone() Filters {
	out := make(Filters, len(f))
	for col, ops := range f {
		cp := make(map[string]any, len(ops))
		for op, v := range ops {
			if list, ok := v.([]any); ok {
				v = append([]any(nil), list...)
			}
			cp[op] = v
		}
		out[col] = cp
	}
	return out
}

// Set returns a copy of f with column/op set to value.
func (f Filters) Set(column, op string, value any) Filters {
	out := f.Clone()
	if out[column] == nil {
		out[column] = make(map[string]any)
	}
	out[column][op] = value
	return out
}

// Remove returns a copy of f without any filter on column.
func (f Filters) Remove(column string) Filters {
	out := f.Clone()
	delete(out, column)
	return out
}

// Columns returns the filtered column keys in sorted order.
func (f Filters) Columns() []string {
	cols := make([]string, 0, len(f))
	for col := range f {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

// Encode translates filters into a request payload fragment for method.
//
// For GET every (column, operator, value) becomes "<column>.<operator>": value,
// with slice values joined by commas. For any other method the result is
// {"filters": f}.
func Encode(f Filters, method string) (map[string]any, error) {
	if method != "" && !strings.EqualFold(method, "GET") {
		return map[string]any{KeyNested: f.Clone()}, nil
	}

	out := make(map[string]any)
	for _, col := range f.Columns() {
		ops := make([]string, 0, len(f[col]))
		for op := range f[col] {
			ops = append(ops, op)
		}
		sort.Strings(ops)

		for _, op := range ops {
			key := col + "." + op
			if _, exists := out[key]; exists {
				return nil, fmt.Errorf("%w: %q", ErrKeyCollision, key)
			}
			out[key] = flattenValue(f[col][op])
		}
	}
	return out, nil
}

// flattenValue joins slice values with commas and passes scalars through.
func flattenValue(v any) any {
	switch list := v.(type) {
	case []any:
		parts := make([]string, len(list))
		for i, item := range list {
			parts[i] = Stringify(item)
		}
		return strings.Join(parts, ",")
	case []string:
		return strings.Join(list, ",")
	case []float64:
		parts := make([]string, len(list))
		for i, item := range list {
			parts[i] = Stringify(item)
		}
		return strings.Join(parts, ",")
	case []int:
		parts := make([]string, len(list))
		for i, item := range list {
			parts[i] = strconv.Itoa(item)
		}
		return strings.Join(parts, ",")
	}
	return v
}

// Stringify renders a primitive filter value the way it appears on the wire.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	}
	return fmt.Sprint(v)
}
