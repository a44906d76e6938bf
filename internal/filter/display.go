package filter

import (
	"sort"
	"strings"
)

// Applied is one active filter in human-readable form.
type Applied struct {
	Column        string
	Title         string
	Operator      string
	OperatorLabel string
	Value         string
}

// String renders "Title op value".
func (a Applied) String() string {
	return a.Title + " " + a.OperatorLabel + " " + a.Value
}

// ValueRenderer renders a filter value for display. column is the filtered key.
type ValueRenderer func(column string, value any) string

// Describe lists the active filters in column then operator order. title maps
// a column key to its display title; an empty result falls back to the key.
// render may be nil, in which case values are stringified and slices are
// joined with ", ".
func Describe(f Filters, title func(string) string, render ValueRenderer) []Applied {
	if render == nil {
		render = DefaultValue
	}

	var out []Applied
	for _, col := range f.Columns() {
		ops := make([]string, 0, len(f[col]))
		for op := range f[col] {
			ops = append(ops, op)
		}
		sort.Strings(ops)

		name := col
		if title != nil {
			if t := title(col); t != "" {
				name = t
			}
		}

		for _, op := range ops {
			out = append(out, Applied{
				Column:        col,
				Title:         name,
				Operator:      op,
				OperatorLabel: Operator(op).Label(),
				Value:         render(col, f[col][op]),
			})
		}
	}
	return out
}

// DefaultValue is the ValueRenderer used when none is supplied.
func DefaultValue(_ string, value any) string {
	return JoinDisplay(value, Stringify)
}

// JoinDisplay applies one to each element of a slice value and joins the
// results with ", ". Scalars are passed to one directly.
func JoinDisplay(value any, one func(any) string) string {
	switch list := value.(type) {
	case []any:
		parts := make([]string, len(list))
		for i, item := range list {
			parts[i] = one(item)
		}
		return strings.Join(parts, ", ")
	case []string:
		parts := make([]string, len(list))
		for i, item := range list {
			parts[i] = one(item)
		}
		return strings.Join(parts, ", ")
	}
	return one(value)
}
