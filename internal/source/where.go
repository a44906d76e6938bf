package source

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/tablekit/internal/filter"
	"github.com/JonMunkholm/tablekit/internal/format"
	"github.com/JonMunkholm/tablekit/internal/schema"
)

// numericPattern matches a plain decimal after currency cleanup.
var numericPattern = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// whereBuilder accumulates parameterised conditions for one query.
type whereBuilder struct {
	props map[string]schema.PropertyDescriptor
	f     *format.Formatter

	conds []string
	args  []any
}

func newWhereBuilder(cfg schema.TableConfig, f *format.Formatter) *whereBuilder {
	props := make(map[string]schema.PropertyDescriptor, len(cfg.Properties))
	for _, p := range cfg.Properties {
		props[p.DataIndex] = p
	}
	return &whereBuilder{props: props, f: f}
}

// addFilters adds every filter in column then operator order so the
// generated SQL is stable.
func (b *whereBuilder) addFilters(fs filter.Filters) error {
	for _, col := range fs.Columns() {
		ops := make([]string, 0, len(fs[col]))
		for op := range fs[col] {
			ops = append(ops, op)
		}
		sort.Strings(ops)

		for _, op := range ops {
			if err := b.add(col, filter.Operator(op), fs[col][op]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *whereBuilder) add(column string, op filter.Operator, value any) error {
	p, ok := b.props[column]
	if !ok {
		return fmt.Errorf("%w: unknown column %q", ErrBadQuery, column)
	}
	if !allowed(p, op) {
		return fmt.Errorf("%w: operator %q not allowed on %q", ErrBadQuery, op, column)
	}
	col := quoteIdentifier(p.DataIndex)

	switch op {
	case filter.OpIn:
		list := splitList(value)
		if len(list) == 0 {
			return fmt.Errorf("%w: %s.in needs at least one value", ErrBadQuery, column)
		}
		placeholders := make([]string, len(list))
		for i, item := range list {
			v, err := b.convert(p, item)
			if err != nil {
				return err
			}
			placeholders[i] = b.bind(v)
		}
		b.conds = append(b.conds, fmt.Sprintf("%s IN (%s)", col, strings.Join(placeholders, ", ")))
		return nil

	case filter.OpContains, filter.OpStartsWith, filter.OpEndsWith:
		pattern := escapeLike(filter.Stringify(value))
		switch op {
		case filter.OpContains:
			pattern = "%" + pattern + "%"
		case filter.OpStartsWith:
			pattern = pattern + "%"
		default:
			pattern = "%" + pattern
		}
		b.conds = append(b.conds, fmt.Sprintf("%s::text ILIKE %s", col, b.bind(pattern)))
		return nil
	}

	v, err := b.convert(p, value)
	if err != nil {
		return err
	}

	var sqlOp string
	switch op {
	case filter.OpEquals:
		sqlOp = "="
	case filter.OpNotEquals:
		sqlOp = "<>"
	case filter.OpGreater:
		sqlOp = ">"
	case filter.OpGreaterEq:
		sqlOp = ">="
	case filter.OpLess:
		sqlOp = "<"
	case filter.OpLessEq:
		sqlOp = "<="
	default:
		return fmt.Errorf("%w: unknown operator %q", ErrBadQuery, op)
	}
	b.conds = append(b.conds, fmt.Sprintf("%s %s %s", col, sqlOp, b.bind(v)))
	return nil
}

func (b *whereBuilder) bind(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

// build returns " WHERE ..." (or "") and the bound arguments.
func (b *whereBuilder) build() (string, []any) {
	if len(b.conds) == 0 {
		return "", b.args
	}
	return " WHERE " + strings.Join(b.conds, " AND "), b.args
}

// nextArg is the placeholder index for the next argument appended after build.
func (b *whereBuilder) nextArg() int {
	return len(b.args) + 1
}

// convert turns a wire value into a typed query argument for p's column.
func (b *whereBuilder) convert(p schema.PropertyDescriptor, value any) (any, error) {
	ft := p.FieldType.Normalize()
	switch {
	case ft.IsTemporal():
		t, err := b.toTime(value, ft)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrBadQuery, p.DataIndex, err)
		}
		switch ft {
		case schema.FieldDate:
			return pgtype.Date{Time: t, Valid: true}, nil
		case schema.FieldTime:
			clock := time.Duration(t.Hour())*time.Hour +
				time.Duration(t.Minute())*time.Minute +
				time.Duration(t.Second())*time.Second
			return pgtype.Time{Microseconds: clock.Microseconds(), Valid: true}, nil
		}
		return pgtype.Timestamptz{Time: t, Valid: true}, nil

	case ft.IsBoolean():
		if v, ok := value.(bool); ok {
			return pgtype.Bool{Bool: v, Valid: true}, nil
		}
		v, err := b.f.ParseBoolean(filter.Stringify(value))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrBadQuery, p.DataIndex, err)
		}
		return pgtype.Bool{Bool: v, Valid: true}, nil

	case ft == schema.FieldNumber:
		n, ok := toNumeric(filter.Stringify(value))
		if !ok {
			return nil, fmt.Errorf("%w: %s: %q is not a number", ErrBadQuery, p.DataIndex, filter.Stringify(value))
		}
		return n, nil
	}

	return filter.Stringify(value), nil
}

// toTime accepts epoch milliseconds, the display pattern or ISO input.
func (b *whereBuilder) toTime(value any, kind schema.FieldType) (time.Time, error) {
	s := strings.TrimSpace(filter.Stringify(value))
	if n, ok := toNumeric(s); ok && !strings.ContainsAny(s, ".eE") {
		ms, err := n.Int64Value()
		if err == nil && ms.Valid {
			return time.UnixMilli(ms.Int64).UTC(), nil
		}
	}
	return b.f.ParseDate(s, kind)
}

// toNumeric parses s, tolerating currency symbols, thousands separators and
// accounting-style negatives such as "(1,200.50)".
func toNumeric(s string) (pgtype.Numeric, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Numeric{}, false
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	s = strings.NewReplacer("$", "", "€", "", "£", "", ",", "").Replace(s)
	s = strings.TrimSpace(s)
	if negative {
		s = "-" + s
	}

	if !numericPattern.MatchString(s) {
		return pgtype.Numeric{}, false
	}
	var n pgtype.Numeric
	if err := n.Scan(s); err != nil {
		return pgtype.Numeric{}, false
	}
	return n, true
}

func allowed(p schema.PropertyDescriptor, op filter.Operator) bool {
	if !op.Valid() {
		return false
	}
	if len(p.FilterOperators) == 0 {
		return true
	}
	for _, o := range p.FilterOperators {
		if o == string(op) {
			return true
		}
	}
	return false
}

// splitList accepts either a decoded JSON array or a comma-joined string.
func splitList(v any) []any {
	switch list := v.(type) {
	case []any:
		return list
	case []string:
		out := make([]any, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out
	case string:
		if strings.TrimSpace(list) == "" {
			return nil
		}
		parts := strings.Split(list, ",")
		out := make([]any, len(parts))
		for i, s := range parts {
			out[i] = strings.TrimSpace(s)
		}
		return out
	case nil:
		return nil
	}
	return []any{v}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// quoteRelation quotes a possibly schema-qualified relation name.
func quoteRelation(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = quoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}
