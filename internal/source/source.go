// Package source serves table records from PostgreSQL using the same wire
// contract the table engine expects from any record API: a page of records
// under the table's response key plus an opaque cursor for the next page,
// or null on the last page.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/tablekit/internal/format"
	"github.com/JonMunkholm/tablekit/internal/schema"
)

// ErrNoSource is returned for tables without a source mapping.
var ErrNoSource = errors.New("table has no record source")

// Querier is the subset of *pgxpool.Pool the source needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Page is one page of records.
type Page struct {
	Records []map[string]any
	Cursor  *string
}

// Body renders the page as a record API response for cfg.
func (p Page) Body(cfg schema.TableConfig) map[string]any {
	key := cfg.Api.ResponseKey
	if key == "" {
		key = "records"
	}
	records := p.Records
	if records == nil {
		records = []map[string]any{}
	}

	body := map[string]any{key: records, "cursor": nil}
	if p.Cursor != nil {
		body["cursor"] = *p.Cursor
	}
	return body
}

// Source runs record queries.
type Source struct {
	db        Querier
	formatter *format.Formatter
	limiter   *Limiter
	logger    *slog.Logger
}

// New returns a source over db. Filter values are parsed with f so users can
// filter with the same date and boolean text the table displays.
func New(db Querier, f *format.Formatter, limiter *Limiter, logger *slog.Logger) *Source {
	if f == nil {
		f = format.Default()
	}
	if limiter == nil {
		limiter = NewLimiter(0, 0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{db: db, formatter: f, limiter: limiter, logger: logger}
}

// Limiter returns the query limiter, for draining on shutdown.
func (s *Source) Limiter() *Limiter {
	return s.limiter
}

// Fetch returns the page of cfg's relation described by q.
func (s *Source) Fetch(ctx context.Context, cfg schema.TableConfig, q Query) (Page, error) {
	if cfg.Source == nil {
		return Page{}, fmt.Errorf("%w: %s", ErrNoSource, cfg.Name)
	}

	offset, err := DecodeCursor(q.Cursor)
	if err != nil {
		return Page{}, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	sql, args, err := s.buildSelect(cfg, q, offset, limit)
	if err != nil {
		return Page{}, err
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return Page{}, err
	}
	defer s.limiter.Release()

	start := time.Now()
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return Page{}, fmt.Errorf("query %s: %w", cfg.Name, err)
	}
	defer rows.Close()

	cols := columnNames(cfg)
	var records []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return Page{}, fmt.Errorf("read row values: %w", err)
		}
		rec := make(map[string]any, len(cols))
		for i, col := range cols {
			if i < len(values) {
				rec[col] = normalizeColumn(values[i], cfg.Properties[i].FieldType)
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return Page{}, fmt.Errorf("rows error: %w", err)
	}

	page := Page{Records: records}
	if len(records) > limit {
		page.Records = records[:limit]
		next := EncodeCursor(offset + limit)
		page.Cursor = &next
	}

	s.logger.Debug("records fetched",
		"table", cfg.Name,
		"offset", offset,
		"rows", len(page.Records),
		"more", page.Cursor != nil,
		"duration", time.Since(start),
	)
	return page, nil
}

// buildSelect returns the page query. It fetches one row past limit to learn
// whether another page exists.
func (s *Source) buildSelect(cfg schema.TableConfig, q Query, offset, limit int) (string, []any, error) {
	cols := columnNames(cfg)
	if len(cols) == 0 {
		return "", nil, fmt.Errorf("table %s has no columns", cfg.Name)
	}

	wb := newWhereBuilder(cfg, s.formatter)
	if err := wb.addFilters(q.Filters); err != nil {
		return "", nil, err
	}
	where, args := wb.build()

	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdentifier(c)
	}

	argIdx := wb.nextArg()
	sql := fmt.Sprintf(
		"SELECT %s FROM %s%s ORDER BY %s LIMIT $%d OFFSET $%d",
		strings.Join(quoted, ", "),
		quoteRelation(relation(cfg)),
		where,
		orderBy(cfg),
		argIdx,
		argIdx+1,
	)
	return sql, append(args, limit+1, offset), nil
}

func columnNames(cfg schema.TableConfig) []string {
	cols := make([]string, len(cfg.Properties))
	for i, p := range cfg.Properties {
		cols[i] = p.DataIndex
	}
	return cols
}

func relation(cfg schema.TableConfig) string {
	if cfg.Source != nil && cfg.Source.Relation != "" {
		return cfg.Source.Relation
	}
	return cfg.Name
}

// orderBy sorts by the configured column, else the identifier columns, else
// the first column. Paging by offset needs a total order to be stable.
func orderBy(cfg schema.TableConfig) string {
	if cfg.Source != nil && cfg.Source.OrderBy != "" {
		return quoteIdentifier(cfg.Source.OrderBy)
	}
	var parts []string
	for _, p := range cfg.IdentifierColumns() {
		parts = append(parts, quoteIdentifier(p.DataIndex))
	}
	if len(parts) == 0 && len(cfg.Properties) > 0 {
		parts = append(parts, quoteIdentifier(cfg.Properties[0].DataIndex))
	}
	return strings.Join(parts, ", ")
}

// normalizeColumn is normalizeValue with calendar dates kept as dates. pgx
// reads DATE as midnight UTC, which would land on the previous day once
// rendered west of UTC.
func normalizeColumn(v any, ft schema.FieldType) any {
	if t, ok := v.(time.Time); ok && ft.Normalize() == schema.FieldDate {
		return t.UTC().Format(time.DateOnly)
	}
	return normalizeValue(v)
}

// normalizeValue converts driver values into JSON-friendly values the table
// engine can format: instants become epoch milliseconds and exact numerics
// keep their digits.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case time.Time:
		return x.UnixMilli()
	case pgtype.Numeric:
		if !x.Valid || x.NaN || x.InfinityModifier != pgtype.Finite {
			return nil
		}
		dv, err := x.Value()
		if err != nil {
			return nil
		}
		if s, ok := dv.(string); ok {
			return json.Number(s)
		}
		return dv
	case pgtype.Time:
		if !x.Valid {
			return nil
		}
		d := time.Duration(x.Microseconds) * time.Microsecond
		return time.Time{}.Add(d).Format("15:04:05")
	case [16]byte:
		return uuid.UUID(x).String()
	case []byte:
		return string(x)
	}
	return v
}
