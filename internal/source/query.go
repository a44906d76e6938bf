package source

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/JonMunkholm/tablekit/internal/filter"
)

// ErrBadQuery marks a request the record API cannot interpret.
var ErrBadQuery = errors.New("bad query")

// DefaultLimit and MaxLimit bound the page size a client may ask for.
const (
	DefaultLimit = 10
	MaxLimit     = 500
)

// Query is one page request in either wire encoding.
type Query struct {
	Cursor  string         `json:"cursor"`
	Limit   int            `json:"limit"`
	Filters filter.Filters `json:"filters"`
}

// ParseQuery reads a GET-style query string: cursor, limit and any number of
// flattened "<column>.<operator>" filter keys. The operator is the part after
// the last dot, so dotted column names survive. "in" values are split on commas.
func ParseQuery(values url.Values) (Query, error) {
	q := Query{Cursor: values.Get(filter.KeyCursor), Filters: filter.Filters{}}

	limit, err := parseLimit(values.Get(filter.KeyLimit))
	if err != nil {
		return Query{}, err
	}
	q.Limit = limit

	for key, vals := range values {
		if key == filter.KeyCursor || key == filter.KeyLimit || len(vals) == 0 {
			continue
		}
		dot := strings.LastIndexByte(key, '.')
		if dot <= 0 || dot == len(key)-1 {
			return Query{}, fmt.Errorf("%w: parameter %q is not <column>.<operator>", ErrBadQuery, key)
		}
		col, op := key[:dot], key[dot+1:]

		var v any = vals[0]
		if filter.Operator(op) == filter.OpIn {
			parts := strings.Split(vals[0], ",")
			list := make([]any, len(parts))
			for i, p := range parts {
				list[i] = strings.TrimSpace(p)
			}
			v = list
		}
		if q.Filters[col] == nil {
			q.Filters[col] = make(map[string]any)
		}
		q.Filters[col][op] = v
	}
	return q, nil
}

// DecodeBody reads a structured request body {cursor, limit, filters}.
// An empty body is a first-page request with no filters.
func DecodeBody(r io.Reader) (Query, error) {
	raw, err := io.ReadAll(io.LimitReader(r, 1<<20))
	if err != nil {
		return Query{}, fmt.Errorf("read body: %w", err)
	}

	var body struct {
		Cursor  *string        `json:"cursor"`
		Limit   json.Number    `json:"limit"`
		Filters filter.Filters `json:"filters"`
	}
	if len(bytes.TrimSpace(raw)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&body); err != nil {
			return Query{}, fmt.Errorf("%w: %v", ErrBadQuery, err)
		}
	}

	q := Query{Filters: body.Filters}
	if body.Cursor != nil {
		q.Cursor = *body.Cursor
	}
	if q.Filters == nil {
		q.Filters = filter.Filters{}
	}
	if q.Limit, err = parseLimit(body.Limit.String()); err != nil {
		return Query{}, err
	}
	return q, nil
}

func parseLimit(s string) (int, error) {
	if s == "" {
		return DefaultLimit, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: limit %q must be a positive integer", ErrBadQuery, s)
	}
	if n > MaxLimit {
		n = MaxLimit
	}
	return n, nil
}
