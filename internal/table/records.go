package table

import (
	"encoding/json"
	"fmt"

	"github.com/JonMunkholm/tablekit/internal/format"
	"github.com/JonMunkholm/tablekit/internal/identity"
	"github.com/JonMunkholm/tablekit/internal/schema"
)

// transformRecords builds display records from a raw record array. Each
// output record is a new map: format-needing columns hold display strings and
// identity.Key holds the serialized identifier. The identifier is built from
// the values the API returned, before formatting, so two rows that display
// alike still get distinct tags. The input is not modified.
func transformRecords(list []any, formatCols []schema.PropertyDescriptor, idCols []string, f *format.Formatter) ([]Record, error) {
	out := make([]Record, 0, len(list))
	for i, item := range list {
		raw, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("record %d is %T, want object", i, item)
		}

		rec := make(Record, len(raw)+1)
		for k, v := range raw {
			rec[k] = v
		}

		tag, err := identity.Build(idCols, rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}

		for _, p := range formatCols {
			if s, ok := f.Format(rec[p.DataIndex], p.FieldType); ok {
				rec[p.DataIndex] = s
			}
		}
		rec[identity.Key] = tag

		out = append(out, rec)
	}
	return out, nil
}

// responseRecords extracts the record array stored under key.
func responseRecords(data map[string]any, key string) ([]any, error) {
	v, ok := data[key]
	if !ok {
		return nil, fmt.Errorf("response has no %q field", key)
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("response field %q is %T, want array", key, v)
	}
	return list, nil
}

// responseCursor extracts the next-page cursor. A missing or null cursor
// means there are no further pages.
func responseCursor(data map[string]any) *string {
	switch c := data["cursor"].(type) {
	case nil:
		return nil
	case string:
		return &c
	case json.Number:
		s := c.String()
		return &s
	default:
		s := fmt.Sprint(c)
		return &s
	}
}
