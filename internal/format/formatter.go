// Package format turns raw record values into display strings.
//
// Dates arrive either as epoch milliseconds (numbers or numeric strings) or as
// ISO-ish strings; booleans arrive as anything JSON can carry. A Formatter is
// built once from display patterns and is safe for concurrent use.
package format

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/tablekit/internal/schema"
)

// Default display patterns.
const (
	DefaultDatePattern     = "YYYY-MM-DD"
	DefaultTimePattern     = "hh:mm A"
	DefaultDatetimePattern = "YYYY-MM-DD hh:mm A"
	DefaultTrueLabel       = "YES"
	DefaultFalseLabel      = "NO"
)

// Config holds display patterns. Zero values fall back to the defaults.
type Config struct {
	Date     string
	Time     string
	Datetime string
	True     string
	False    string
	Location *time.Location // UTC when nil
}

// Formatter formats and parses display values.
type Formatter struct {
	layouts    map[schema.FieldType]string
	trueLabel  string
	falseLabel string
	loc        *time.Location
}

// isoLayouts are tried in order when a date value is a non-numeric string.
var isoLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

var clockLayouts = []string{
	"15:04:05",
	"15:04",
	"03:04 PM",
}

// New builds a Formatter from cfg.
func New(cfg Config) *Formatter {
	f := &Formatter{
		layouts: map[schema.FieldType]string{
			schema.FieldDate:     Layout(orDefault(cfg.Date, DefaultDatePattern)),
			schema.FieldTime:     Layout(orDefault(cfg.Time, DefaultTimePattern)),
			schema.FieldDatetime: Layout(orDefault(cfg.Datetime, DefaultDatetimePattern)),
		},
		trueLabel:  orDefault(cfg.True, DefaultTrueLabel),
		falseLabel: orDefault(cfg.False, DefaultFalseLabel),
		loc:        cfg.Location,
	}
	if f.loc == nil {
		f.loc = time.UTC
	}
	return f
}

// Default returns a Formatter with the default patterns in UTC.
func Default() *Formatter {
	return New(Config{})
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// NeedsFormatting reports whether values of this field type are rewritten
// for display.
func NeedsFormatting(ft schema.FieldType) bool {
	return ft.IsTemporal() || ft.IsBoolean()
}

// IsEmpty reports whether a raw value formats to the empty string for every kind.
func IsEmpty(raw any) bool {
	switch v := raw.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case json.Number:
		return v == ""
	}
	return false
}

// Format formats raw according to ft. The second result is false when ft
// does not need formatting and raw should be left as is.
func (f *Formatter) Format(raw any, ft schema.FieldType) (string, bool) {
	if !NeedsFormatting(ft) {
		return "", false
	}
	if IsEmpty(raw) {
		return "", true
	}
	if ft.IsTemporal() {
		return f.FormatDate(raw, ft), true
	}
	return f.FormatBoolean(raw), true
}

// Layout returns the Go layout used for a temporal kind.
func (f *Formatter) Layout(kind schema.FieldType) string {
	if l, ok := f.layouts[kind.Normalize()]; ok {
		return l
	}
	return f.layouts[schema.FieldDate]
}

// FormatDate renders raw as a date, time or datetime. Numeric input is epoch
// milliseconds. Input that cannot be read as an instant is returned verbatim.
func (f *Formatter) FormatDate(raw any, kind schema.FieldType) string {
	if IsEmpty(raw) {
		return ""
	}
	t, ok := f.toTime(raw, kind)
	if !ok {
		return fmt.Sprint(raw)
	}
	return t.In(f.loc).Format(f.Layout(kind))
}

// FormatBoolean renders raw as the configured true/false label.
func (f *Formatter) FormatBoolean(raw any) string {
	if IsEmpty(raw) {
		return ""
	}
	if truthy(raw) {
		return f.trueLabel
	}
	return f.falseLabel
}

// ParseDate is the inverse of FormatDate for user-entered filter values.
// It accepts the display pattern first and ISO-ish input second.
func (f *Formatter) ParseDate(display string, kind schema.FieldType) (time.Time, error) {
	display = strings.TrimSpace(display)
	if t, err := time.ParseInLocation(f.Layout(kind), display, f.loc); err == nil {
		return t, nil
	}
	if t, ok := f.parseISO(display, kind); ok {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("parse %s %q: unrecognised format", kind.Normalize(), display)
}

// ParseBoolean is the inverse of FormatBoolean. Configured labels match
// case-insensitively; common true/false spellings are accepted too.
func (f *Formatter) ParseBoolean(display string) (bool, error) {
	s := strings.TrimSpace(display)
	switch {
	case strings.EqualFold(s, f.trueLabel):
		return true, nil
	case strings.EqualFold(s, f.falseLabel):
		return false, nil
	}

	switch strings.ToLower(s) {
	case "true", "t", "yes", "y", "1", "on":
		return true, nil
	case "false", "f", "no", "n", "0", "off":
		return false, nil
	}
	return false, fmt.Errorf("parse boolean %q: expected %s or %s", display, f.trueLabel, f.falseLabel)
}

func (f *Formatter) toTime(raw any, kind schema.FieldType) (time.Time, bool) {
	switch v := raw.(type) {
	case time.Time:
		return v, !v.IsZero()
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return *v, true
	case json.Number:
		if ms, err := v.Int64(); err == nil {
			return time.UnixMilli(ms), true
		}
		if fl, err := v.Float64(); err == nil {
			return time.UnixMilli(int64(fl)), true
		}
		return time.Time{}, false
	case float64:
		return time.UnixMilli(int64(v)), true
	case float32:
		return time.UnixMilli(int64(v)), true
	case int:
		return time.UnixMilli(int64(v)), true
	case int32:
		return time.UnixMilli(int64(v)), true
	case int64:
		return time.UnixMilli(v), true
	case string:
		return f.stringToTime(v, kind)
	default:
		return f.stringToTime(fmt.Sprint(v), kind)
	}
}

func (f *Formatter) stringToTime(s string, kind schema.FieldType) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if isNumeric(s) {
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		return time.UnixMilli(ms), true
	}
	return f.parseISO(s, kind)
}

func (f *Formatter) parseISO(s string, kind schema.FieldType) (time.Time, bool) {
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, s, f.loc); err == nil {
			return t, true
		}
	}
	if kind.Normalize() == schema.FieldTime {
		for _, layout := range clockLayouts {
			if t, err := time.ParseInLocation(layout, s, f.loc); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// isNumeric reports whether s is an optionally signed run of digits.
func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	if s[0] == '-' || s[0] == '+' {
		s = s[1:]
	}
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func truthy(raw any) bool {
	switch v := raw.(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "false", "0", "no", "n", "f", "off":
			return false
		}
		return true
	case json.Number:
		fl, err := v.Float64()
		return err != nil || fl != 0
	case float64:
		return v != 0
	case float32:
		return v != 0
	case int:
		return v != 0
	case int32:
		return v != 0
	case int64:
		return v != 0
	}
	return true
}
