package format

import "strings"

// layoutTokens maps display-pattern tokens to Go reference-time layout
// fragments. Longer tokens come first so "YYYY" wins over "YY".
var layoutTokens = []struct {
	token  string
	layout string
}{
	{"YYYY", "2006"},
	{"YY", "06"},
	{"MMMM", "January"},
	{"MMM", "Jan"},
	{"MM", "01"},
	{"M", "1"},
	{"dddd", "Monday"},
	{"ddd", "Mon"},
	{"DD", "02"},
	{"D", "2"},
	{"HH", "15"},
	{"H", "15"}, // Go has no unpadded 24-hour form
	{"hh", "03"},
	{"h", "3"},
	{"mm", "04"},
	{"m", "4"},
	{"ss", "05"},
	{"s", "5"},
	{"SSS", "000"},
	{"A", "PM"},
	{"a", "pm"},
	{"ZZ", "-0700"},
	{"Z", "-07:00"},
}

// Layout translates a display pattern such as "YYYY-MM-DD hh:mm A" into a Go
// time layout ("2006-01-02 03:04 PM"). Text inside square brackets is copied
// verbatim. Characters that are not tokens pass through unchanged.
func Layout(pattern string) string {
	var b strings.Builder
	b.Grow(len(pattern) + 8)

	for i := 0; i < len(pattern); {
		if pattern[i] == '[' {
			if j := strings.IndexByte(pattern[i:], ']'); j > 0 {
				b.WriteString(pattern[i+1 : i+j])
				i += j + 1
				continue
			}
		}

		matched := false
		for _, t := range layoutTokens {
			if strings.HasPrefix(pattern[i:], t.token) {
				b.WriteString(t.layout)
				i += len(t.token)
				matched = true
				break
			}
		}
		if !matched {
			b.WriteByte(pattern[i])
			i++
		}
	}

	return b.String()
}
