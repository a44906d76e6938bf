package table

import (
	"net/url"
	"regexp"
)

var urlParamPattern = regexp.MustCompile(`:(\w+)`)

// ResolveURL substitutes :name placeholders with values from params.
// Placeholders without a non-empty value are left verbatim.
func ResolveURL(raw string, params map[string]string) string {
	return urlParamPattern.ReplaceAllStringFunc(raw, func(m string) string {
		if v := params[m[1:]]; v != "" {
			return url.PathEscape(v)
		}
		return m
	})
}
