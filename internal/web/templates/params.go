package templates

import (
	"context"
	"encoding/json"

	"github.com/a-h/templ"
)

// TableViewParams is the data behind one table fragment.
type TableViewParams struct {
	// Base prefixes every URL the fragment posts back to.
	Base       string
	Loading    bool
	Headers    []HeaderCell
	Rows       []Row
	Filters    templ.Component
	Pagination templ.Component
}

// HeaderCell is one column heading.
type HeaderCell struct {
	DataIndex string
	Title     string
}

// Row is one rendered record. ID is the record's identity tag.
type Row struct {
	ID    string
	Cells []templ.Component
}

// PaginationParams drives the previous/next controls.
type PaginationParams struct {
	Base        string
	Page        int
	HasPrevious bool
	HasNext     bool
}

// FilterChip is one applied filter, removable by column.
type FilterChip struct {
	Column string
	Label  string
}

// ActionButton is one row action offered in the action column.
type ActionButton struct {
	Name  string
	Label string
}

// TableLink is an entry on the index page.
type TableLink struct {
	Name  string
	Title string
}

// FilterForm is the operator/value form for one filterable column.
type FilterForm struct {
	Column    string
	Title     string
	InputType string
	Operators []string
}

// TablePageParams is the data behind a full table page.
type TablePageParams struct {
	Title     string
	SectionID string
	Base      string
	Notices   []string
	Forms     []FilterForm
	View      templ.Component
}

type baseKey struct{}

// WithBase stores the URL prefix that cells rendered under ctx post back to.
func WithBase(ctx context.Context, base string) context.Context {
	return context.WithValue(ctx, baseKey{}, base)
}

// BaseURL returns the prefix stored by WithBase.
func BaseURL(ctx context.Context) string {
	s, _ := ctx.Value(baseKey{}).(string)
	return s
}

// ActionValues is the hx-vals payload identifying the record an action runs on.
func ActionValues(id string) string {
	b, _ := json.Marshal(map[string]string{"id": id})
	return string(b)
}
