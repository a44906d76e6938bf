package table

import (
	"github.com/a-h/templ"

	"github.com/JonMunkholm/tablekit/internal/filter"
	"github.com/JonMunkholm/tablekit/internal/web/templates"
)

func textCell(s string) templ.Component {
	return templates.TextCell(s)
}

// colorCell renders a swatch followed by the raw value.
func colorCell(value any, _ Record) templ.Component {
	return templates.ColorCell(filter.Stringify(value))
}

func actionCell(actions []BoundAction, tag string) templ.Component {
	buttons := make([]templates.ActionButton, len(actions))
	for i, a := range actions {
		buttons[i] = templates.ActionButton{Name: a.Name, Label: a.Label}
	}
	return templates.ActionCell(tag, buttons)
}

// paginationNav disables both directions while a fetch is in flight.
func paginationNav(base string, page int, hasPrev, hasNext, loading bool) templ.Component {
	if page < 1 {
		page = 1
	}
	return templates.Pagination(templates.PaginationParams{
		Base:        base,
		Page:        page,
		HasPrevious: hasPrev && !loading,
		HasNext:     hasNext && !loading,
	})
}

func appliedFilterChips(base string, applied []filter.Applied) templ.Component {
	chips := make([]templates.FilterChip, len(applied))
	for i, a := range applied {
		chips[i] = templates.FilterChip{Column: a.Column, Label: a.String()}
	}
	return templates.FilterChips(base, chips)
}
