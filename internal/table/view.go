package table

import (
	"github.com/a-h/templ"

	"github.com/JonMunkholm/tablekit/internal/filter"
	"github.com/JonMunkholm/tablekit/internal/identity"
	"github.com/JonMunkholm/tablekit/internal/web/templates"
)

// View is what a table renderer consumes.
type View struct {
	RecordIdentifierKey   string
	Columns               []Column
	ListRecords           []Record
	IsLoading             bool
	Pagination            templ.Component
	DisplayAppliedFilters templ.Component
}

// View snapshots the engine for rendering. Fragments post back under base.
func (e *Engine) View(base string) View {
	s := e.State()
	return View{
		RecordIdentifierKey:   identity.Key,
		Columns:               e.columns,
		ListRecords:           s.Records,
		IsLoading:             s.Loading,
		Pagination:            paginationNav(base, s.CurrentPage, s.CurrentPage > 1, !s.IsLastPage, s.Loading),
		DisplayAppliedFilters: appliedFilterChips(base, filter.Describe(s.Filters, e.columnTitle, e.Filters.renderValue)),
	}
}

// Component renders the view as a complete table fragment. Row actions and
// fragments post back under base.
func (v View) Component(base string) templ.Component {
	headers := make([]templates.HeaderCell, len(v.Columns))
	for i, c := range v.Columns {
		headers[i] = templates.HeaderCell{DataIndex: c.DataIndex, Title: c.DisplayTitle()}
	}

	rows := make([]templates.Row, len(v.ListRecords))
	for i, rec := range v.ListRecords {
		tag, _ := rec[v.RecordIdentifierKey].(string)
		cells := make([]templ.Component, len(v.Columns))
		for j, c := range v.Columns {
			cells[j] = c.Cell(rec)
		}
		rows[i] = templates.Row{ID: tag, Cells: cells}
	}

	return templates.TableView(templates.TableViewParams{
		Base:       base,
		Loading:    v.IsLoading,
		Headers:    headers,
		Rows:       rows,
		Filters:    v.DisplayAppliedFilters,
		Pagination: v.Pagination,
	})
}
