package table

import (
	"context"

	"github.com/a-h/templ"
)

// PaginationController moves between pages using the cursor map.
type PaginationController struct {
	e *Engine
}

// GoTo fetches page. Page 1 always uses the empty cursor; any other page
// needs a cursor returned by an earlier fetch. Returns false when the page
// cannot be reached.
func (p *PaginationController) GoTo(ctx context.Context, page int) bool {
	if page < 1 {
		return false
	}

	cursor := ""
	if page > 1 {
		c, ok := p.e.State().Cursors[page]
		if !ok {
			return false
		}
		cursor = c
	}

	p.e.Fetch(ctx, page, cursor)
	return true
}

// Next fetches the page after the current one.
func (p *PaginationController) Next(ctx context.Context) bool {
	if !p.HasNext() {
		return false
	}
	return p.GoTo(ctx, p.e.State().CurrentPage+1)
}

// Previous fetches the page before the current one.
func (p *PaginationController) Previous(ctx context.Context) bool {
	if !p.HasPrevious() {
		return false
	}
	return p.GoTo(ctx, p.e.State().CurrentPage-1)
}

// HasNext reports whether the server returned a cursor for a further page.
func (p *PaginationController) HasNext() bool {
	return !p.e.State().IsLastPage
}

// HasPrevious reports whether the current page is past the first.
func (p *PaginationController) HasPrevious() bool {
	return p.e.State().CurrentPage > 1
}

// Component renders the pagination fragment. Links post to base/page/{n}.
func (p *PaginationController) Component(base string) templ.Component {
	s := p.e.State()
	return paginationNav(base, s.CurrentPage, s.CurrentPage > 1, !s.IsLastPage, s.Loading)
}
