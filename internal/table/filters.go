package table

import (
	"context"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/tablekit/internal/filter"
)

// FilterController owns the applied filters.
type FilterController struct {
	e *Engine
}

// Apply replaces the applied filters and refetches page 1. The refetch is
// skipped before the initial load has been triggered, and when f is empty
// unless the engine was built with RefetchOnClear.
func (c *FilterController) Apply(ctx context.Context, f filter.Filters) {
	if f == nil {
		f = filter.Filters{}
	}
	c.e.dispatch(FiltersApplied{Filters: f})

	if !c.e.Mounted() || c.e.cfg.Api.URL == "" {
		return
	}
	if len(f) == 0 && !c.e.refetchOnClear {
		return
	}
	c.e.Fetch(ctx, 1, "")
}

// Set applies a single column/operator filter on top of the current ones.
func (c *FilterController) Set(ctx context.Context, column, op string, value any) {
	c.Apply(ctx, c.e.State().Filters.Set(column, op, value))
}

// Remove drops every filter on column.
func (c *FilterController) Remove(ctx context.Context, column string) {
	c.Apply(ctx, c.e.State().Filters.Remove(column))
}

// Clear drops all filters.
func (c *FilterController) Clear(ctx context.Context) {
	c.Apply(ctx, filter.Filters{})
}

// Current returns a copy of the applied filters.
func (c *FilterController) Current() filter.Filters {
	return c.e.State().Filters.Clone()
}

// Applied lists the applied filters with column titles. Values on date and
// boolean columns are shown the way the table shows them.
func (c *FilterController) Applied() []filter.Applied {
	return filter.Describe(c.e.State().Filters, c.e.columnTitle, c.renderValue)
}

func (c *FilterController) renderValue(column string, value any) string {
	p, ok := c.e.cfg.Property(column)
	if !ok {
		return filter.DefaultValue(column, value)
	}
	return filter.JoinDisplay(value, func(v any) string {
		if s, ok := c.e.formatter.Format(v, p.FieldType); ok {
			return s
		}
		return filter.Stringify(v)
	})
}

// Component renders the applied filters as removable chips.
func (c *FilterController) Component(base string) templ.Component {
	return appliedFilterChips(base, c.Applied())
}
