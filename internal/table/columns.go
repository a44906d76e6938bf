package table

import (
	"context"
	"fmt"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/tablekit/internal/filter"
	"github.com/JonMunkholm/tablekit/internal/identity"
	"github.com/JonMunkholm/tablekit/internal/schema"
)

// ActionsColumnKey is the data index of the injected row-action column.
const ActionsColumnKey = schema.ReservedActionsKey

// RenderFunc renders one cell of a column.
type RenderFunc func(value any, rec Record) templ.Component

// Column is a property descriptor augmented with presentation behavior.
type Column struct {
	schema.PropertyDescriptor

	// Render overrides the default text rendering when set.
	Render RenderFunc

	// Filter is set for filterable columns.
	Filter *ColumnFilter

	// Actions is set only on the injected action column.
	Actions []BoundAction
}

// Cell renders the column's value for rec.
func (c Column) Cell(rec Record) templ.Component {
	v := rec[c.DataIndex]
	if c.Render != nil {
		return c.Render(v, rec)
	}
	return textCell(filter.Stringify(v))
}

// ColumnFilter binds a column's filter input to the filter controller.
type ColumnFilter struct {
	Column    string
	FieldType schema.FieldType
	Operators []string

	fc *FilterController
}

// Apply sets op on the column to value and refetches from page 1.
func (f *ColumnFilter) Apply(ctx context.Context, op string, value any) error {
	if !filter.Operator(op).Valid() {
		return fmt.Errorf("unknown operator %q", op)
	}
	f.fc.Set(ctx, f.Column, op, value)
	return nil
}

// Clear removes every filter on the column.
func (f *ColumnFilter) Clear(ctx context.Context) {
	f.fc.Remove(ctx, f.Column)
}

// BoundAction is a row action ready to run against an identity tag.
type BoundAction struct {
	Name  string
	Label string

	run func(ctx context.Context, name, tag string) error
}

// Run executes the action for the record carrying tag.
func (a BoundAction) Run(ctx context.Context, tag string) error {
	return a.run(ctx, a.Name, tag)
}

// buildColumns derives the rendered column set from cfg. It runs once per
// engine since the configuration never changes after New.
func buildColumns(cfg schema.TableConfig, run func(ctx context.Context, name, tag string) error, fc *FilterController) []Column {
	cols := make([]Column, 0, len(cfg.Properties)+1)

	for _, p := range cfg.Properties {
		col := Column{PropertyDescriptor: p}

		if p.IsFilterable {
			col.Filter = &ColumnFilter{
				Column:    p.DataIndex,
				FieldType: p.FieldType,
				Operators: p.Operators(),
				fc:        fc,
			}
		}

		if p.FieldType.Normalize() == schema.FieldColor {
			col.Render = colorCell
		}

		cols = append(cols, col)
	}

	if len(cfg.Actions) > 0 {
		actions := make([]BoundAction, len(cfg.Actions))
		for i, a := range cfg.Actions {
			label := a.Label
			if label == "" {
				label = a.Name
			}
			actions[i] = BoundAction{Name: a.Name, Label: label, run: run}
		}

		cols = append(cols, Column{
			PropertyDescriptor: schema.PropertyDescriptor{
				DataIndex: ActionsColumnKey,
				Title:     "Actions",
			},
			Actions: actions,
			Render: func(_ any, rec Record) templ.Component {
				tag, _ := rec[identity.Key].(string)
				return actionCell(actions, tag)
			},
		})
	}

	return cols
}
