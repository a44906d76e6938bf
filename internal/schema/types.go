// Package schema holds the declarative table configuration: the property
// descriptors that describe each column, the API descriptor that says where
// records come from, and the registry of named tables loaded at startup.
//
// Everything in this package is immutable once registered. A table engine is
// built from a TableConfig and never mutates it.
package schema

import "strings"

// FieldType is the declared display type of a property.
// Values are compared case-insensitively; use Normalize before switching on them.
type FieldType string

const (
	FieldPlain    FieldType = "plain"
	FieldText     FieldType = "text"
	FieldNumber   FieldType = "number"
	FieldDate     FieldType = "date"
	FieldDatetime FieldType = "datetime"
	FieldTime     FieldType = "time"
	FieldBoolean  FieldType = "boolean"
	FieldSwitch   FieldType = "switch"
	FieldToggle   FieldType = "toggle"
	FieldColor    FieldType = "color"
)

// Normalize returns the lowercase form of the field type.
func (t FieldType) Normalize() FieldType {
	return FieldType(strings.ToLower(strings.TrimSpace(string(t))))
}

// IsTemporal reports whether the type renders as a date, datetime or time.
func (t FieldType) IsTemporal() bool {
	switch t.Normalize() {
	case FieldDate, FieldDatetime, FieldTime:
		return true
	}
	return false
}

// IsBoolean reports whether the type renders as a yes/no label.
func (t FieldType) IsBoolean() bool {
	switch t.Normalize() {
	case FieldBoolean, FieldSwitch, FieldToggle:
		return true
	}
	return false
}

// PropertyDescriptor describes one displayable/filterable field of a record.
type PropertyDescriptor struct {
	DataIndex    string    `yaml:"dataIndex" json:"dataIndex"`       // Field key in a record
	Title        string    `yaml:"title" json:"title"`               // Column header; defaults to DataIndex
	FieldType    FieldType `yaml:"fieldType" json:"fieldType"`       // Display type
	IsIdentifier bool      `yaml:"isIdentifier" json:"isIdentifier"` // Participates in the record identity
	IsFilterable bool      `yaml:"isFilterable" json:"isFilterable"` // Gets a filter control in the column header

	// FilterOperators restricts the operators offered by the column filter.
	// Empty means the defaults for the field type (see DefaultOperators).
	FilterOperators []string `yaml:"filterOperators,omitempty" json:"filterOperators,omitempty"`
}

// DisplayTitle returns Title, falling back to DataIndex.
func (p PropertyDescriptor) DisplayTitle() string {
	if p.Title != "" {
		return p.Title
	}
	return p.DataIndex
}

// Operators returns the filter operators offered for this property.
func (p PropertyDescriptor) Operators() []string {
	if len(p.FilterOperators) > 0 {
		return p.FilterOperators
	}
	return DefaultOperators(p.FieldType)
}

// DefaultOperators returns the operators that make sense for a field type.
func DefaultOperators(t FieldType) []string {
	switch {
	case t.IsTemporal():
		return []string{"eq", "gte", "lte"}
	case t.IsBoolean():
		return []string{"eq"}
	case t.Normalize() == FieldNumber:
		return []string{"eq", "gt", "gte", "lt", "lte"}
	default:
		return []string{"eq", "contains", "starts", "ends", "in"}
	}
}

// ApiDescriptor says where a table's records come from.
type ApiDescriptor struct {
	URL         string `yaml:"apiUrl" json:"apiUrl"`           // May contain :param placeholders
	Method      string `yaml:"apiMethod" json:"apiMethod"`     // GET when empty
	ResponseKey string `yaml:"responseKey" json:"responseKey"` // Response field holding the record array
}

// HTTPMethod returns the upper-cased method, defaulting to GET.
func (a ApiDescriptor) HTTPMethod() string {
	m := strings.ToUpper(strings.TrimSpace(a.Method))
	if m == "" {
		return "GET"
	}
	return m
}

// RowAction is an operation offered on each row, addressed by the record identity.
type RowAction struct {
	Name  string        `yaml:"name" json:"name"`
	Label string        `yaml:"label" json:"label"`
	Api   ApiDescriptor `yaml:"apiConfig" json:"apiConfig"`
}

// SourceTable maps a table onto a PostgreSQL relation served by the record source.
type SourceTable struct {
	Relation string `yaml:"relation" json:"relation"` // Defaults to the table name
	OrderBy  string `yaml:"orderBy" json:"orderBy"`   // Defaults to the first identifier column
}

// TableConfig is everything needed to build one table.
type TableConfig struct {
	Name       string               `yaml:"name" json:"name"`
	Title      string               `yaml:"title" json:"title"`
	Properties []PropertyDescriptor `yaml:"propertiesConfig" json:"propertiesConfig"`
	Api        ApiDescriptor        `yaml:"apiConfig" json:"apiConfig"`
	Actions    []RowAction          `yaml:"actions,omitempty" json:"actions,omitempty"`
	Source     *SourceTable         `yaml:"source,omitempty" json:"source,omitempty"`
}

// IdentifierColumns returns the identifier-marked properties in declaration order.
func (c TableConfig) IdentifierColumns() []PropertyDescriptor {
	var cols []PropertyDescriptor
	for _, p := range c.Properties {
		if p.IsIdentifier {
			cols = append(cols, p)
		}
	}
	return cols
}

// Property looks up a property by data index.
func (c TableConfig) Property(dataIndex string) (PropertyDescriptor, bool) {
	for _, p := range c.Properties {
		if p.DataIndex == dataIndex {
			return p, true
		}
	}
	return PropertyDescriptor{}, false
}

// Action looks up a row action by name.
func (c TableConfig) Action(name string) (RowAction, bool) {
	for _, a := range c.Actions {
		if a.Name == name {
			return a, true
		}
	}
	return RowAction{}, false
}
