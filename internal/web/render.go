package web

import (
	"github.com/a-h/templ"

	"github.com/JonMunkholm/tablekit/internal/notify"
	"github.com/JonMunkholm/tablekit/internal/schema"
	"github.com/JonMunkholm/tablekit/internal/table"
	"github.com/JonMunkholm/tablekit/internal/web/templates"
)

func tableLinks(tables []schema.TableConfig) []templates.TableLink {
	links := make([]templates.TableLink, len(tables))
	for i, t := range tables {
		title := t.Title
		if title == "" {
			title = t.Name
		}
		links[i] = templates.TableLink{Name: t.Name, Title: title}
	}
	return links
}

// tablePage renders a mounted session: filter forms above the table view.
func tablePage(sess *Session, base string, notices []notify.Message) templ.Component {
	cfg := sess.Engine.Config()
	title := cfg.Title
	if title == "" {
		title = cfg.Name
	}

	texts := make([]string, len(notices))
	for i, n := range notices {
		texts[i] = n.Text
	}

	return templates.TablePage(templates.TablePageParams{
		Title:     title,
		SectionID: "session-" + sess.ID.String(),
		Base:      base,
		Notices:   texts,
		Forms:     filterForms(sess.Engine.Columns()),
		View:      sess.Engine.View(base).Component(base),
	})
}

// filterForms describes one operator/value form per filterable column.
func filterForms(cols []table.Column) []templates.FilterForm {
	var forms []templates.FilterForm
	for _, c := range cols {
		if c.Filter == nil {
			continue
		}
		forms = append(forms, templates.FilterForm{
			Column:    c.Filter.Column,
			Title:     c.DisplayTitle(),
			InputType: inputType(c.Filter.FieldType),
			Operators: c.Filter.Operators,
		})
	}
	return forms
}

// inputType keeps dates as text so users can type the displayed pattern.
func inputType(ft schema.FieldType) string {
	if ft.Normalize() == schema.FieldNumber {
		return "number"
	}
	return "text"
}
