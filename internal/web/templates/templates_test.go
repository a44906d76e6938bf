package templates

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/a-h/templ"
)

func render(t *testing.T, c templ.Component) string {
	t.Helper()
	var buf bytes.Buffer
	if err := c.Render(context.Background(), &buf); err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	return buf.String()
}

func TestPagination(t *testing.T) {
	got := render(t, Pagination(PaginationParams{Base: "/s/1", Page: 1, HasNext: true}))

	want := []string{
		`<button type="button" class="page-link" disabled>Previous</button>`,
		`<span class="page-current">Page 1</span>`,
		`hx-post="/s/1/page/2"`,
	}
	for _, w := range want {
		if !strings.Contains(got, w) {
			t.Errorf("Pagination missing %q in %s", w, got)
		}
	}
}

func TestFilterChips(t *testing.T) {
	if got := render(t, FilterChips("/s/1", nil)); got != "" {
		t.Errorf("FilterChips(nil) = %q, want empty", got)
	}

	got := render(t, FilterChips("/s/1", []FilterChip{{Column: "status", Label: "Status = <b>"}}))
	if !strings.Contains(got, `hx-delete="/s/1/filters/status"`) {
		t.Errorf("chip missing remove link: %s", got)
	}
	if !strings.Contains(got, "Status = &lt;b&gt; <button") {
		t.Errorf("chip label not escaped: %s", got)
	}
}

func TestTableView(t *testing.T) {
	p := TableViewParams{
		Base:    "/s/1",
		Headers: []HeaderCell{{DataIndex: "name", Title: "Name"}, {DataIndex: "__actions__", Title: "Actions"}},
		Rows: []Row{{
			ID: `[{"id":1}]`,
			Cells: []templ.Component{
				TextCell("Ada"),
				ActionCell(`[{"id":1}]`, []ActionButton{{Name: "delete", Label: "Delete"}}),
			},
		}},
		Filters:    FilterChips("/s/1", nil),
		Pagination: Pagination(PaginationParams{Base: "/s/1", Page: 1}),
	}
	got := render(t, TableView(p))

	want := []string{
		`<div class="table-view" aria-busy="false">`,
		`<th data-index="name">Name</th>`,
		`<tr data-id="[{&#34;id&#34;:1}]">`,
		`<td>Ada</td>`,
		`hx-post="/s/1/actions/delete"`,
		`hx-vals="{&#34;id&#34;:&#34;[{\&#34;id\&#34;:1}]&#34;}"`,
	}
	for _, w := range want {
		if !strings.Contains(got, w) {
			t.Errorf("TableView missing %q in %s", w, got)
		}
	}
}

func TestTableView_Empty(t *testing.T) {
	got := render(t, TableView(TableViewParams{
		Loading:    true,
		Headers:    []HeaderCell{{DataIndex: "a"}, {DataIndex: "b"}},
		Filters:    templ.NopComponent,
		Pagination: templ.NopComponent,
	}))
	if !strings.Contains(got, `aria-busy="true"`) {
		t.Errorf("loading flag missing: %s", got)
	}
	if !strings.Contains(got, `<td class="empty" colspan="2">No records</td>`) {
		t.Errorf("empty row missing: %s", got)
	}
}

func TestActionCell_UsesBaseFromContext(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithBase(context.Background(), "/ui/sessions/x")
	if err := ActionCell("t", []ActionButton{{Name: "archive", Label: "Archive"}}).Render(ctx, &buf); err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if !strings.Contains(buf.String(), `hx-post="/ui/sessions/x/actions/archive"`) {
		t.Errorf("ActionCell = %s, want base-prefixed action URL", buf.String())
	}
}

func TestIndexPage(t *testing.T) {
	got := render(t, IndexPage([]TableLink{{Name: "users", Title: "Users"}}))
	if !strings.HasPrefix(got, "<!doctype html>") {
		t.Errorf("IndexPage not wrapped in layout: %.40s", got)
	}
	if !strings.Contains(got, `<a href="/table/users">Users</a>`) {
		t.Errorf("IndexPage missing table link: %s", got)
	}
	if strings.Contains(got, "No tables configured") {
		t.Error("IndexPage shows empty message with tables present")
	}
}

func TestErrorAlert(t *testing.T) {
	got := render(t, ErrorAlert("Not found", "Reload", "SES001"))
	if !strings.Contains(got, `<p class="error-code">Code: SES001</p>`) {
		t.Errorf("ErrorAlert = %s", got)
	}
}
