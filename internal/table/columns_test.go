package table

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/tablekit/internal/filter"
	"github.com/JonMunkholm/tablekit/internal/identity"
	"github.com/JonMunkholm/tablekit/internal/schema"
)

func actionConfig() schema.TableConfig {
	cfg := usersConfig()
	cfg.Properties = append(cfg.Properties, schema.PropertyDescriptor{
		DataIndex: "favorite", Title: "Favorite", FieldType: "Color",
	})
	cfg.Actions = []schema.RowAction{
		{Name: "delete", Label: "Delete", Api: schema.ApiDescriptor{URL: "/users/:id", Method: "DELETE"}},
		{Name: "archive", Api: schema.ApiDescriptor{URL: "/users/archive", Method: "POST"}},
	}
	return cfg
}

func renderString(t *testing.T, ctx context.Context, c templ.Component) string {
	t.Helper()
	var buf bytes.Buffer
	if err := c.Render(ctx, &buf); err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	return buf.String()
}

func TestColumns(t *testing.T) {
	e, _ := newTestEngine(t, actionConfig(), &fakeTransport{})
	cols := e.Columns()

	if len(cols) != 7 {
		t.Fatalf("columns = %d, want 7 (6 properties + actions)", len(cols))
	}

	byKey := make(map[string]Column, len(cols))
	for _, c := range cols {
		byKey[c.DataIndex] = c
	}

	if byKey["id"].Filter != nil {
		t.Error("id column has a filter, want none")
	}
	status := byKey["status"].Filter
	if status == nil {
		t.Fatal("status column has no filter")
	}
	if strings.Join(status.Operators, ",") != "eq,contains,starts,ends,in" {
		t.Errorf("status operators = %v", status.Operators)
	}
	if byKey["favorite"].Render == nil {
		t.Error("color column has no renderer")
	}

	actions := cols[len(cols)-1]
	if actions.DataIndex != ActionsColumnKey {
		t.Fatalf("last column = %q, want %q", actions.DataIndex, ActionsColumnKey)
	}
	if len(actions.Actions) != 2 || actions.Actions[1].Label != "archive" {
		t.Errorf("actions = %+v, want label to default to name", actions.Actions)
	}

	if &e.Columns()[0] != &cols[0] {
		t.Error("Columns() rebuilt the column set")
	}
}

func TestColumns_NoActions(t *testing.T) {
	e, _ := newTestEngine(t, usersConfig(), &fakeTransport{})
	for _, c := range e.Columns() {
		if c.DataIndex == ActionsColumnKey {
			t.Fatal("action column injected without actions")
		}
	}
}

func TestColorCell(t *testing.T) {
	got := renderString(t, context.Background(), colorCell("#ff0000", nil))
	if !strings.Contains(got, `fill="#ff0000"`) || !strings.HasSuffix(got, "#ff0000</span>") {
		t.Errorf("colorCell = %q, want swatch plus raw text", got)
	}

	got = renderString(t, context.Background(), colorCell(`"><script>`, nil))
	if strings.Contains(got, "<script>") {
		t.Errorf("colorCell did not escape: %q", got)
	}

	if got := renderString(t, context.Background(), colorCell(nil, nil)); got != "" {
		t.Errorf("colorCell(nil) = %q, want empty", got)
	}
}

func TestColumnFilter_Apply(t *testing.T) {
	tr := &fakeTransport{}
	e, _ := newTestEngine(t, usersConfig(), tr)
	ctx := context.Background()
	e.Mount(ctx)

	var status *ColumnFilter
	for _, c := range e.Columns() {
		if c.DataIndex == "status" {
			status = c.Filter
		}
	}

	if err := status.Apply(ctx, "bogus", "x"); err == nil {
		t.Error("Apply with unknown operator: expected error")
	}
	if err := status.Apply(ctx, "eq", "active"); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if got := tr.Calls()[1].Payload["status.eq"]; got != "active" {
		t.Errorf("status.eq = %v, want active", got)
	}

	status.Clear(ctx)
	if len(e.Filters.Current()) != 0 {
		t.Errorf("filters after Clear = %v", e.Filters.Current())
	}
}

func TestFilterController_Applied(t *testing.T) {
	e, _ := newTestEngine(t, usersConfig(), &fakeTransport{})
	ctx := context.Background()

	e.Filters.Apply(ctx, filter.Filters{
		"status":    {"in": []any{"active", "invited"}},
		"createdAt": {"gte": int64(1699999999000)},
		"unknown":   {"eq": 5},
	})

	got := e.Filters.Applied()
	want := []string{
		"Created >= 2023-11-14",
		"Status in active, invited",
		"unknown = 5",
	}
	if len(got) != len(want) {
		t.Fatalf("Applied() = %v, want %d entries", got, len(want))
	}
	for i := range want {
		if got[i].String() != want[i] {
			t.Errorf("Applied()[%d] = %q, want %q", i, got[i].String(), want[i])
		}
	}

	html := renderString(t, ctx, e.Filters.Component("/s/1"))
	if !strings.Contains(html, `hx-delete="/s/1/filters/status"`) {
		t.Errorf("filter chips missing remove link: %s", html)
	}
}

func TestRunAction(t *testing.T) {
	tr := &fakeTransport{respond: func(req Request) (*Response, error) {
		if req.Method == "DELETE" {
			return &Response{Status: http.StatusNoContent}, nil
		}
		return okResponse("users", []any{map[string]any{"id": 1}}, nil), nil
	}}
	e, n := newTestEngine(t, actionConfig(), tr)
	ctx := context.Background()
	e.Mount(ctx)

	tag := e.State().Records[0][identity.Key].(string)
	if err := e.RunAction(ctx, "delete", tag); err != nil {
		t.Fatalf("RunAction() error: %v", err)
	}

	calls := tr.Calls()
	if len(calls) != 3 {
		t.Fatalf("calls = %d, want mount + action + reload", len(calls))
	}
	if calls[1].URL != "/users/1" || calls[1].Method != "DELETE" {
		t.Errorf("action request = %s %s, want DELETE /users/1", calls[1].Method, calls[1].URL)
	}
	if calls[2].URL != "/users" {
		t.Errorf("reload URL = %s, want /users", calls[2].URL)
	}
	if len(n.Messages()) != 0 {
		t.Errorf("notifications = %v, want none", n.Messages())
	}
}

func TestRunAction_Failures(t *testing.T) {
	tr := &fakeTransport{respond: func(req Request) (*Response, error) {
		if req.Method == "POST" {
			return &Response{Status: http.StatusConflict, Error: "already archived"}, nil
		}
		return okResponse("users", nil, nil), nil
	}}
	e, n := newTestEngine(t, actionConfig(), tr)
	ctx := context.Background()

	if err := e.RunAction(ctx, "nope", `[{"id":1}]`); !errors.Is(err, ErrUnknownAction) {
		t.Errorf("unknown action error = %v, want ErrUnknownAction", err)
	}
	if err := e.RunAction(ctx, "delete", "not json"); err == nil {
		t.Error("invalid tag: expected error")
	}
	if err := e.RunAction(ctx, "archive", `[{"id":1}]`); err == nil {
		t.Error("rejected action: expected error")
	}
	if got := n.Messages(); len(got) != 1 || got[0] != "already archived" {
		t.Errorf("notifications = %v, want [already archived]", got)
	}
}

func TestViewComponent(t *testing.T) {
	tr := &fakeTransport{respond: func(Request) (*Response, error) {
		return okResponse("users", []any{
			map[string]any{"id": 1, "name": "<Ada>", "favorite": "#00ff00"},
		}, "c2"), nil
	}}
	e, _ := newTestEngine(t, actionConfig(), tr)
	ctx := context.Background()
	e.Mount(ctx)

	v := e.View("/sessions/abc")
	if v.RecordIdentifierKey != identity.Key {
		t.Errorf("RecordIdentifierKey = %q", v.RecordIdentifierKey)
	}
	if len(v.ListRecords) != 1 || v.IsLoading {
		t.Errorf("ListRecords = %d, IsLoading = %v", len(v.ListRecords), v.IsLoading)
	}

	html := renderString(t, ctx, v.Component("/sessions/abc"))
	checks := []string{
		`&lt;Ada&gt;`,
		`fill="#00ff00"`,
		`hx-post="/sessions/abc/page/2"`,
		`hx-post="/sessions/abc/actions/delete"`,
		`<th data-index="name">Name</th>`,
	}
	for _, c := range checks {
		if !strings.Contains(html, c) {
			t.Errorf("view missing %q", c)
		}
	}
	if !strings.Contains(html, `<button type="button" class="page-link" disabled>Previous</button>`) {
		t.Error("previous button enabled on page 1")
	}
}
