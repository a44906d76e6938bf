package web

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/tablekit/internal/logging"
	"github.com/JonMunkholm/tablekit/internal/schema"
	"github.com/JonMunkholm/tablekit/internal/source"
	"github.com/JonMunkholm/tablekit/internal/web/templates"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"tables":   schema.TableCount(),
		"sessions": s.sessions.Len(),
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.IndexPage(tableLinks(schema.All())).Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render index", "error", err)
	}
}

// handleTablePage opens a browser session for a table and renders it after
// the initial fetch. Query parameters become the route parameters that fill
// :placeholders in the table's API URL.
func (s *Server) handleTablePage(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "table")

	params := make(map[string]string)
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}

	sess, err := s.sessions.Create(name, params)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	sess.Engine.Mount(r.Context())

	logging.WithFields(r.Context(), "session_id", sess.ID.String(), "table", name).
		Info("table session opened")

	base := "/ui/sessions/" + sess.ID.String()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tablePage(sess, base, sess.Notices.Drain()).Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render table page", "error", err)
	}
}

// tableSummary is the public description of a configured table.
type tableSummary struct {
	Name       string                      `json:"name"`
	Title      string                      `json:"title,omitempty"`
	Columns    []schema.PropertyDescriptor `json:"columns"`
	Actions    []string                    `json:"actions,omitempty"`
	HasSource  bool                        `json:"hasSource"`
	APIURL     string                      `json:"apiUrl"`
	APIMethod  string                      `json:"apiMethod"`
	Identifier []string                    `json:"identifier"`
}

func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	all := schema.All()
	out := make([]tableSummary, 0, len(all))
	for _, cfg := range all {
		sum := tableSummary{
			Name:      cfg.Name,
			Title:     cfg.Title,
			Columns:   cfg.Properties,
			HasSource: cfg.Source != nil,
			APIURL:    cfg.Api.URL,
			APIMethod: cfg.Api.HTTPMethod(),
		}
		for _, a := range cfg.Actions {
			sum.Actions = append(sum.Actions, a.Name)
		}
		for _, p := range cfg.IdentifierColumns() {
			sum.Identifier = append(sum.Identifier, p.DataIndex)
		}
		out = append(out, sum)
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": out})
}

// handleData serves one page of records from PostgreSQL in the record API
// wire format. GET reads flattened filters from the query string, POST reads
// {cursor, limit, filters} from the body.
func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "table")
	if s.source == nil {
		respondError(w, r, fmt.Errorf("%w: database not configured", source.ErrNoSource), http.StatusNotImplemented)
		return
	}

	cfg, err := schema.Lookup(name)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}

	var q source.Query
	if r.Method == http.MethodGet {
		q, err = source.ParseQuery(r.URL.Query())
	} else {
		q, err = source.DecodeBody(r.Body)
	}
	if err != nil {
		respondError(w, r, err, 0)
		return
	}

	page, err := s.source.Fetch(r.Context(), cfg, q)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, page.Body(cfg))
}
