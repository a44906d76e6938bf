package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/tablekit/internal/filter"
	"github.com/JonMunkholm/tablekit/internal/identity"
	"github.com/JonMunkholm/tablekit/internal/logging"
	"github.com/JonMunkholm/tablekit/internal/notify"
	"github.com/JonMunkholm/tablekit/internal/table"
)

// ErrColumnNotFilterable is returned for filters on columns without a filter.
var ErrColumnNotFilterable = errors.New("column is not filterable")

// columnJSON describes a rendered column.
type columnJSON struct {
	DataIndex  string   `json:"dataIndex"`
	Title      string   `json:"title"`
	FieldType  string   `json:"fieldType,omitempty"`
	Filterable bool     `json:"filterable"`
	Operators  []string `json:"operators,omitempty"`
	Actions    []string `json:"actions,omitempty"`
}

// sessionJSON is the API view of a table session.
type sessionJSON struct {
	ID                  string           `json:"id"`
	Table               string           `json:"table"`
	Status              string           `json:"status"`
	Loading             bool             `json:"loading"`
	Page                int              `json:"page"`
	IsLastPage          bool             `json:"isLastPage"`
	HasNext             bool             `json:"hasNext"`
	HasPrevious         bool             `json:"hasPrevious"`
	Filters             filter.Filters   `json:"filters"`
	AppliedFilters      []string         `json:"appliedFilters"`
	Columns             []columnJSON     `json:"columns"`
	RecordIdentifierKey string           `json:"recordIdentifierKey"`
	Records             []table.Record   `json:"records"`
	Notices             []notify.Message `json:"notices"`
	Created             time.Time        `json:"created"`
}

func newSessionJSON(sess *Session) sessionJSON {
	e := sess.Engine
	st := e.State()

	out := sessionJSON{
		ID:                  sess.ID.String(),
		Table:               sess.Table,
		Status:              st.Status.String(),
		Loading:             st.Loading,
		Page:                st.CurrentPage,
		IsLastPage:          st.IsLastPage,
		HasNext:             e.Pages.HasNext(),
		HasPrevious:         e.Pages.HasPrevious(),
		Filters:             st.Filters,
		AppliedFilters:      []string{},
		RecordIdentifierKey: identity.Key,
		Records:             st.Records,
		Notices:             sess.Notices.Drain(),
		Created:             sess.Created,
	}
	if out.Filters == nil {
		out.Filters = filter.Filters{}
	}
	if out.Records == nil {
		out.Records = []table.Record{}
	}
	if out.Notices == nil {
		out.Notices = []notify.Message{}
	}
	for _, a := range e.Filters.Applied() {
		out.AppliedFilters = append(out.AppliedFilters, a.String())
	}
	for _, c := range e.Columns() {
		cj := columnJSON{
			DataIndex: c.DataIndex,
			Title:     c.DisplayTitle(),
			FieldType: string(c.FieldType),
		}
		if c.Filter != nil {
			cj.Filterable = true
			cj.Operators = c.Filter.Operators
		}
		for _, a := range c.Actions {
			cj.Actions = append(cj.Actions, a.Name)
		}
		out.Columns = append(out.Columns, cj)
	}
	return out
}

// respondSession writes the session as JSON, or for HTMX requests as the
// table fragment with notices delivered in an HX-Trigger event.
func (s *Server) respondSession(w http.ResponseWriter, r *http.Request, sess *Session, status int) {
	if !isHTMX(r) {
		writeJSON(w, status, newSessionJSON(sess))
		return
	}

	if notices := sess.Notices.Drain(); len(notices) > 0 {
		texts := make([]string, len(notices))
		for i, n := range notices {
			texts[i] = n.Text
		}
		trigger, err := json.Marshal(map[string]any{"table-notice": map[string]any{"messages": texts}})
		if err == nil {
			w.Header().Set("HX-Trigger", string(trigger))
		}
	}

	base := sessionBase(r, sess)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := sess.Engine.View(base).Component(base).Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render table view", "error", err)
	}
}

// sessionBase is the URL prefix fragments post back to. It follows the
// route the request came in on.
func sessionBase(r *http.Request, sess *Session) string {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return "/api/sessions/" + sess.ID.String()
	}
	return "/ui/sessions/" + sess.ID.String()
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err, 0)
		return nil, false
	}
	return sess, true
}

type createSessionRequest struct {
	Table  string            `json:"table"`
	Params map[string]string `json:"params"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err, 0)
		return
	}
	if req.Table == "" {
		respondError(w, r, fmt.Errorf("%w: table is required", ErrInvalidBody), 0)
		return
	}

	sess, err := s.sessions.Create(req.Table, req.Params)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	sess.Engine.Mount(r.Context())

	logging.WithFields(r.Context(), "session_id", sess.ID.String(), "table", req.Table).
		Info("table session created")
	s.respondSession(w, r, sess, http.StatusCreated)
}

type sessionSummary struct {
	ID       string    `json:"id"`
	Table    string    `json:"table"`
	Created  time.Time `json:"created"`
	LastSeen time.Time `json:"lastSeen"`
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	list := s.sessions.List()
	out := make([]sessionSummary, len(list))
	for i, sess := range list {
		out[i] = sessionSummary{
			ID:       sess.ID.String(),
			Table:    sess.Table,
			Created:  sess.Created,
			LastSeen: sess.LastSeen(),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	s.respondSession(w, r, sess, http.StatusOK)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(chi.URLParam(r, "id")); err != nil {
		respondError(w, r, err, 0)
		return
	}
	if isHTMX(r) {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// filterRequest sets one column filter or, when Filters is present,
// replaces the whole filter set.
type filterRequest struct {
	Column   string         `json:"column"`
	Operator string         `json:"operator"`
	Value    any            `json:"value"`
	Filters  filter.Filters `json:"filters"`
}

func readFilterRequest(r *http.Request) (filterRequest, error) {
	var req filterRequest
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		err := decodeJSON(r, &req)
		return req, err
	}
	if err := r.ParseForm(); err != nil {
		return req, errors.Join(ErrInvalidBody, err)
	}
	req.Column = r.PostForm.Get("column")
	req.Operator = r.PostForm.Get("operator")
	req.Value = r.PostForm.Get("value")
	return req, nil
}

func (s *Server) handleApplyFilter(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	req, err := readFilterRequest(r)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}

	if req.Filters != nil {
		for col, ops := range req.Filters {
			cf, err := columnFilter(sess.Engine, col)
			if err != nil {
				respondError(w, r, err, 0)
				return
			}
			for op := range ops {
				if !offers(cf.Operators, op) {
					respondError(w, r, fmt.Errorf("%w: operator %q not offered on %q", ErrInvalidBody, op, col), 0)
					return
				}
			}
		}
		sess.Engine.Filters.Apply(r.Context(), req.Filters)
		s.respondSession(w, r, sess, http.StatusOK)
		return
	}

	cf, err := columnFilter(sess.Engine, req.Column)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}

	// An empty value clears the column, matching an emptied filter input.
	if str, isStr := req.Value.(string); req.Value == nil || (isStr && strings.TrimSpace(str) == "") {
		cf.Clear(r.Context())
		s.respondSession(w, r, sess, http.StatusOK)
		return
	}

	if !offers(cf.Operators, req.Operator) {
		respondError(w, r, fmt.Errorf("%w: operator %q not offered on %q", ErrInvalidBody, req.Operator, req.Column), 0)
		return
	}

	value := req.Value
	if filter.Operator(req.Operator) == filter.OpIn {
		value = splitValues(value)
	}
	if err := cf.Apply(r.Context(), req.Operator, value); err != nil {
		respondError(w, r, errors.Join(ErrInvalidBody, err), 0)
		return
	}
	s.respondSession(w, r, sess, http.StatusOK)
}

func (s *Server) handleClearFilters(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sess.Engine.Filters.Clear(r.Context())
	s.respondSession(w, r, sess, http.StatusOK)
}

func (s *Server) handleRemoveFilter(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sess.Engine.Filters.Remove(r.Context(), chi.URLParam(r, "column"))
	s.respondSession(w, r, sess, http.StatusOK)
}

func (s *Server) handleGoToPage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	raw := chi.URLParam(r, "page")
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		respondError(w, r, fmt.Errorf("%w: page %q", ErrInvalidBody, raw), 0)
		return
	}
	if !sess.Engine.Pages.GoTo(r.Context(), page) {
		respondError(w, r, fmt.Errorf("%w: %d", ErrPageUnknown, page), 0)
		return
	}
	s.respondSession(w, r, sess, http.StatusOK)
}

func (s *Server) handleNextPage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if !sess.Engine.Pages.Next(r.Context()) {
		respondError(w, r, fmt.Errorf("%w: already on the last page", ErrPageUnknown), 0)
		return
	}
	s.respondSession(w, r, sess, http.StatusOK)
}

func (s *Server) handlePreviousPage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if !sess.Engine.Pages.Previous(r.Context()) {
		respondError(w, r, fmt.Errorf("%w: already on the first page", ErrPageUnknown), 0)
		return
	}
	s.respondSession(w, r, sess, http.StatusOK)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sess.Engine.Reload(r.Context())
	s.respondSession(w, r, sess, http.StatusOK)
}

// handleRunAction runs a row action. The record is addressed by its identity
// tag, sent as "id" in a JSON body or form. Failures other than an unknown
// action have already been reported to the session's notices.
func (s *Server) handleRunAction(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var body struct {
		ID string `json:"id"`
	}
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		if err := decodeJSON(r, &body); err != nil {
			respondError(w, r, err, 0)
			return
		}
	} else {
		body.ID = r.FormValue("id")
	}
	if body.ID == "" {
		respondError(w, r, fmt.Errorf("%w: id is required", ErrInvalidBody), 0)
		return
	}

	if _, err := identity.Parse(body.ID); err != nil {
		respondError(w, r, errors.Join(ErrInvalidBody, err), 0)
		return
	}

	name := chi.URLParam(r, "action")
	err := sess.Engine.RunAction(r.Context(), name, body.ID)
	switch {
	case errors.Is(err, table.ErrUnknownAction):
		respondError(w, r, err, 0)
	case err != nil:
		status := http.StatusBadGateway
		if isHTMX(r) {
			status = http.StatusOK
		}
		s.respondSession(w, r, sess, status)
	default:
		s.respondSession(w, r, sess, http.StatusOK)
	}
}

func columnFilter(e *table.Engine, column string) (*table.ColumnFilter, error) {
	for _, c := range e.Columns() {
		if c.DataIndex == column && c.Filter != nil {
			return c.Filter, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrColumnNotFilterable, column)
}

func offers(ops []string, op string) bool {
	for _, o := range ops {
		if o == op {
			return true
		}
	}
	return false
}

// splitValues turns "a, b" into a list for multi-value operators.
func splitValues(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	parts := strings.Split(s, ",")
	out := make([]any, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
