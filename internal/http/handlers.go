package http

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"spendly/internal/app"
	"spendly/internal/core"
	"spendly/internal/form"
	"spendly/internal/log"
	"spendly/internal/store"
	"spendly/internal/view"
)

// formView is the data behind the "form" template.
type formView struct {
	Open       bool
	Input      form.Input
	Errors     map[string]string
	Categories []core.Category
	Today      string
}

type pageData struct {
	Summary view.Summary
	Form    formView
}

func (s *Server) formView(st app.FormState) formView {
	fv := formView{
		Open:       st.State == app.ModalOpen,
		Input:      st.Input,
		Categories: core.Categories(),
		Today:      s.app.Today().String(),
	}
	if st.Errors != nil {
		fv.Errors = st.Errors.Fields
	}
	return fv
}

func (s *Server) render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// renderOr writes the rendered template through b, or a 500 when rendering
// fails.
func (s *Server) renderOr(w http.ResponseWriter, r *http.Request, b *HTMXResponseBuilder, name string, data any) {
	body, err := s.render(name, data)
	if err != nil {
		log.FromContext(r.Context()).WithComponent(log.ComponentTemplate).ErrorContext(r.Context(),
			"Template render failed", log.FieldOperation, log.OpRender, "template", name, log.FieldError, err)
		InternalServerError("Could not render the page").Write(w)
		return
	}
	b.BodyHTML(body).Write(w)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	q := ParseRangeParams(r.URL.Query())
	if q.Start != "" || q.End != "" {
		if _, err := s.app.SetRange(q.Start, q.End); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Ignoring invalid range",
				log.FieldRangeStart, q.Start, log.FieldRangeEnd, q.End, log.FieldError, err)
		}
	}
	data := pageData{
		Summary: view.Build(s.app.Summary()),
		Form:    s.formView(s.app.Form()),
	}
	s.renderOr(w, r, NewHTMXResponse(), "index.html", data)
}

// handleSummary re-renders the summary partial. The range query replaces the
// selected range; an invalid range leaves it unchanged and answers 400.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	q := ParseRangeParams(r.URL.Query())
	if _, err := s.app.SetRange(q.Start, q.End); err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Invalid range",
			log.FieldRangeStart, q.Start, log.FieldRangeEnd, q.End, log.FieldError, err)
		BadRequestError("Dates must be YYYY-MM-DD").
			TriggerErrorNotification("Dates must be YYYY-MM-DD").
			Write(w)
		return
	}
	s.renderOr(w, r, NewHTMXResponse(), "summary", view.Build(s.app.Summary()))
}

func (s *Server) handleOpenForm(w http.ResponseWriter, r *http.Request) {
	st := s.app.OpenForm(r.Context())
	s.renderOr(w, r, NewHTMXResponse(), "form", s.formView(st))
}

func (s *Server) handleCancelForm(w http.ResponseWriter, r *http.Request) {
	st := s.app.CancelForm()
	s.renderOr(w, r, NewHTMXResponse().TriggerFormReset(), "form", s.formView(st))
}

// HeaderUnsaved marks a change that is visible for the session but was not
// written to storage.
const HeaderUnsaved = "X-Spendly-Unsaved"

const msgUnsaved = "Saved for this session only. Storage is unavailable."

// handleCreateExpense accepts the entry form either form-encoded (HTMX) or as
// a JSON object with the same field names. Validation failures answer 422
// with the form re-rendered around its messages.
func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.FromContext(ctx).WithComponent(log.ComponentExpense)

	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		logger.WarnContext(ctx, "Malformed expense request", log.FieldOperation, log.OpParse, log.FieldError, err)
		BadRequestError("Malformed request").Write(w)
		return
	}

	e, st, err := s.app.Submit(ctx, ParseExpenseInput(p))
	unsaved := errors.Is(err, store.ErrPersist)
	if err != nil && !unsaved {
		var verr *form.ValidationError
		if errors.As(err, &verr) {
			logger.DebugContext(ctx, "Expense rejected", log.FieldOperation, log.OpValidate, log.FieldError, err)
			if p.IsJSON() {
				writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": verr.Fields})
				return
			}
			s.renderOr(w, r, NewHTMXResponse().Status(http.StatusUnprocessableEntity), "form", s.formView(st))
			return
		}
		logger.ErrorContext(ctx, "Expense not saved", log.NewFields().
			WithOperation(log.OpCreate).
			WithError(err).ToSlice()...)
		InternalServerError("Could not save the expense").
			TriggerErrorNotification("Could not save the expense").
			Write(w)
		return
	}

	logger.InfoContext(ctx, "Expense created", log.NewFields().
		WithOperation(log.OpCreate).
		WithExpense(e.ID, e.Amount.Cents, e.Category).ToSlice()...)

	if p.IsJSON() {
		if unsaved {
			w.Header().Set(HeaderUnsaved, "true")
		}
		writeJSON(w, http.StatusCreated, e)
		return
	}
	b := NewHTMXResponse().
		TriggerExpenseCreated(e.ID).
		TriggerFormReset().
		TriggerSummaryRefresh().
		TriggerPlayChime()
	if unsaved {
		b.Header(HeaderUnsaved, "true").TriggerWarningNotification(msgUnsaved)
	} else {
		b.TriggerSuccessNotification("Expense saved")
	}
	s.renderOr(w, r, b, "form", s.formView(st))
}

// handleDeleteExpense removes one record. Without confirm=yes nothing changes
// and the answer is 204.
func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.FromContext(ctx).WithComponent(log.ComponentExpense)
	id := mux.Vars(r)["id"]

	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("Malformed request").Write(w)
		return
	}
	confirmed := IsConfirmed(r, p)

	removed, err := s.app.Delete(ctx, id, confirmed)
	switch {
	case removed && errors.Is(err, store.ErrPersist):
		NewHTMXResponse().
			Header(HeaderUnsaved, "true").
			TriggerExpenseDeleted(id).
			TriggerSummaryRefresh().
			TriggerWarningNotification(msgUnsaved).
			Write(w)
	case err != nil:
		logger.ErrorContext(ctx, "Expense not deleted", log.FieldOperation, log.OpDelete, log.FieldExpenseID, id, log.FieldError, err)
		InternalServerError("Could not delete the expense").
			TriggerErrorNotification("Could not delete the expense").
			Write(w)
	case !confirmed:
		NewHTMXResponse().Status(http.StatusNoContent).Write(w)
	case !removed:
		NotFoundError("Expense not found").Write(w)
	default:
		logger.InfoContext(ctx, "Expense deleted", log.FieldOperation, log.OpDelete, log.FieldExpenseID, id)
		NewHTMXResponse().
			TriggerExpenseDeleted(id).
			TriggerSummaryRefresh().
			TriggerSuccessNotification("Expense deleted").
			Write(w)
	}
}

// handleDigest returns the copy-all text for the requested range without
// changing the selected one.
func (s *Server) handleDigest(w http.ResponseWriter, r *http.Request) {
	q := ParseRangeParams(r.URL.Query())
	rng, err := app.ParseRange(q.Start, q.End)
	if err != nil {
		http.Error(w, "Dates must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	NewHTMXResponse().
		Header("Content-Type", "text/plain; charset=utf-8").
		Header("Cache-Control", "no-store").
		BodyString(s.app.Digest(rng)).
		Write(w)
}

type apiGroup struct {
	Date     core.Date      `json:"date"`
	Heading  string         `json:"heading"`
	Total    core.Money     `json:"total"`
	Expenses []core.Expense `json:"expenses"`
}

type apiSummary struct {
	Start  core.Date  `json:"start"`
	End    core.Date  `json:"end"`
	Total  core.Money `json:"total"`
	Count  int        `json:"count"`
	Groups []apiGroup `json:"groups"`
}

func (s *Server) handleAPISummary(w http.ResponseWriter, r *http.Request) {
	q := ParseRangeParams(r.URL.Query())
	rng, err := app.ParseRange(q.Start, q.End)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	sum := s.app.SummaryFor(rng)
	out := apiSummary{
		Start:  rng.Start,
		End:    rng.End,
		Total:  sum.Total,
		Count:  len(sum.Expenses),
		Groups: make([]apiGroup, 0, len(sum.Groups)),
	}
	for _, g := range sum.Groups {
		out.Groups = append(out.Groups, apiGroup{
			Date:     g.Date,
			Heading:  view.FormatHeading(g.Date),
			Total:    g.Total,
			Expenses: g.Expenses,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAPICategories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, core.Categories())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// Metrics is the JSON body of GET /metrics.
type Metrics struct {
	Requests           int64 `json:"requests"`
	LastResponseMicros int64 `json:"last_response_us"`
	RateLimitHits      int64 `json:"rate_limit_hits"`
	RateLimitClients   int64 `json:"rate_limit_clients"`
	SuspiciousRequests int64 `json:"suspicious_requests"`
	CacheHits          int64 `json:"cache_hits"`
	CacheMisses        int64 `json:"cache_misses"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	tm := s.tracer.GetMetrics()
	rm := s.limiter.GetMetrics()
	hits, misses := s.app.CacheStats()
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, Metrics{
		Requests:           tm.TotalRequests,
		LastResponseMicros: tm.LastResponseTime,
		RateLimitHits:      rm.TotalHits,
		RateLimitClients:   rm.ClientCount,
		SuspiciousRequests: s.detector.SuspiciousCount(),
		CacheHits:          hits,
		CacheMisses:        misses,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.logger.WarnContext(r.Context(), "Not ready", log.FieldError, err)
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ready"))
}
