// Package web is the thin JSON surface an external caller drives the billing
// core through. Routing stays deliberately small; everything interesting
// lives below it.
package web

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/JollyGreenFrogs/clockit-sub000/internal/db"
	"github.com/JollyGreenFrogs/clockit-sub000/internal/errors"
	"github.com/JollyGreenFrogs/clockit-sub000/internal/invoice"
	"github.com/JollyGreenFrogs/clockit-sub000/internal/model"
	"github.com/JollyGreenFrogs/clockit-sub000/internal/timer"
)

type Server struct {
	store       *db.Store
	timers      *timer.Controller
	invoices    *invoice.Generator
	slog        *slog.Logger
	defaultUser string
}

func NewServer(store *db.Store, timers *timer.Controller, invoices *invoice.Generator, logger *slog.Logger, defaultUser string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:       store,
		timers:      timers,
		invoices:    invoices,
		slog:        logger,
		defaultUser: defaultUser,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/timer", s.timerState)
	mux.HandleFunc("POST /api/timer/start", s.timerStart)
	mux.HandleFunc("POST /api/timer/pause", s.timerPause)
	mux.HandleFunc("POST /api/timer/resume", s.timerResume)
	mux.HandleFunc("POST /api/timer/stop", s.timerStop)

	mux.HandleFunc("GET /api/tasks", s.listTasks)
	mux.HandleFunc("POST /api/tasks", s.createTask)
	mux.HandleFunc("GET /api/tasks/{id}", s.getTask)
	mux.HandleFunc("PUT /api/tasks/{id}", s.updateTask)
	mux.HandleFunc("DELETE /api/tasks/{id}", s.deleteTask)
	mux.HandleFunc("GET /api/tasks/{id}/entries", s.listEntries)
	mux.HandleFunc("POST /api/tasks/{id}/entries", s.addEntry)

	mux.HandleFunc("PUT /api/entries/{id}", s.updateEntry)
	mux.HandleFunc("DELETE /api/entries/{id}", s.deleteEntry)

	mux.HandleFunc("GET /api/rates", s.listRates)
	mux.HandleFunc("PUT /api/rates/{category}", s.setRate)
	mux.HandleFunc("DELETE /api/rates/{category}", s.deleteRate)

	mux.HandleFunc("GET /api/currency", s.getCurrency)
	mux.HandleFunc("PUT /api/currency", s.setCurrency)

	mux.HandleFunc("GET /api/invoice/preview", s.previewInvoice)
	mux.HandleFunc("POST /api/invoice/finalize", s.finalizeInvoice)
	mux.HandleFunc("GET /api/invoices/{id}", s.invoiceHistory)

	return mux
}

func (s *Server) userID(r *http.Request) string {
	if user := strings.TrimSpace(r.Header.Get("X-User")); user != "" {
		return user
	}
	return s.defaultUser
}

func (s *Server) timerState(w http.ResponseWriter, r *http.Request) {
	user := s.userID(r)
	payload := struct {
		State  model.TimerState
		Paused []model.TimerState
	}{State: s.timers.State(user), Paused: s.timers.PausedStates(user)}
	writeJSON(w, payload)
}

func (s *Server) timerStart(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TaskID int64 `json:"task_id"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	state, err := s.timers.Start(r.Context(), s.userID(r), body.TaskID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, state)
}

func (s *Server) timerPause(w http.ResponseWriter, r *http.Request) {
	state, err := s.timers.Pause(s.userID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, state)
}

func (s *Server) timerResume(w http.ResponseWriter, r *http.Request) {
	state, err := s.timers.Resume(s.userID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, state)
}

func (s *Server) timerStop(w http.ResponseWriter, r *http.Request) {
	var body struct {
		BreakMinutes int64 `json:"break_minutes"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	entry, err := s.timers.Stop(r.Context(), s.userID(r), body.BreakMinutes)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, entry)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.store.ListTasks(r.Context(), s.userID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, tasks)
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Category    string `json:"category"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	task, err := s.store.CreateTask(r.Context(), s.userID(r), db.TaskInput{
		Name:        body.Name,
		Description: body.Description,
		Category:    body.Category,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, task)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	task, err := s.store.GetTask(r.Context(), s.userID(r), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, task)
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var body struct {
		Category string `json:"category"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	user := s.userID(r)
	if err := s.store.SetTaskCategory(r.Context(), user, id, body.Category); err != nil {
		s.writeError(w, r, err)
		return
	}

	task, err := s.store.GetTask(r.Context(), user, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, task)
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.store.DeleteTask(r.Context(), s.userID(r), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listEntries(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	entries, err := s.store.ListEntries(r.Context(), s.userID(r), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, entries)
}

func (s *Server) addEntry(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var body struct {
		Hours       decimal.Decimal `json:"hours"`
		Date        string          `json:"date"`
		Description string          `json:"description"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	entry, err := s.store.AddEntry(r.Context(), s.userID(r), id, db.EntryInput{
		Hours:       body.Hours,
		OccurredOn:  body.Date,
		Description: body.Description,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, entry)
}

func (s *Server) updateEntry(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var body struct {
		Hours       decimal.Decimal `json:"hours"`
		Description string          `json:"description"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	entry, err := s.store.UpdateEntry(r.Context(), s.userID(r), id, db.EntryUpdate{
		Hours:       body.Hours,
		Description: body.Description,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, entry)
}

func (s *Server) deleteEntry(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.store.DeleteEntry(r.Context(), s.userID(r), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listRates(w http.ResponseWriter, r *http.Request) {
	rates, err := s.store.ListRates(r.Context(), s.userID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, rates)
}

func (s *Server) setRate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DayRate decimal.Decimal `json:"day_rate"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	rate, err := s.store.SetRate(r.Context(), s.userID(r), r.PathValue("category"), body.DayRate)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, rate)
}

func (s *Server) deleteRate(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteRate(r.Context(), s.userID(r), r.PathValue("category")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getCurrency(w http.ResponseWriter, r *http.Request) {
	currency, err := s.store.GetCurrency(r.Context(), s.userID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, currency)
}

func (s *Server) setCurrency(w http.ResponseWriter, r *http.Request) {
	var body model.Currency
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.store.SetCurrency(r.Context(), s.userID(r), body); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, body)
}

func (s *Server) previewInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := s.invoices.Preview(r.Context(), s.userID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, inv)
}

func (s *Server) finalizeInvoice(w http.ResponseWriter, r *http.Request) {
	inv, artifact, err := s.invoices.Finalize(r.Context(), s.userID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.slog.Info("invoice finalized", "user", s.userID(r), "invoice", inv.ID, "lines", len(inv.Lines), "total", inv.GrandTotal)

	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "invoice-"+inv.ID+".csv"))
		_, _ = w.Write(artifact)
		return
	}
	writeJSON(w, inv)
}

func (s *Server) invoiceHistory(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.InvoiceHistory(r.Context(), s.userID(r), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, records)
}

func pathID(r *http.Request) (int64, error) {
	value := r.PathValue("id")
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, errors.Newf(errors.CodeInvalidInput, "invalid id %q", value)
	}
	return id, nil
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		return errors.Wrap(errors.CodeInvalidInput, "decode request body", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errors.CodeOf(err)
	status := statusForCode(code)
	if status >= http.StatusInternalServerError {
		s.slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Code  errors.Code `json:"code"`
		Error string      `json:"error"`
	}{Code: code, Error: err.Error()})
}

func statusForCode(code errors.Code) int {
	switch code {
	case errors.CodeInvalidInput, errors.CodeInvalidDuration, errors.CodeInvalidRate:
		return http.StatusBadRequest
	case errors.CodeTaskNotFound, errors.CodeEntryNotFound:
		return http.StatusNotFound
	case errors.CodeInvalidTransition, errors.CodeEntryAlreadyBilled, errors.CodeMissingRate, errors.CodeConcurrentModification:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
