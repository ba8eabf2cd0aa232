package server

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/robotnikz/sunflow/pkg/log"
	"github.com/robotnikz/sunflow/pkg/storage"
	"github.com/robotnikz/sunflow/pkg/types"
)

var dateOnlyPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

func validDateOnly(v string) bool {
	if !dateOnlyPattern.MatchString(v) {
		return false
	}
	_, err := time.Parse("2006-01-02", v)
	return err == nil
}

func validAmount(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

func (s *Server) handleListTariffs(w http.ResponseWriter, r *http.Request) {
	tariffs, err := s.storage.GetTariffs(r.Context())
	if err != nil {
		log.Ctx(r.Context()).ErrorContext(r.Context(), "listing tariffs failed", "error", err)
		writeJSONError(w, "failed to list tariffs", http.StatusInternalServerError)
		return
	}
	writeJSON(w, tariffs)
}

func (s *Server) handleAddTariff(w http.ResponseWriter, r *http.Request) {
	var t types.Tariff
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeJSONError(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	if !validDateOnly(t.ValidFrom) || !validAmount(t.CostKWH) || !validAmount(t.FeedInKWH) {
		writeJSONError(w, "invalid tariff", http.StatusBadRequest)
		return
	}

	id, err := s.storage.AddTariff(r.Context(), t)
	if err != nil {
		log.Ctx(r.Context()).ErrorContext(r.Context(), "adding tariff failed", "error", err)
		writeJSONError(w, "failed to add tariff", http.StatusInternalServerError)
		return
	}
	writeJSON(w, struct {
		ID      int64 `json:"id"`
		Success bool  `json:"success"`
	}{ID: id, Success: true})
}

func (s *Server) handleDeleteTariff(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSONError(w, "invalid id", http.StatusBadRequest)
		return
	}

	err := s.storage.DeleteTariff(r.Context(), id)
	switch {
	case errors.Is(err, storage.ErrLastTariff):
		writeJSONError(w, "cannot delete the last tariff", http.StatusBadRequest)
	case errors.Is(err, storage.ErrTariffNotFound):
		writeJSONError(w, "tariff not found", http.StatusNotFound)
	case err != nil:
		log.Ctx(r.Context()).ErrorContext(r.Context(), "deleting tariff failed", "error", err)
		writeJSONError(w, "failed to delete tariff", http.StatusInternalServerError)
	default:
		writeJSON(w, struct {
			Success bool `json:"success"`
		}{Success: true})
	}
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, err := s.storage.GetExpenses(r.Context())
	if err != nil {
		log.Ctx(r.Context()).ErrorContext(r.Context(), "listing expenses failed", "error", err)
		writeJSONError(w, "failed to list expenses", http.StatusInternalServerError)
		return
	}
	writeJSON(w, expenses)
}

func (s *Server) handleAddExpense(w http.ResponseWriter, r *http.Request) {
	var e types.Expense
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		writeJSONError(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	if e.Name == "" || !validDateOnly(e.Date) || !validAmount(e.Amount) ||
		(e.Type != types.ExpenseOneTime && e.Type != types.ExpenseYearly) {
		writeJSONError(w, "invalid expense", http.StatusBadRequest)
		return
	}

	id, err := s.storage.AddExpense(r.Context(), e)
	if err != nil {
		log.Ctx(r.Context()).ErrorContext(r.Context(), "adding expense failed", "error", err)
		writeJSONError(w, "failed to add expense", http.StatusInternalServerError)
		return
	}
	writeJSON(w, struct {
		ID      int64 `json:"id"`
		Success bool  `json:"success"`
	}{ID: id, Success: true})
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSONError(w, "invalid id", http.StatusBadRequest)
		return
	}

	err := s.storage.DeleteExpense(r.Context(), id)
	switch {
	case errors.Is(err, storage.ErrExpenseNotFound):
		writeJSONError(w, "expense not found", http.StatusNotFound)
	case err != nil:
		log.Ctx(r.Context()).ErrorContext(r.Context(), "deleting expense failed", "error", err)
		writeJSONError(w, "failed to delete expense", http.StatusInternalServerError)
	default:
		writeJSON(w, struct {
			Success bool `json:"success"`
		}{Success: true})
	}
}
