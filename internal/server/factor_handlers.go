package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/aristath/factorlab/internal/domain"
	"github.com/aristath/factorlab/internal/errs"
	"github.com/aristath/factorlab/internal/resultstore"
	"github.com/go-chi/chi/v5"
)

// createFactorRequest is the create_factor(body: FactorDef) request shape.
type createFactorRequest struct {
	UserID      string          `json:"user_id"`
	FactorName  string          `json:"factor_name"`
	DisplayName string          `json:"display_name"`
	Code        string          `json:"code"`
	CodeType    domain.CodeType `json:"code_type"`
	Params      domain.Params   `json:"params"`
}

// handleCreateFactor implements POST create_factor(body) -> {factor_id}.
func (s *Server) handleCreateFactor(w http.ResponseWriter, r *http.Request) {
	var req createFactorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errs.Validation("invalid request body: %v", err))
		return
	}
	req.Params.Normalize()

	f, err := s.factors.Create(r.Context(), domain.Factor{
		UserID: req.UserID, FactorName: req.FactorName, DisplayName: req.DisplayName,
		Code: req.Code, CodeType: req.CodeType, Params: req.Params,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeOK(w, map[string]string{"factor_id": f.FactorID})
}

// updateFactorRequest mirrors createFactorRequest for partial updates; every
// field is optional, and a field absent from the body (nil) leaves the
// factor's stored value untouched.
type updateFactorRequest struct {
	FactorName  *string          `json:"factor_name"`
	DisplayName *string          `json:"display_name"`
	Code        *string          `json:"code"`
	CodeType    *domain.CodeType `json:"code_type"`
	Params      *domain.Params   `json:"params"`
}

// handleUpdateFactor implements POST update_factor(factor_id, body) -> {factor_id}.
func (s *Server) handleUpdateFactor(w http.ResponseWriter, r *http.Request) {
	factorID := chi.URLParam(r, "factor_id")
	var req updateFactorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errs.Validation("invalid request body: %v", err))
		return
	}

	f, err := s.factors.Update(r.Context(), factorID, func(f *domain.Factor) error {
		if req.FactorName != nil {
			f.FactorName = *req.FactorName
		}
		if req.DisplayName != nil {
			f.DisplayName = *req.DisplayName
		}
		if req.Code != nil {
			f.Code = *req.Code
		}
		if req.CodeType != nil {
			f.CodeType = *req.CodeType
		}
		if req.Params != nil {
			req.Params.Normalize()
			f.Params = *req.Params
		}
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeOK(w, map[string]string{"factor_id": f.FactorID})
}

// handleDeleteFactor implements GET delete_factor(factor_id) -> ok|404.
func (s *Server) handleDeleteFactor(w http.ResponseWriter, r *http.Request) {
	factorID := chi.URLParam(r, "factor_id")
	f, err := s.factors.Get(r.Context(), factorID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if f == nil {
		s.writeError(w, errs.DataAvailability("factor %s not found", factorID))
		return
	}
	if err := s.factors.Delete(r.Context(), factorID); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeOK(w, map[string]string{"status": "ok"})
}

// handleQueryFactor implements GET query_factor(factor_id) -> FactorDef.
func (s *Server) handleQueryFactor(w http.ResponseWriter, r *http.Request) {
	factorID := chi.URLParam(r, "factor_id")
	f, err := s.factors.Get(r.Context(), factorID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if f == nil {
		s.writeError(w, errs.DataAvailability("factor %s not found", factorID))
		return
	}
	s.writeOK(w, f)
}

// handleQueryFactorStatus implements GET query_factor_status(factor_id) -> {status, task_id}.
func (s *Server) handleQueryFactorStatus(w http.ResponseWriter, r *http.Request) {
	factorID := chi.URLParam(r, "factor_id")
	f, err := s.factors.Get(r.Context(), factorID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if f == nil {
		s.writeError(w, errs.DataAvailability("factor %s not found", factorID))
		return
	}
	s.writeOK(w, map[string]any{"status": f.Status, "task_id": f.CurrentTaskID})
}

// handleUserFactorList implements GET user_factor_list(...) -> ListPage.
func (s *Server) handleUserFactorList(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	q := r.URL.Query()

	page := queryInt(q, "page", 1)
	pageSize := queryInt(q, "page_size", 20)
	sortField := resultstore.SortField(q.Get("sort_field"))
	if sortField == "" {
		sortField = resultstore.SortUpdatedAt
	}
	sortOrder := resultstore.SortOrder(q.Get("sort_order"))
	if sortOrder == "" {
		sortOrder = resultstore.OrderDesc
	}

	page2, err := s.query.List(r.Context(), userID, page, pageSize, sortField, sortOrder)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeOK(w, page2)
}

func queryInt(q map[string][]string, key string, def int) int {
	vals, ok := q[key]
	if !ok || len(vals) == 0 || vals[0] == "" {
		return def
	}
	n, err := strconv.Atoi(vals[0])
	if err != nil {
		return def
	}
	return n
}
