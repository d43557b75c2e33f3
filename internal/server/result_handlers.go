package server

import (
	"net/http"

	"github.com/aristath/factorlab/internal/domain"
	"github.com/aristath/factorlab/internal/errs"
	"github.com/go-chi/chi/v5"
)

// bundleFieldExtractors maps each query_{...}(task_id) endpoint name to the
// result bundle field it returns. Every entry here gets its own route in
// setupRoutes, so adding a bundle field and an extractor is the only wiring
// a new chart endpoint needs.
var bundleFieldExtractors = map[string]func(*domain.ResultBundle) any{
	"return_chart":                 func(b *domain.ResultBundle) any { return b.ReturnChart },
	"simple_return_chart":          func(b *domain.ResultBundle) any { return b.SimpleReturnChart },
	"excess_chart":                 func(b *domain.ResultBundle) any { return b.ExcessChart },
	"factor_analysis_data":         func(b *domain.ResultBundle) any { return b.FactorDataAnalysis },
	"group_return_analysis":        func(b *domain.ResultBundle) any { return b.GroupReturnAnalysis },
	"ic_decay_chart":               func(b *domain.ResultBundle) any { return b.ICDecayChart },
	"ic_density_chart":             func(b *domain.ResultBundle) any { return b.ICDensityChart },
	"ic_self_correlation_chart":    func(b *domain.ResultBundle) any { return b.ICSelfCorrelationChart },
	"ic_sequence_chart":            func(b *domain.ResultBundle) any { return b.ICSeriesChart },
	"ic_summary":                   func(b *domain.ResultBundle) any { return b.ICSummary },
	"rank_ic_decay_chart":          func(b *domain.ResultBundle) any { return b.RankICDecayChart },
	"rank_ic_density_chart":        func(b *domain.ResultBundle) any { return b.RankICDensityChart },
	"rank_ic_self_correlation_chart": func(b *domain.ResultBundle) any { return b.RankICSelfCorrelationChart },
	"rank_ic_sequence_chart":       func(b *domain.ResultBundle) any { return b.RankICSeriesChart },
	"rank_ic_summary":              func(b *domain.ResultBundle) any { return b.RankICSummary },
	"last_date_top_factor":         func(b *domain.ResultBundle) any { return b.LastDateTopFactor },
	"one_group_data":               func(b *domain.ResultBundle) any { return b.OneGroupData },
}

// handleBundleField returns a handler for one query_{...}(task_id) endpoint:
// fetch the bundle, 404 if absent, extract the named field.
func (s *Server) handleBundleField(extract func(*domain.ResultBundle) any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID := chi.URLParam(r, "task_id")
		bundle, err := s.bundles.Get(r.Context(), taskID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if bundle == nil {
			s.writeError(w, errs.DataAvailability("result bundle for task %s not found", taskID))
			return
		}
		s.writeOK(w, extract(bundle))
	}
}
