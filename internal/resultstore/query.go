package resultstore

import (
	"context"
	"sort"

	"github.com/aristath/factorlab/internal/domain"
	"github.com/aristath/factorlab/internal/errs"
)

// SortField enumerates the columns user_factor_list may be ordered by.
type SortField string

const (
	SortUpdatedAt       SortField = "updated_at"
	SortCreatedAt       SortField = "created_at"
	SortReturnRatio     SortField = "return_ratio"
	SortSharpeRatio     SortField = "sharpe_ratio"
	SortMaximumDrawdown SortField = "maximum_drawdown"
	SortIC              SortField = "IC"
	SortIR              SortField = "IR"
)

var validSortFields = map[SortField]bool{
	SortUpdatedAt: true, SortCreatedAt: true, SortReturnRatio: true,
	SortSharpeRatio: true, SortMaximumDrawdown: true, SortIC: true, SortIR: true,
}

// SortOrder is ascending or descending.
type SortOrder string

const (
	OrderAsc  SortOrder = "asc"
	OrderDesc SortOrder = "desc"
)

// ListPage is the response shape for user_factor_list.
type ListPage struct {
	Data       []domain.Factor `json:"data"`
	Total      int             `json:"total"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
	TotalPages int             `json:"total_pages"`
}

// QuerySurface joins FactorStore, TaskStore and BundleStore to answer the
// listing and per-task artifact queries in the external interface.
type QuerySurface struct {
	factors *FactorStore
	tasks   *TaskStore
	bundles *BundleStore
}

// NewQuerySurface builds a QuerySurface over the three result stores.
func NewQuerySurface(factors *FactorStore, tasks *TaskStore, bundles *BundleStore) *QuerySurface {
	return &QuerySurface{factors: factors, tasks: tasks, bundles: bundles}
}

// List answers user_factor_list: paginated, server-side sorted by
// updated_at/created_at or a bundle-derived metric, with absent bundles
// defaulting to zero so every sort has a total order.
func (q *QuerySurface) List(ctx context.Context, userID string, page, pageSize int, sortField SortField, order SortOrder) (ListPage, error) {
	if page < 1 {
		return ListPage{}, errs.Validation("page must be >= 1, got %d", page)
	}
	if pageSize < 1 || pageSize > 100 {
		return ListPage{}, errs.Validation("page_size must be in [1,100], got %d", pageSize)
	}
	if !validSortFields[sortField] {
		return ListPage{}, errs.Validation("unknown sort_field %q", sortField)
	}
	if order != OrderAsc && order != OrderDesc {
		return ListPage{}, errs.Validation("sort_order must be asc or desc, got %q", order)
	}

	all, err := q.factors.ByUser(ctx, userID)
	if err != nil {
		return ListPage{}, err
	}

	keys := make([]float64, len(all))
	for i, f := range all {
		keys[i] = q.sortKey(ctx, f, sortField)
	}

	idx := make([]int, len(all))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ia, ib := idx[a], idx[b]
		if keys[ia] == keys[ib] {
			return ia < ib // stable tie-break on original order
		}
		if order == OrderAsc {
			return keys[ia] < keys[ib]
		}
		return keys[ia] > keys[ib]
	})

	total := len(all)
	totalPages := (total + pageSize - 1) / pageSize
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	data := make([]domain.Factor, 0, end-start)
	for _, i := range idx[start:end] {
		data = append(data, all[i])
	}

	return ListPage{Data: data, Total: total, Page: page, PageSize: pageSize, TotalPages: totalPages}, nil
}

func (q *QuerySurface) sortKey(ctx context.Context, f domain.Factor, field SortField) float64 {
	switch field {
	case SortUpdatedAt:
		return float64(f.UpdatedAt.UnixNano())
	case SortCreatedAt:
		return float64(f.CreatedAt.UnixNano())
	default:
		bundle := q.currentBundle(ctx, f)
		return bundle.Metric(string(field))
	}
}

// currentBundle resolves a factor's current result bundle, returning nil
// (for which Metric() reports zero) if the factor has no current task or
// the bundle hasn't been persisted yet.
func (q *QuerySurface) currentBundle(ctx context.Context, f domain.Factor) *domain.ResultBundle {
	if f.CurrentTaskID == "" {
		return nil
	}
	bundle, err := q.bundles.Get(ctx, f.CurrentTaskID)
	if err != nil || bundle == nil {
		return nil
	}
	return bundle
}
