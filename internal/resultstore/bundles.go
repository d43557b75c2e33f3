package resultstore

import (
	"context"

	"github.com/aristath/factorlab/internal/domain"
	"github.com/aristath/factorlab/internal/store"
)

// BundleStore persists factor_analysis_results: one document per task_id,
// written exactly once at stage 8. Absence of a document means the task
// never reached stage 8 (still running, or failed).
type BundleStore struct {
	bundles *store.Collection
}

// NewBundleStore opens (creating if necessary) the factor_analysis_results
// collection.
func NewBundleStore(db *store.DB) (*BundleStore, error) {
	bundles, err := store.NewCollection(db, "factor_analysis_results", []store.IndexedColumn{
		{Name: "task_id", Type: "TEXT"},
	})
	if err != nil {
		return nil, err
	}
	return &BundleStore{bundles: bundles}, nil
}

// Put persists the bundle, overwriting any prior write for the same
// task_id. The job runtime calls this exactly once, at stage 8.
func (s *BundleStore) Put(_ context.Context, bundle domain.ResultBundle) error {
	return s.bundles.Put([]any{bundle.TaskID}, bundle)
}

// Get fetches a bundle by task_id, returning nil if absent.
func (s *BundleStore) Get(_ context.Context, taskID string) (*domain.ResultBundle, error) {
	var b domain.ResultBundle
	ok, err := s.bundles.Get(taskID, &b)
	if err != nil || !ok {
		return nil, err
	}
	return &b, nil
}
