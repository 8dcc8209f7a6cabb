package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/timmy/geoimport/internal/domain"
	"github.com/timmy/geoimport/internal/importer"
	"gorm.io/gorm"
)

// ImportRunRepository keeps the history of commit passes.
type ImportRunRepository struct {
	db *gorm.DB
}

// NewImportRunRepository creates a new ImportRunRepository.
func NewImportRunRepository(db *gorm.DB) *ImportRunRepository {
	return &ImportRunRepository{db: db}
}

// RecordRun appends a finished pass to the log.
func (r *ImportRunRepository) RecordRun(ctx context.Context, run *importer.RunSummary) error {
	record := &domain.ImportRun{
		ID:         uuid.NewString(),
		ContextID:  run.ContextID,
		State:      string(run.State),
		Committed:  run.Committed,
		Failed:     run.Failed,
		Blocked:    run.Blocked,
		Errors:     domain.StringArray(run.Errors),
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
	}
	return r.db.WithContext(ctx).Create(record).Error
}

// ListByContext retrieves the passes of one context, oldest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - contextID: import context ID.
//
// Returns:
//   - []domain.ImportRun: recorded passes.
//   - error: non-nil if the query fails.
func (r *ImportRunRepository) ListByContext(ctx context.Context, contextID int64) ([]domain.ImportRun, error) {
	var runs []domain.ImportRun
	if err := r.db.WithContext(ctx).
		Where("context_id = ?", contextID).
		Order("started_at").
		Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// ListRecent retrieves the latest passes across all contexts.
func (r *ImportRunRepository) ListRecent(ctx context.Context, limit int) ([]domain.ImportRun, error) {
	var runs []domain.ImportRun
	if err := r.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}
