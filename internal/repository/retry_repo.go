package repository

import (
	"context"
	"errors"
	"time"

	"github.com/facturacr/einvoice-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RetryListParams struct {
	State      *domain.EntryState
	Operation  *domain.Operation
	DocumentID *string
	Page       int
	PageSize   int
}

type QueueStats struct {
	State domain.EntryState `gorm:"column:state"`
	Count int               `gorm:"column:count"`
}

type RetryRepository interface {
	Upsert(ctx context.Context, e *domain.RetryEntry) error
	GetByID(ctx context.Context, id string) (*domain.RetryEntry, error)
	GetActive(ctx context.Context, documentID string, op domain.Operation) (*domain.RetryEntry, error)
	List(ctx context.Context, params RetryListParams) ([]domain.RetryEntry, int64, error)
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.RetryEntry, error)
	Update(ctx context.Context, e *domain.RetryEntry) error
	MarkState(ctx context.Context, id string, state domain.EntryState) error
	RetryNow(ctx context.Context, id string, now time.Time) error
	Cancel(ctx context.Context, id string) error
	PurgeTerminalOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	Stats(ctx context.Context) ([]QueueStats, error)
}

type GormRetryRepo struct {
	db *gorm.DB
}

func NewGormRetryRepo(db *gorm.DB) *GormRetryRepo {
	return &GormRetryRepo{db: db}
}

// Upsert inserts a new entry or, when an active entry already holds the
// (document_id, operation) slot, refreshes that entry's error_category,
// last_error and priority in place. The retained entry keeps its id, state,
// retry_count and next_attempt_at so an in-flight or backed-off slot is never
// rescheduled by a concurrent enqueue. The partial unique index on active
// entries makes the operation race-free across concurrent enqueuers; RETURNING
// reads the retained row back into e.
func (r *GormRetryRepo) Upsert(ctx context.Context, e *domain.RetryEntry) error {
	model := retryEntryModelFromDomain(e)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "document_id"}, {Name: "operation"}},
			TargetWhere: clause.Where{Exprs: []clause.Expression{
				gorm.Expr("state IN ?", []domain.EntryState{domain.EntryPending, domain.EntryProcessing}),
			}},
			DoUpdates: clause.Assignments(map[string]any{
				"error_category": model.ErrorCategory,
				"last_error":     model.LastError,
				"priority":       model.Priority,
				"updated_at":     model.UpdatedAt,
			}),
		}, clause.Returning{}).
		Create(model).Error
	if err != nil {
		return err
	}
	if e != nil {
		*e = *retryEntryModelToDomain(model)
	}
	return nil
}

func (r *GormRetryRepo) GetByID(ctx context.Context, id string) (*domain.RetryEntry, error) {
	var model RetryEntryModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return retryEntryModelToDomain(&model), nil
}

func (r *GormRetryRepo) GetActive(ctx context.Context, documentID string, op domain.Operation) (*domain.RetryEntry, error) {
	var model RetryEntryModel
	err := r.db.WithContext(ctx).
		Where("document_id = ? AND operation = ? AND state IN ?",
			documentID, op, []domain.EntryState{domain.EntryPending, domain.EntryProcessing}).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return retryEntryModelToDomain(&model), nil
}

func (r *GormRetryRepo) List(ctx context.Context, params RetryListParams) ([]domain.RetryEntry, int64, error) {
	query := r.db.WithContext(ctx).Model(&RetryEntryModel{})

	if params.State != nil {
		query = query.Where("state = ?", *params.State)
	}
	if params.Operation != nil {
		query = query.Where("operation = ?", *params.Operation)
	}
	if params.DocumentID != nil {
		query = query.Where("document_id = ?", *params.DocumentID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	var models []RetryEntryModel
	err := query.
		Order("next_attempt_at ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	entries := make([]domain.RetryEntry, 0, len(models))
	for i := range models {
		entries = append(entries, *retryEntryModelToDomain(&models[i]))
	}

	return entries, total, nil
}

// ClaimDue atomically moves due pending entries to PROCESSING and returns
// them. SKIP LOCKED keeps competing scanners from blocking on each other.
func (r *GormRetryRepo) ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.RetryEntry, error) {
	var models []RetryEntryModel

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("state = ? AND next_attempt_at <= ?", domain.EntryPending, now).
			Order("priority DESC, next_attempt_at ASC").
			Limit(limit).
			Find(&models).Error
		if err != nil {
			return err
		}
		if len(models) == 0 {
			return nil
		}

		ids := make([]string, 0, len(models))
		for i := range models {
			ids = append(ids, models[i].ID)
		}

		return tx.
			Model(&RetryEntryModel{}).
			Where("id IN ?", ids).
			Updates(map[string]any{
				"state":           domain.EntryProcessing,
				"last_attempt_at": now,
			}).Error
	})
	if err != nil {
		return nil, err
	}

	entries := make([]domain.RetryEntry, 0, len(models))
	for i := range models {
		m := models[i]
		m.State = domain.EntryProcessing
		m.LastAttemptAt = &now
		entries = append(entries, *retryEntryModelToDomain(&m))
	}

	return entries, nil
}

func (r *GormRetryRepo) Update(ctx context.Context, e *domain.RetryEntry) error {
	model := retryEntryModelFromDomain(e)
	result := r.db.WithContext(ctx).
		Model(&RetryEntryModel{}).
		Where("id = ?", model.ID).
		Select("*").
		Omit("id", "created_at").
		Updates(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormRetryRepo) MarkState(ctx context.Context, id string, state domain.EntryState) error {
	result := r.db.WithContext(ctx).
		Model(&RetryEntryModel{}).
		Where("id = ?", id).
		Update("state", state)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// RetryNow makes a pending or failed entry immediately due. A failed entry
// re-enters the queue as pending.
func (r *GormRetryRepo) RetryNow(ctx context.Context, id string, now time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&RetryEntryModel{}).
		Where("id = ? AND state IN ?", id, []domain.EntryState{domain.EntryPending, domain.EntryFailed}).
		Updates(map[string]any{
			"state":           domain.EntryPending,
			"next_attempt_at": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormRetryRepo) Cancel(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&RetryEntryModel{}).
		Where("id = ? AND state IN ?", id,
			[]domain.EntryState{domain.EntryPending, domain.EntryProcessing, domain.EntryFailed}).
		Update("state", domain.EntryCancelled)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormRetryRepo) PurgeTerminalOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("state IN ? AND updated_at < ?",
			[]domain.EntryState{domain.EntryCompleted, domain.EntryFailed, domain.EntryCancelled}, cutoff).
		Delete(&RetryEntryModel{})
	return result.RowsAffected, result.Error
}

func (r *GormRetryRepo) Stats(ctx context.Context) ([]QueueStats, error) {
	var stats []QueueStats
	err := r.db.WithContext(ctx).
		Model(&RetryEntryModel{}).
		Select("state, COUNT(*) as count").
		Group("state").
		Scan(&stats).Error
	if err != nil {
		return nil, err
	}
	return stats, nil
}
