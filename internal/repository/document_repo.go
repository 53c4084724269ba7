package repository

import (
	"context"
	"errors"
	"time"

	"github.com/facturacr/einvoice-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ListParams struct {
	State        *domain.State
	DocumentType *domain.DocumentType
	From         *time.Time
	To           *time.Time
	Page         int
	PageSize     int
}

type DocumentRepository interface {
	Create(ctx context.Context, d *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	GetByClave(ctx context.Context, clave string) (*domain.Document, error)
	List(ctx context.Context, params ListParams) ([]domain.Document, int64, error)
	Update(ctx context.Context, d *domain.Document) error
	LockForOperation(ctx context.Context, id string) (*domain.Document, error)
	GetSubmitted(ctx context.Context, limit int) ([]domain.Document, error)
}

type GormDocumentRepo struct {
	db *gorm.DB
}

func NewGormDocumentRepo(db *gorm.DB) *GormDocumentRepo {
	return &GormDocumentRepo{db: db}
}

func (r *GormDocumentRepo) Create(ctx context.Context, d *domain.Document) error {
	model := documentModelFromDomain(d)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrConflict
		}
		return err
	}
	if d != nil {
		*d = *documentModelToDomain(model)
	}
	return nil
}

func (r *GormDocumentRepo) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	var model DocumentModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return documentModelToDomain(&model), nil
}

func (r *GormDocumentRepo) GetByClave(ctx context.Context, clave string) (*domain.Document, error) {
	var model DocumentModel
	err := r.db.WithContext(ctx).
		Where("clave = ?", clave).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return documentModelToDomain(&model), nil
}

func (r *GormDocumentRepo) List(ctx context.Context, params ListParams) ([]domain.Document, int64, error) {
	query := r.db.WithContext(ctx).Model(&DocumentModel{})

	if params.State != nil {
		query = query.Where("state = ?", *params.State)
	}
	if params.DocumentType != nil {
		query = query.Where("document_type = ?", *params.DocumentType)
	}
	if params.From != nil {
		query = query.Where("created_at >= ?", *params.From)
	}
	if params.To != nil {
		query = query.Where("created_at <= ?", *params.To)
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

	var models []DocumentModel
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	documents := make([]domain.Document, 0, len(models))
	for i := range models {
		documents = append(documents, *documentModelToDomain(&models[i]))
	}

	return documents, total, nil
}

func (r *GormDocumentRepo) Update(ctx context.Context, d *domain.Document) error {
	model := documentModelFromDomain(d)
	result := r.db.WithContext(ctx).
		Model(&DocumentModel{}).
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

// LockForOperation fetches the document with a row lock so lifecycle state
// transitions cannot interleave across workers.
func (r *GormDocumentRepo) LockForOperation(ctx context.Context, id string) (*domain.Document, error) {
	var model DocumentModel
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return documentModelToDomain(&model), nil
}

func (r *GormDocumentRepo) GetSubmitted(ctx context.Context, limit int) ([]domain.Document, error) {
	var models []DocumentModel
	err := r.db.WithContext(ctx).
		Where("state = ?", domain.StateSubmitted).
		Order("submitted_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	documents := make([]domain.Document, 0, len(models))
	for i := range models {
		documents = append(documents, *documentModelToDomain(&models[i]))
	}

	return documents, nil
}
