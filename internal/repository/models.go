package repository

import (
	"time"

	"github.com/facturacr/einvoice-engine/internal/domain"
)

// DocumentModel is the persistence model for the einvoice_documents table.
type DocumentModel struct {
	ID           string              `gorm:"type:uuid;primaryKey"`
	DocumentType domain.DocumentType `gorm:"type:varchar(2);not null"`
	State        domain.State        `gorm:"type:varchar(20);not null"`

	Clave             string `gorm:"type:varchar(50)"`
	ConsecutiveNumber string `gorm:"type:varchar(20)"`

	IssuerID   string `gorm:"type:varchar(20);not null"`
	ReceiverID string `gorm:"type:varchar(20)"`

	LocationCode   string `gorm:"type:varchar(5);not null"`
	TerminalCode   string `gorm:"type:varchar(3);not null;default:'001'"`
	SequenceNumber int64  `gorm:"not null"`
	SituationCode  string `gorm:"type:varchar(1);not null;default:'1'"`
	IssuedAt       time.Time

	UnsignedBody string `gorm:"type:text"`
	SignedBody   string `gorm:"type:text"`

	ProviderResponse string                 `gorm:"type:text"`
	CanonicalStatus  domain.CanonicalStatus `gorm:"type:varchar(12)"`
	ProviderMessage  string                 `gorm:"type:text"`

	SubmittedAt *time.Time
	AcceptedAt  *time.Time

	RetryCount       int    `gorm:"not null;default:0"`
	LastErrorMessage string `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (DocumentModel) TableName() string {
	return "einvoice_documents"
}

// RetryEntryModel is the persistence model for einvoice_retry_queue.
type RetryEntryModel struct {
	ID         string           `gorm:"type:uuid;primaryKey"`
	DocumentID string           `gorm:"type:uuid;not null"`
	Operation  domain.Operation `gorm:"type:varchar(20);not null"`

	ErrorCategory domain.ErrorCategory `gorm:"type:varchar(12);not null"`
	LastError     string               `gorm:"type:text"`

	State      domain.EntryState `gorm:"type:varchar(12);not null"`
	RetryCount int               `gorm:"not null;default:0"`
	MaxRetries int               `gorm:"not null"`
	Priority   int               `gorm:"not null;default:1"`

	LastAttemptAt *time.Time
	NextAttemptAt time.Time `gorm:"not null"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (RetryEntryModel) TableName() string {
	return "einvoice_retry_queue"
}

func documentModelFromDomain(d *domain.Document) *DocumentModel {
	if d == nil {
		return nil
	}

	return &DocumentModel{
		ID:                d.ID,
		DocumentType:      d.DocumentType,
		State:             d.State,
		Clave:             d.Clave,
		ConsecutiveNumber: d.ConsecutiveNumber,
		IssuerID:          d.IssuerID,
		ReceiverID:        d.ReceiverID,
		LocationCode:      d.LocationCode,
		TerminalCode:      d.TerminalCode,
		SequenceNumber:    d.SequenceNumber,
		SituationCode:     d.SituationCode,
		IssuedAt:          d.IssuedAt,
		UnsignedBody:      d.UnsignedBody,
		SignedBody:        d.SignedBody,
		ProviderResponse:  d.ProviderResponse,
		CanonicalStatus:   d.CanonicalStatus,
		ProviderMessage:   d.ProviderMessage,
		SubmittedAt:       d.SubmittedAt,
		AcceptedAt:        d.AcceptedAt,
		RetryCount:        d.RetryCount,
		LastErrorMessage:  d.LastErrorMessage,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}

func documentModelToDomain(m *DocumentModel) *domain.Document {
	if m == nil {
		return nil
	}

	return &domain.Document{
		ID:                m.ID,
		DocumentType:      m.DocumentType,
		State:             m.State,
		Clave:             m.Clave,
		ConsecutiveNumber: m.ConsecutiveNumber,
		IssuerID:          m.IssuerID,
		ReceiverID:        m.ReceiverID,
		LocationCode:      m.LocationCode,
		TerminalCode:      m.TerminalCode,
		SequenceNumber:    m.SequenceNumber,
		SituationCode:     m.SituationCode,
		IssuedAt:          m.IssuedAt,
		UnsignedBody:      m.UnsignedBody,
		SignedBody:        m.SignedBody,
		ProviderResponse:  m.ProviderResponse,
		CanonicalStatus:   m.CanonicalStatus,
		ProviderMessage:   m.ProviderMessage,
		SubmittedAt:       m.SubmittedAt,
		AcceptedAt:        m.AcceptedAt,
		RetryCount:        m.RetryCount,
		LastErrorMessage:  m.LastErrorMessage,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func retryEntryModelFromDomain(e *domain.RetryEntry) *RetryEntryModel {
	if e == nil {
		return nil
	}

	return &RetryEntryModel{
		ID:            e.ID,
		DocumentID:    e.DocumentID,
		Operation:     e.Operation,
		ErrorCategory: e.ErrorCategory,
		LastError:     e.LastError,
		State:         e.State,
		RetryCount:    e.RetryCount,
		MaxRetries:    e.MaxRetries,
		Priority:      e.Priority,
		LastAttemptAt: e.LastAttemptAt,
		NextAttemptAt: e.NextAttemptAt,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
}

func retryEntryModelToDomain(m *RetryEntryModel) *domain.RetryEntry {
	if m == nil {
		return nil
	}

	return &domain.RetryEntry{
		ID:            m.ID,
		DocumentID:    m.DocumentID,
		Operation:     m.Operation,
		ErrorCategory: m.ErrorCategory,
		LastError:     m.LastError,
		State:         m.State,
		RetryCount:    m.RetryCount,
		MaxRetries:    m.MaxRetries,
		Priority:      m.Priority,
		LastAttemptAt: m.LastAttemptAt,
		NextAttemptAt: m.NextAttemptAt,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}
