package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/facturacr/einvoice-engine/internal/domain"
	"github.com/facturacr/einvoice-engine/internal/observability"
	"github.com/facturacr/einvoice-engine/internal/repository"
	"github.com/facturacr/einvoice-engine/internal/retry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxStoredErrorLength caps the persisted failure message.
const maxStoredErrorLength = 2000

// QueueStatistics aggregates the retry queue by entry state.
type QueueStatistics struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
	Total      int `json:"total"`
}

// RetryQueueService owns the durable retry queue: enqueueing classified
// failures, manual requeue and cancellation, and queue statistics.
type RetryQueueService struct {
	entries repository.RetryRepository
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

func NewRetryQueueService(entries repository.RetryRepository, logger *zap.Logger) (*RetryQueueService, error) {
	if entries == nil {
		return nil, fmt.Errorf("retry repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RetryQueueService{
		entries: entries,
		logger:  logger,
		now:     time.Now,
	}, nil
}

func (s *RetryQueueService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Enqueue records a deferred re-attempt for the failed operation. When an
// active entry already exists for the (document, operation) pair, it is
// refreshed in place instead of duplicated.
func (s *RetryQueueService) Enqueue(ctx context.Context, documentID string, op domain.Operation, cause error) (*domain.RetryEntry, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(documentID) == "" {
		return nil, fmt.Errorf("%w: document id is required", domain.ErrValidation)
	}
	if cause == nil {
		return nil, fmt.Errorf("%w: failure cause is required", domain.ErrValidation)
	}

	category := retry.CategoryOf(cause)
	now := s.now().UTC()

	entry := &domain.RetryEntry{
		ID:            uuid.NewString(),
		DocumentID:    documentID,
		Operation:     op,
		ErrorCategory: category,
		LastError:     truncateError(cause.Error()),
		State:         domain.EntryPending,
		RetryCount:    0,
		MaxRetries:    retry.MaxRetries(category),
		Priority:      priorityFor(op),
		NextAttemptAt: now.Add(retry.Delay(0, category)),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := entry.Validate(); err != nil {
		return nil, err
	}

	if err := s.entries.Upsert(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to enqueue retry entry: %w", err)
	}

	if s.metrics != nil {
		s.metrics.IncRetryScheduled(string(op))
	}
	s.logger.Info("retry scheduled",
		zap.String("documentId", documentID),
		zap.String("operation", string(op)),
		zap.String("category", string(category)),
		zap.Time("nextAttemptAt", entry.NextAttemptAt),
	)

	return entry, nil
}

func (s *RetryQueueService) GetByID(ctx context.Context, id string) (*domain.RetryEntry, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: entry id is required", domain.ErrValidation)
	}
	return s.entries.GetByID(ctx, strings.TrimSpace(id))
}

func (s *RetryQueueService) List(ctx context.Context, params repository.RetryListParams) ([]domain.RetryEntry, int64, error) {
	return s.entries.List(ctx, params)
}

// RetryNow makes a pending or failed entry immediately due.
func (s *RetryQueueService) RetryNow(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: entry id is required", domain.ErrValidation)
	}
	return s.entries.RetryNow(ctx, strings.TrimSpace(id), s.now().UTC())
}

// Cancel withdraws a non-completed entry from scheduling.
func (s *RetryQueueService) Cancel(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: entry id is required", domain.ErrValidation)
	}
	return s.entries.Cancel(ctx, strings.TrimSpace(id))
}

func (s *RetryQueueService) Statistics(ctx context.Context) (*QueueStatistics, error) {
	rows, err := s.entries.Stats(ctx)
	if err != nil {
		return nil, err
	}

	stats := &QueueStatistics{}
	for _, row := range rows {
		switch row.State {
		case domain.EntryPending:
			stats.Pending = row.Count
		case domain.EntryProcessing:
			stats.Processing = row.Count
		case domain.EntryCompleted:
			stats.Completed = row.Count
		case domain.EntryFailed:
			stats.Failed = row.Count
		case domain.EntryCancelled:
			stats.Cancelled = row.Count
		}
		stats.Total += row.Count
	}

	return stats, nil
}

// priorityFor ranks operations so submissions outrank status probes when the
// scheduler drains a backlog.
func priorityFor(op domain.Operation) int {
	switch op {
	case domain.OperationSubmit:
		return 3
	case domain.OperationSign:
		return 2
	default:
		return 1
	}
}

func truncateError(msg string) string {
	if len(msg) > maxStoredErrorLength {
		return msg[:maxStoredErrorLength]
	}
	return msg
}
