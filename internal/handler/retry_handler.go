package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/facturacr/einvoice-engine/internal/domain"
	"github.com/facturacr/einvoice-engine/internal/repository"
	"github.com/facturacr/einvoice-engine/internal/service"
	"github.com/gofiber/fiber/v2"
)

type RetryQueueService interface {
	GetByID(ctx context.Context, id string) (*domain.RetryEntry, error)
	List(ctx context.Context, params repository.RetryListParams) ([]domain.RetryEntry, int64, error)
	RetryNow(ctx context.Context, id string) error
	Cancel(ctx context.Context, id string) error
	Statistics(ctx context.Context) (*service.QueueStatistics, error)
}

type RetryHandler struct {
	service RetryQueueService
}

func NewRetryHandler(service RetryQueueService) (*RetryHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("retry queue service is required")
	}
	return &RetryHandler{service: service}, nil
}

func RegisterRetryRoutes(router fiber.Router, service RetryQueueService) error {
	h, err := NewRetryHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/retry-queue", h.ListEntries)
	v1.Get("/retry-queue/stats", h.QueueStats)
	v1.Get("/retry-queue/:id", h.GetEntry)
	v1.Post("/retry-queue/:id/retry-now", h.RetryNow)
	v1.Post("/retry-queue/:id/cancel", h.CancelEntry)

	return nil
}

type retryEntryResponse struct {
	ID            string     `json:"id"`
	DocumentID    string     `json:"documentId"`
	Operation     string     `json:"operation"`
	ErrorCategory string     `json:"errorCategory"`
	LastError     string     `json:"lastError,omitempty"`
	State         string     `json:"state"`
	RetryCount    int        `json:"retryCount"`
	MaxRetries    int        `json:"maxRetries"`
	Priority      int        `json:"priority"`
	LastAttemptAt *time.Time `json:"lastAttemptAt,omitempty"`
	NextAttemptAt time.Time  `json:"nextAttemptAt"`
	CreatedAt     time.Time  `json:"createdAt,omitempty"`
	UpdatedAt     time.Time  `json:"updatedAt,omitempty"`
}

type listRetryEntriesResponse struct {
	Data []retryEntryResponse `json:"data"`
	Meta listMeta             `json:"meta"`
}

func (h *RetryHandler) ListEntries(c *fiber.Ctx) error {
	params, err := parseRetryListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	entries, total, err := h.service.List(c.Context(), params)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(listRetryEntriesResponse{
		Data: toRetryEntryResponses(entries),
		Meta: listMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	})
}

func (h *RetryHandler) GetEntry(c *fiber.Ctx) error {
	entry, err := h.service.GetByID(c.Context(), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toRetryEntryResponse(entry))
}

func (h *RetryHandler) QueueStats(c *fiber.Ctx) error {
	stats, err := h.service.Statistics(c.Context())
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(stats)
}

func (h *RetryHandler) RetryNow(c *fiber.Ctx) error {
	if err := h.service.RetryNow(c.Context(), strings.TrimSpace(c.Params("id"))); err != nil {
		return toHTTPError(err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *RetryHandler) CancelEntry(c *fiber.Ctx) error {
	if err := h.service.Cancel(c.Context(), strings.TrimSpace(c.Params("id"))); err != nil {
		return toHTTPError(err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func parseRetryListParams(c *fiber.Ctx) (repository.RetryListParams, error) {
	params := repository.RetryListParams{
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
	}

	if params.Page < 1 {
		return repository.RetryListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.RetryListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if rawState := strings.TrimSpace(c.Query("state")); rawState != "" {
		state, err := domain.ParseEntryStateFromString(rawState)
		if err != nil {
			return repository.RetryListParams{}, err
		}
		params.State = &state
	}

	if rawOp := strings.TrimSpace(c.Query("operation")); rawOp != "" {
		op, err := domain.ParseOperationFromString(rawOp)
		if err != nil {
			return repository.RetryListParams{}, err
		}
		params.Operation = &op
	}

	if documentID := strings.TrimSpace(c.Query("documentId")); documentID != "" {
		params.DocumentID = &documentID
	}

	return params, nil
}

func toRetryEntryResponses(entries []domain.RetryEntry) []retryEntryResponse {
	responses := make([]retryEntryResponse, 0, len(entries))
	for _, entry := range entries {
		e := entry
		responses = append(responses, toRetryEntryResponse(&e))
	}
	return responses
}

func toRetryEntryResponse(e *domain.RetryEntry) retryEntryResponse {
	if e == nil {
		return retryEntryResponse{}
	}

	return retryEntryResponse{
		ID:            e.ID,
		DocumentID:    e.DocumentID,
		Operation:     e.Operation.String(),
		ErrorCategory: e.ErrorCategory.String(),
		LastError:     e.LastError,
		State:         e.State.String(),
		RetryCount:    e.RetryCount,
		MaxRetries:    e.MaxRetries,
		Priority:      e.Priority,
		LastAttemptAt: e.LastAttemptAt,
		NextAttemptAt: e.NextAttemptAt,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
}
