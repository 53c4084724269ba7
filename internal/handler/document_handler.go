package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/facturacr/einvoice-engine/internal/domain"
	"github.com/facturacr/einvoice-engine/internal/repository"
	"github.com/facturacr/einvoice-engine/internal/service"
	"github.com/gofiber/fiber/v2"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 100
)

type DocumentService interface {
	CreateDraft(ctx context.Context, doc *domain.Document) (*domain.Document, error)
	Generate(ctx context.Context, id string, params service.GenerateParams) (*domain.Document, error)
	Sign(ctx context.Context, id string) (*domain.Document, error)
	Submit(ctx context.Context, id string) (*domain.Document, error)
	CheckStatus(ctx context.Context, id string) (*domain.Document, error)
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	List(ctx context.Context, params repository.ListParams) ([]domain.Document, int64, error)
}

type DocumentHandler struct {
	service DocumentService
}

func NewDocumentHandler(service DocumentService) (*DocumentHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("document service is required")
	}
	return &DocumentHandler{service: service}, nil
}

func RegisterDocumentRoutes(router fiber.Router, service DocumentService) error {
	h, err := NewDocumentHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/documents", h.CreateDocument)
	v1.Post("/documents/:id/generate", h.GenerateDocument)
	v1.Post("/documents/:id/sign", h.SignDocument)
	v1.Post("/documents/:id/submit", h.SubmitDocument)
	v1.Post("/documents/:id/status-check", h.CheckDocumentStatus)
	v1.Get("/documents/:id", h.GetDocument)
	v1.Get("/documents", h.ListDocuments)

	return nil
}

type createDocumentRequest struct {
	DocumentType   string `json:"documentType"`
	IssuerID       string `json:"issuerId"`
	ReceiverID     string `json:"receiverId"`
	LocationCode   string `json:"locationCode"`
	TerminalCode   string `json:"terminalCode"`
	SequenceNumber int64  `json:"sequenceNumber"`
	SituationCode  string `json:"situationCode"`
	IssuedAt       string `json:"issuedAt"`
}

type generateDocumentRequest struct {
	IssuerName      string `json:"issuerName"`
	IssuerEmail     string `json:"issuerEmail"`
	ReceiverName    string `json:"receiverName"`
	ReceiverEmail   string `json:"receiverEmail"`
	ActivityCode    string `json:"activityCode"`
	ReferencedClave string `json:"referencedClave"`
}

type documentResponse struct {
	ID                string     `json:"id"`
	DocumentType      string     `json:"documentType"`
	State             string     `json:"state"`
	Clave             string     `json:"clave,omitempty"`
	ConsecutiveNumber string     `json:"consecutiveNumber,omitempty"`
	IssuerID          string     `json:"issuerId"`
	ReceiverID        string     `json:"receiverId,omitempty"`
	LocationCode      string     `json:"locationCode"`
	TerminalCode      string     `json:"terminalCode"`
	SequenceNumber    int64      `json:"sequenceNumber"`
	CanonicalStatus   string     `json:"canonicalStatus,omitempty"`
	ProviderMessage   string     `json:"providerMessage,omitempty"`
	LastErrorMessage  string     `json:"lastErrorMessage,omitempty"`
	RetryCount        int        `json:"retryCount"`
	IssuedAt          time.Time  `json:"issuedAt,omitempty"`
	SubmittedAt       *time.Time `json:"submittedAt,omitempty"`
	AcceptedAt        *time.Time `json:"acceptedAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt,omitempty"`
	UpdatedAt         time.Time  `json:"updatedAt,omitempty"`
}

type listDocumentsResponse struct {
	Data []documentResponse `json:"data"`
	Meta listMeta           `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

func (h *DocumentHandler) CreateDocument(c *fiber.Ctx) error {
	var req createDocumentRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	doc, err := requestToDomainDocument(req)
	if err != nil {
		return toHTTPError(err)
	}

	created, err := h.service.CreateDraft(c.Context(), &doc)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toDocumentResponse(created))
}

func (h *DocumentHandler) GenerateDocument(c *fiber.Ctx) error {
	var req generateDocumentRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}

	doc, err := h.service.Generate(c.Context(), strings.TrimSpace(c.Params("id")), service.GenerateParams{
		IssuerName:      strings.TrimSpace(req.IssuerName),
		IssuerEmail:     strings.TrimSpace(req.IssuerEmail),
		ReceiverName:    strings.TrimSpace(req.ReceiverName),
		ReceiverEmail:   strings.TrimSpace(req.ReceiverEmail),
		ActivityCode:    strings.TrimSpace(req.ActivityCode),
		ReferencedClave: strings.TrimSpace(req.ReferencedClave),
	})
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toDocumentResponse(doc))
}

func (h *DocumentHandler) SignDocument(c *fiber.Ctx) error {
	doc, err := h.service.Sign(c.Context(), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toDocumentResponse(doc))
}

func (h *DocumentHandler) SubmitDocument(c *fiber.Ctx) error {
	doc, err := h.service.Submit(c.Context(), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(toDocumentResponse(doc))
}

func (h *DocumentHandler) CheckDocumentStatus(c *fiber.Ctx) error {
	doc, err := h.service.CheckStatus(c.Context(), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toDocumentResponse(doc))
}

func (h *DocumentHandler) GetDocument(c *fiber.Ctx) error {
	doc, err := h.service.GetByID(c.Context(), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toDocumentResponse(doc))
}

func (h *DocumentHandler) ListDocuments(c *fiber.Ctx) error {
	params, err := parseListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	documents, total, err := h.service.List(c.Context(), params)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(listDocumentsResponse{
		Data: toDocumentResponses(documents),
		Meta: listMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	})
}

func parseListParams(c *fiber.Ctx) (repository.ListParams, error) {
	params := repository.ListParams{
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
	}

	if params.Page < 1 {
		return repository.ListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.ListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if rawState := strings.TrimSpace(c.Query("state")); rawState != "" {
		state, err := domain.ParseStateFromString(rawState)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.State = &state
	}

	if rawType := strings.TrimSpace(c.Query("documentType")); rawType != "" {
		docType, err := domain.ParseDocumentTypeFromString(rawType)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.DocumentType = &docType
	}

	from, err := parseRFC3339Query(c.Query("from"), "from")
	if err != nil {
		return repository.ListParams{}, err
	}
	to, err := parseRFC3339Query(c.Query("to"), "to")
	if err != nil {
		return repository.ListParams{}, err
	}
	params.From = from
	params.To = to

	return params, nil
}

func parseRFC3339Query(value string, field string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC3339", domain.ErrValidation, field)
	}
	return &t, nil
}

func requestToDomainDocument(req createDocumentRequest) (domain.Document, error) {
	docType, err := domain.ParseDocumentTypeFromString(req.DocumentType)
	if err != nil {
		return domain.Document{}, err
	}

	doc := domain.Document{
		DocumentType:   docType,
		IssuerID:       strings.TrimSpace(req.IssuerID),
		ReceiverID:     strings.TrimSpace(req.ReceiverID),
		LocationCode:   strings.TrimSpace(req.LocationCode),
		TerminalCode:   strings.TrimSpace(req.TerminalCode),
		SequenceNumber: req.SequenceNumber,
		SituationCode:  strings.TrimSpace(req.SituationCode),
	}

	if raw := strings.TrimSpace(req.IssuedAt); raw != "" {
		issuedAt, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return domain.Document{}, fmt.Errorf("%w: issuedAt must be RFC3339", domain.ErrValidation)
		}
		doc.IssuedAt = issuedAt
	}

	return doc, nil
}

func toDocumentResponses(documents []domain.Document) []documentResponse {
	responses := make([]documentResponse, 0, len(documents))
	for _, doc := range documents {
		d := doc
		responses = append(responses, toDocumentResponse(&d))
	}
	return responses
}

func toDocumentResponse(d *domain.Document) documentResponse {
	if d == nil {
		return documentResponse{}
	}

	return documentResponse{
		ID:                d.ID,
		DocumentType:      d.DocumentType.String(),
		State:             d.State.String(),
		Clave:             d.Clave,
		ConsecutiveNumber: d.ConsecutiveNumber,
		IssuerID:          d.IssuerID,
		ReceiverID:        d.ReceiverID,
		LocationCode:      d.LocationCode,
		TerminalCode:      d.TerminalCode,
		SequenceNumber:    d.SequenceNumber,
		CanonicalStatus:   string(d.CanonicalStatus),
		ProviderMessage:   d.ProviderMessage,
		LastErrorMessage:  d.LastErrorMessage,
		RetryCount:        d.RetryCount,
		IssuedAt:          d.IssuedAt,
		SubmittedAt:       d.SubmittedAt,
		AcceptedAt:        d.AcceptedAt,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrState):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
