package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/facturacr/einvoice-engine/internal/clave"
	"github.com/facturacr/einvoice-engine/internal/domain"
	"github.com/facturacr/einvoice-engine/internal/hacienda"
	"github.com/facturacr/einvoice-engine/internal/observability"
	"github.com/facturacr/einvoice-engine/internal/queue"
	"github.com/facturacr/einvoice-engine/internal/repository"
	"github.com/facturacr/einvoice-engine/internal/xmlgen"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HaciendaClient is the receiving-endpoint surface the lifecycle depends on.
type HaciendaClient interface {
	Submit(ctx context.Context, req hacienda.SubmitRequest) (*hacienda.Response, error)
	CheckStatus(ctx context.Context, clave string) (*hacienda.Response, error)
}

// DocumentSigner signs an unsigned document body.
type DocumentSigner interface {
	Sign(unsignedBody string) (string, error)
}

// GenerateParams carries the party details the stored document does not hold.
type GenerateParams struct {
	IssuerName      string
	IssuerEmail     string
	ReceiverName    string
	ReceiverEmail   string
	ActivityCode    string
	ReferencedClave string
}

// LifecycleService drives documents through draft, generation, signing,
// submission, and the provider verdict. Operation failures leave the document
// in its pre-operation state so a later re-attempt finds its precondition
// intact; only retry exhaustion moves a document to ERROR.
type LifecycleService struct {
	documents repository.DocumentRepository
	retries   *RetryQueueService
	keys      *clave.Generator
	builder   *xmlgen.Builder
	signer    DocumentSigner
	client    HaciendaClient
	alerts    queue.Publisher
	logger    *zap.Logger
	metrics   *observability.Metrics
	now       func() time.Time
}

func NewLifecycleService(
	documents repository.DocumentRepository,
	retries *RetryQueueService,
	keys *clave.Generator,
	builder *xmlgen.Builder,
	signer DocumentSigner,
	client HaciendaClient,
	alerts queue.Publisher,
	logger *zap.Logger,
) (*LifecycleService, error) {
	if documents == nil {
		return nil, fmt.Errorf("document repository is required")
	}
	if retries == nil {
		return nil, fmt.Errorf("retry queue service is required")
	}
	if keys == nil {
		return nil, fmt.Errorf("clave generator is required")
	}
	if builder == nil {
		return nil, fmt.Errorf("body builder is required")
	}
	if signer == nil {
		return nil, fmt.Errorf("signer is required")
	}
	if client == nil {
		return nil, fmt.Errorf("hacienda client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &LifecycleService{
		documents: documents,
		retries:   retries,
		keys:      keys,
		builder:   builder,
		signer:    signer,
		client:    client,
		alerts:    alerts,
		logger:    logger,
		now:       time.Now,
	}, nil
}

func (s *LifecycleService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

func (s *LifecycleService) CreateDraft(ctx context.Context, doc *domain.Document) (*domain.Document, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: document is required", domain.ErrValidation)
	}

	doc.ID = strings.TrimSpace(doc.ID)
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	doc.IssuerID = strings.TrimSpace(doc.IssuerID)
	doc.ReceiverID = strings.TrimSpace(doc.ReceiverID)
	doc.LocationCode = strings.TrimSpace(doc.LocationCode)
	if doc.TerminalCode == "" {
		doc.TerminalCode = "001"
	}
	if doc.SituationCode == "" {
		doc.SituationCode = "1"
	}
	doc.State = domain.StateDraft
	doc.RetryCount = 0

	if err := doc.Validate(); err != nil {
		return nil, err
	}

	if err := s.documents.Create(ctx, doc); err != nil {
		return nil, err
	}

	s.logger.Info("document draft created",
		zap.String("documentId", doc.ID),
		zap.String("documentType", string(doc.DocumentType)),
	)

	return doc, nil
}

func (s *LifecycleService) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: document id is required", domain.ErrValidation)
	}
	return s.documents.GetByID(ctx, strings.TrimSpace(id))
}

func (s *LifecycleService) List(ctx context.Context, params repository.ListParams) ([]domain.Document, int64, error) {
	return s.documents.List(ctx, params)
}

// Generate assigns the clave and renders the unsigned body. The clave is
// immutable: regenerating after a failure reuses the existing key.
func (s *LifecycleService) Generate(ctx context.Context, id string, params GenerateParams) (*domain.Document, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	doc, err := s.documents.LockForOperation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !doc.CanGenerate() {
		return nil, fmt.Errorf("%w: cannot generate document in state %s", domain.ErrState, doc.State)
	}

	if doc.IssuedAt.IsZero() {
		doc.IssuedAt = s.now()
	}

	if doc.Clave == "" {
		key, err := s.keys.Generate(clave.Params{
			IssuerTaxID:      doc.IssuerID,
			DocumentTypeCode: doc.DocumentType.Code(),
			LocationCode:     doc.LocationCode,
			TerminalCode:     doc.TerminalCode,
			SequenceNumber:   doc.SequenceNumber,
			SituationCode:    doc.SituationCode,
			EmissionDate:     doc.IssuedAt,
		})
		if err != nil {
			return nil, s.recordFailure(ctx, doc, domain.OperationGenerate, err, false)
		}
		doc.Clave = key

		consecutive, err := domain.ConsecutiveFromClave(key)
		if err != nil {
			return nil, s.recordFailure(ctx, doc, domain.OperationGenerate, err, false)
		}
		doc.ConsecutiveNumber = consecutive
	}

	body, err := s.builder.BuildBody(xmlgen.Request{
		Document: doc,
		Issuer: xmlgen.Party{
			Name:           params.IssuerName,
			Identification: doc.IssuerID,
			Email:          params.IssuerEmail,
		},
		Receiver: xmlgen.Party{
			Name:           params.ReceiverName,
			Identification: doc.ReceiverID,
			Email:          params.ReceiverEmail,
		},
		ActivityCode:    params.ActivityCode,
		ReferencedClave: params.ReferencedClave,
	})
	if err != nil {
		return nil, s.recordFailure(ctx, doc, domain.OperationGenerate, err, false)
	}

	doc.UnsignedBody = body
	doc.SignedBody = ""
	doc.State = domain.StateGenerated
	doc.LastErrorMessage = ""

	if err := s.documents.Update(ctx, doc); err != nil {
		return nil, err
	}

	s.logger.Info("document generated",
		zap.String("documentId", doc.ID),
		zap.String("clave", doc.Clave),
	)

	return doc, nil
}

func (s *LifecycleService) Sign(ctx context.Context, id string) (*domain.Document, error) {
	return s.sign(ctx, id, true)
}

func (s *LifecycleService) Submit(ctx context.Context, id string) (*domain.Document, error) {
	return s.submit(ctx, id, true)
}

func (s *LifecycleService) CheckStatus(ctx context.Context, id string) (*domain.Document, error) {
	return s.checkStatus(ctx, id, true)
}

// Execute re-runs a lifecycle operation on behalf of the retry scheduler.
// Failures are reported to the caller without enqueueing a fresh retry; the
// scheduler owns the entry's bookkeeping.
func (s *LifecycleService) Execute(ctx context.Context, op domain.Operation, documentID string) error {
	var err error
	switch op {
	case domain.OperationSign:
		_, err = s.sign(ctx, documentID, false)
	case domain.OperationSubmit:
		_, err = s.submit(ctx, documentID, false)
	case domain.OperationCheckStatus:
		_, err = s.checkStatus(ctx, documentID, false)
	default:
		return fmt.Errorf("%w: unknown operation %q", domain.ErrValidation, op)
	}
	return err
}

func (s *LifecycleService) sign(ctx context.Context, id string, enqueueOnFailure bool) (*domain.Document, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	doc, err := s.documents.LockForOperation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !doc.CanSign() {
		return nil, fmt.Errorf("%w: cannot sign document in state %s", domain.ErrState, doc.State)
	}

	signed, err := s.signer.Sign(doc.UnsignedBody)
	if err != nil {
		return nil, s.recordFailure(ctx, doc, domain.OperationSign, err, enqueueOnFailure)
	}

	doc.SignedBody = signed
	doc.State = domain.StateSigned
	doc.LastErrorMessage = ""

	if err := s.documents.Update(ctx, doc); err != nil {
		return nil, err
	}

	s.logger.Info("document signed", zap.String("documentId", doc.ID))

	return doc, nil
}

func (s *LifecycleService) submit(ctx context.Context, id string, enqueueOnFailure bool) (*domain.Document, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	doc, err := s.documents.LockForOperation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !doc.CanSubmit() {
		return nil, fmt.Errorf("%w: cannot submit document in state %s", domain.ErrState, doc.State)
	}

	start := s.now()
	resp, err := s.client.Submit(ctx, hacienda.SubmitRequest{
		Clave:      doc.Clave,
		SignedXML:  doc.SignedBody,
		IssuerID:   doc.IssuerID,
		ReceiverID: doc.ReceiverID,
		IssuedAt:   doc.IssuedAt,
	})
	if s.metrics != nil {
		s.metrics.ObserveSubmitDuration(s.now().Sub(start))
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.IncSubmissionFailed(string(hacienda.KindOf(err)))
		}
		return nil, s.recordFailure(ctx, doc, domain.OperationSubmit, err, enqueueOnFailure)
	}

	submittedAt := s.now()
	doc.SubmittedAt = &submittedAt
	doc.State = domain.StateSubmitted
	doc.LastErrorMessage = ""

	s.applyVerdict(ctx, doc, resp)

	if err := s.documents.Update(ctx, doc); err != nil {
		return nil, err
	}

	s.logger.Info("document submitted",
		zap.String("documentId", doc.ID),
		zap.String("clave", doc.Clave),
		zap.String("status", string(doc.CanonicalStatus)),
	)

	return doc, nil
}

func (s *LifecycleService) checkStatus(ctx context.Context, id string, enqueueOnFailure bool) (*domain.Document, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	doc, err := s.documents.LockForOperation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !doc.CanCheckStatus() {
		return nil, fmt.Errorf("%w: cannot check status of document in state %s", domain.ErrState, doc.State)
	}

	resp, err := s.client.CheckStatus(ctx, doc.Clave)
	if err != nil {
		return nil, s.recordFailure(ctx, doc, domain.OperationCheckStatus, err, enqueueOnFailure)
	}

	s.applyVerdict(ctx, doc, resp)

	if err := s.documents.Update(ctx, doc); err != nil {
		return nil, err
	}

	return doc, nil
}

// applyVerdict maps the provider response onto the document. A still-pending
// verdict keeps the document submitted for the status poller to revisit.
func (s *LifecycleService) applyVerdict(ctx context.Context, doc *domain.Document, resp *hacienda.Response) {
	doc.ProviderResponse = resp.Raw
	doc.CanonicalStatus = domain.CanonicalStatus(resp.Status)
	doc.ProviderMessage = resp.Message()

	switch domain.CanonicalStatus(resp.Status) {
	case domain.CanonicalAccepted:
		acceptedAt := s.now()
		doc.AcceptedAt = &acceptedAt
		doc.State = domain.StateAccepted
		if s.metrics != nil {
			s.metrics.IncDocumentAccepted()
		}

	case domain.CanonicalRejected:
		doc.State = domain.StateRejected
		if s.metrics != nil {
			s.metrics.IncDocumentRejected()
		}
		s.publishAlert(ctx, queue.OperatorAlert{
			Kind:       queue.AlertDocumentRejected,
			Severity:   queue.SeverityWarning,
			DocumentID: doc.ID,
			Clave:      doc.Clave,
			LastError:  doc.ProviderMessage,
			OccurredAt: s.now().UTC(),
		})

	case domain.CanonicalProcessing:
		doc.State = domain.StateSubmitted

	default:
		s.logger.Warn("unrecognized provider status",
			zap.String("documentId", doc.ID),
			zap.String("indEstado", resp.RawStatus),
		)
		doc.State = domain.StateSubmitted
	}
}

// recordFailure stamps the failure on the document and, for caller-initiated
// operations, enqueues a deferred re-attempt. The returned error is the
// original failure.
func (s *LifecycleService) recordFailure(
	ctx context.Context,
	doc *domain.Document,
	op domain.Operation,
	cause error,
	enqueue bool,
) error {
	doc.LastErrorMessage = cause.Error()
	doc.RetryCount++

	if err := s.documents.Update(ctx, doc); err != nil {
		s.logger.Error("failed to record operation failure",
			zap.String("documentId", doc.ID),
			zap.String("operation", string(op)),
			zap.Error(err),
		)
	}

	if enqueue {
		if _, err := s.retries.Enqueue(ctx, doc.ID, op, cause); err != nil {
			s.logger.Error("failed to enqueue retry",
				zap.String("documentId", doc.ID),
				zap.String("operation", string(op)),
				zap.Error(err),
			)
		}
	}

	s.logger.Warn("document operation failed",
		zap.String("documentId", doc.ID),
		zap.String("operation", string(op)),
		zap.Error(cause),
	)

	return cause
}

// MarkExhausted moves a document to ERROR after its retry budget ran out and
// alerts operators. Called by the retry scheduler.
func (s *LifecycleService) MarkExhausted(ctx context.Context, entry *domain.RetryEntry) error {
	doc, err := s.documents.GetByID(ctx, entry.DocumentID)
	if err != nil {
		return err
	}

	doc.State = domain.StateError
	doc.LastErrorMessage = entry.LastError
	if err := s.documents.Update(ctx, doc); err != nil {
		return err
	}

	s.publishAlert(ctx, queue.OperatorAlert{
		Kind:          queue.AlertRetryExhausted,
		Severity:      queue.SeverityCritical,
		DocumentID:    doc.ID,
		Clave:         doc.Clave,
		Operation:     entry.Operation,
		ErrorCategory: entry.ErrorCategory,
		Attempts:      entry.RetryCount,
		LastError:     entry.LastError,
		OccurredAt:    s.now().UTC(),
	})

	return nil
}

func (s *LifecycleService) publishAlert(ctx context.Context, alert queue.OperatorAlert) {
	if s.alerts == nil {
		return
	}
	if err := s.alerts.Publish(ctx, queue.AlertQueueName, alert); err != nil {
		s.logger.Error("failed to publish operator alert",
			zap.String("documentId", alert.DocumentID),
			zap.String("kind", string(alert.Kind)),
			zap.Error(err),
		)
	}
}
