package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/facturacr/einvoice-engine/internal/domain"
	"github.com/facturacr/einvoice-engine/internal/hacienda"
	"github.com/facturacr/einvoice-engine/internal/queue"
	"github.com/facturacr/einvoice-engine/internal/repository"
)

// fakeDocumentRepo keeps documents in memory so lifecycle tests can follow a
// document through several operations without a database.
type fakeDocumentRepo struct {
	mu   sync.Mutex
	docs map[string]domain.Document

	createErr error
	updateErr error
}

func newFakeDocumentRepo(docs ...domain.Document) *fakeDocumentRepo {
	repo := &fakeDocumentRepo{docs: make(map[string]domain.Document)}
	for _, d := range docs {
		repo.docs[d.ID] = d
	}
	return repo
}

func (r *fakeDocumentRepo) Create(ctx context.Context, d *domain.Document) error {
	if r.createErr != nil {
		return r.createErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.docs[d.ID]; exists {
		return domain.ErrConflict
	}
	r.docs[d.ID] = *d
	return nil
}

func (r *fakeDocumentRepo) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := doc
	return &copied, nil
}

func (r *fakeDocumentRepo) GetByClave(ctx context.Context, clave string) (*domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, doc := range r.docs {
		if doc.Clave == clave {
			copied := doc
			return &copied, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *fakeDocumentRepo) List(ctx context.Context, params repository.ListParams) ([]domain.Document, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Document, 0, len(r.docs))
	for _, doc := range r.docs {
		if params.State != nil && doc.State != *params.State {
			continue
		}
		out = append(out, doc)
	}
	return out, int64(len(out)), nil
}

func (r *fakeDocumentRepo) Update(ctx context.Context, d *domain.Document) error {
	if r.updateErr != nil {
		return r.updateErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[d.ID]; !ok {
		return domain.ErrNotFound
	}
	r.docs[d.ID] = *d
	return nil
}

func (r *fakeDocumentRepo) LockForOperation(ctx context.Context, id string) (*domain.Document, error) {
	return r.GetByID(ctx, id)
}

func (r *fakeDocumentRepo) GetSubmitted(ctx context.Context, limit int) ([]domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Document, 0)
	for _, doc := range r.docs {
		if doc.State == domain.StateSubmitted {
			out = append(out, doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeDocumentRepo) get(id string) domain.Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.docs[id]
}

// fakeRetryRepo records retry entries keyed by (document, operation) active
// slot, mirroring the partial unique index.
type fakeRetryRepo struct {
	mu      sync.Mutex
	entries map[string]domain.RetryEntry

	upsertErr error
	statsRows []repository.QueueStats
}

func newFakeRetryRepo(entries ...domain.RetryEntry) *fakeRetryRepo {
	repo := &fakeRetryRepo{entries: make(map[string]domain.RetryEntry)}
	for _, e := range entries {
		repo.entries[e.ID] = e
	}
	return repo
}

func (r *fakeRetryRepo) Upsert(ctx context.Context, e *domain.RetryEntry) error {
	if r.upsertErr != nil {
		return r.upsertErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, existing := range r.entries {
		if existing.DocumentID == e.DocumentID && existing.Operation == e.Operation && existing.State.IsActive() {
			refreshed := existing
			refreshed.ErrorCategory = e.ErrorCategory
			refreshed.LastError = e.LastError
			refreshed.Priority = e.Priority
			refreshed.UpdatedAt = e.UpdatedAt
			r.entries[id] = refreshed
			*e = refreshed
			return nil
		}
	}
	r.entries[e.ID] = *e
	return nil
}

func (r *fakeRetryRepo) GetByID(ctx context.Context, id string) (*domain.RetryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := e
	return &copied, nil
}

func (r *fakeRetryRepo) GetActive(ctx context.Context, documentID string, op domain.Operation) (*domain.RetryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.DocumentID == documentID && e.Operation == op && e.State.IsActive() {
			copied := e
			return &copied, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *fakeRetryRepo) List(ctx context.Context, params repository.RetryListParams) ([]domain.RetryEntry, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.RetryEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	return out, int64(len(out)), nil
}

func (r *fakeRetryRepo) ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.RetryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	claimed := make([]domain.RetryEntry, 0)
	for id, e := range r.entries {
		if e.State != domain.EntryPending || e.NextAttemptAt.After(now) {
			continue
		}
		e.State = domain.EntryProcessing
		attemptAt := now
		e.LastAttemptAt = &attemptAt
		r.entries[id] = e
		claimed = append(claimed, e)
		if limit > 0 && len(claimed) >= limit {
			break
		}
	}
	sort.Slice(claimed, func(i, j int) bool { return claimed[i].Priority > claimed[j].Priority })
	return claimed, nil
}

func (r *fakeRetryRepo) Update(ctx context.Context, e *domain.RetryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[e.ID]; !ok {
		return domain.ErrNotFound
	}
	r.entries[e.ID] = *e
	return nil
}

func (r *fakeRetryRepo) MarkState(ctx context.Context, id string, state domain.EntryState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return domain.ErrNotFound
	}
	e.State = state
	r.entries[id] = e
	return nil
}

func (r *fakeRetryRepo) RetryNow(ctx context.Context, id string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return domain.ErrNotFound
	}
	if e.State != domain.EntryPending && e.State != domain.EntryFailed {
		return domain.ErrConflict
	}
	e.State = domain.EntryPending
	e.NextAttemptAt = now
	r.entries[id] = e
	return nil
}

func (r *fakeRetryRepo) Cancel(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return domain.ErrNotFound
	}
	if e.State == domain.EntryCompleted || e.State == domain.EntryCancelled {
		return domain.ErrConflict
	}
	e.State = domain.EntryCancelled
	r.entries[id] = e
	return nil
}

func (r *fakeRetryRepo) PurgeTerminalOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var purged int64
	for id, e := range r.entries {
		if e.State.IsTerminal() && e.UpdatedAt.Before(cutoff) {
			delete(r.entries, id)
			purged++
		}
	}
	return purged, nil
}

func (r *fakeRetryRepo) Stats(ctx context.Context) ([]repository.QueueStats, error) {
	if r.statsRows != nil {
		return r.statsRows, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[domain.EntryState]int)
	for _, e := range r.entries {
		counts[e.State]++
	}
	rows := make([]repository.QueueStats, 0, len(counts))
	for state, count := range counts {
		rows = append(rows, repository.QueueStats{State: state, Count: count})
	}
	return rows, nil
}

func (r *fakeRetryRepo) get(id string) domain.RetryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[id]
}

func (r *fakeRetryRepo) activeFor(documentID string, op domain.Operation) (domain.RetryEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.DocumentID == documentID && e.Operation == op && e.State.IsActive() {
			return e, true
		}
	}
	return domain.RetryEntry{}, false
}

type fakeSigner struct {
	signFn func(unsignedBody string) (string, error)
}

func (s *fakeSigner) Sign(unsignedBody string) (string, error) {
	if s.signFn != nil {
		return s.signFn(unsignedBody)
	}
	return unsignedBody + "<!-- signed -->", nil
}

type fakeHaciendaClient struct {
	submitFn      func(ctx context.Context, req hacienda.SubmitRequest) (*hacienda.Response, error)
	checkStatusFn func(ctx context.Context, clave string) (*hacienda.Response, error)
}

func (c *fakeHaciendaClient) Submit(ctx context.Context, req hacienda.SubmitRequest) (*hacienda.Response, error) {
	if c.submitFn != nil {
		return c.submitFn(ctx, req)
	}
	return nil, errors.New("not implemented")
}

func (c *fakeHaciendaClient) CheckStatus(ctx context.Context, clave string) (*hacienda.Response, error) {
	if c.checkStatusFn != nil {
		return c.checkStatusFn(ctx, clave)
	}
	return nil, errors.New("not implemented")
}

type fakeAlertPublisher struct {
	mu     sync.Mutex
	alerts []queue.OperatorAlert

	publishErr error
}

func (p *fakeAlertPublisher) Publish(ctx context.Context, queueName string, msg queue.OperatorAlert) error {
	if p.publishErr != nil {
		return p.publishErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alerts = append(p.alerts, msg)
	return nil
}

func (p *fakeAlertPublisher) Close() error { return nil }

func (p *fakeAlertPublisher) published() []queue.OperatorAlert {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]queue.OperatorAlert, len(p.alerts))
	copy(out, p.alerts)
	return out
}

type fakeLease struct {
	mu       sync.Mutex
	held     bool
	acquires int
	releases int

	acquireErr error
}

func (l *fakeLease) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.acquireErr != nil {
		return false, l.acquireErr
	}
	l.acquires++
	if l.held {
		return false, nil
	}
	l.held = true
	return true, nil
}

func (l *fakeLease) Release(ctx context.Context, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.releases++
	l.held = false
	return nil
}
