package domain

import (
	"fmt"
	"strings"
	"time"
)

// State represents the lifecycle state of an electronic document.
type State string

const (
	StateDraft     State = "DRAFT"
	StateGenerated State = "GENERATED"
	StateSigned    State = "SIGNED"
	StateSubmitted State = "SUBMITTED"
	StateAccepted  State = "ACCEPTED"
	StateRejected  State = "REJECTED"
	StateError     State = "ERROR"
)

func (s State) String() string { return string(s) }

func (s State) IsValid() bool {
	switch s {
	case StateDraft, StateGenerated, StateSigned, StateSubmitted, StateAccepted, StateRejected, StateError:
		return true
	}
	return false
}

// IsTerminal reports whether the document has reached a final provider verdict.
func (s State) IsTerminal() bool {
	return s == StateAccepted || s == StateRejected
}

func ParseStateFromString(s string) (State, error) {
	st := State(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid state %q", ErrValidation, s)
	}
	return st, nil
}

// DocumentType represents the electronic document layout.
type DocumentType string

const (
	DocTypeInvoice    DocumentType = "FE" // Factura Electrónica
	DocTypeTicket     DocumentType = "TE" // Tiquete Electrónico
	DocTypeCreditNote DocumentType = "NC" // Nota de Crédito
	DocTypeDebitNote  DocumentType = "ND" // Nota de Débito
)

func (t DocumentType) String() string { return string(t) }

func (t DocumentType) IsValid() bool {
	switch t {
	case DocTypeInvoice, DocTypeTicket, DocTypeCreditNote, DocTypeDebitNote:
		return true
	}
	return false
}

// Code returns the two-digit document type code embedded in the clave.
func (t DocumentType) Code() string {
	switch t {
	case DocTypeInvoice:
		return "01"
	case DocTypeDebitNote:
		return "02"
	case DocTypeCreditNote:
		return "03"
	case DocTypeTicket:
		return "04"
	default:
		return "01"
	}
}

func ParseDocumentTypeFromString(s string) (DocumentType, error) {
	t := DocumentType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("%w: invalid document type %q", ErrValidation, s)
	}
	return t, nil
}

// CanonicalStatus is the normalized provider verdict for a submission.
type CanonicalStatus string

const (
	CanonicalAccepted   CanonicalStatus = "accepted"
	CanonicalRejected   CanonicalStatus = "rejected"
	CanonicalProcessing CanonicalStatus = "processing"
)

// consecutiveStart/consecutiveEnd delimit the 20-digit consecutive number
// inside the 50-digit clave.
const (
	consecutiveStart = 21
	consecutiveEnd   = 41
)

// ConsecutiveFromClave extracts the provider-mandated 20-digit consecutive
// number from a 50-digit clave.
func ConsecutiveFromClave(clave string) (string, error) {
	if len(clave) != 50 {
		return "", fmt.Errorf("%w: clave must be 50 digits, got %d", ErrValidation, len(clave))
	}
	return clave[consecutiveStart:consecutiveEnd], nil
}

// Document is the core entity: one legally-binding electronic tax document
// tracked from draft through provider acceptance or rejection.
type Document struct {
	ID           string
	DocumentType DocumentType
	State        State

	// Clave is the 50-digit unique key; immutable once generated.
	Clave             string
	ConsecutiveNumber string

	IssuerID   string
	ReceiverID string

	LocationCode   string
	TerminalCode   string
	SequenceNumber int64
	SituationCode  string
	IssuedAt       time.Time

	UnsignedBody string
	SignedBody   string

	ProviderResponse string
	CanonicalStatus  CanonicalStatus
	ProviderMessage  string

	SubmittedAt *time.Time
	AcceptedAt  *time.Time

	RetryCount       int
	LastErrorMessage string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (d *Document) Validate() error {
	if !d.DocumentType.IsValid() {
		return fmt.Errorf("%w: invalid document type %q", ErrValidation, d.DocumentType)
	}
	if strings.TrimSpace(d.IssuerID) == "" {
		return fmt.Errorf("%w: issuer identification is required", ErrValidation)
	}
	if strings.TrimSpace(d.LocationCode) == "" {
		return fmt.Errorf("%w: location code is required", ErrValidation)
	}
	if d.SequenceNumber <= 0 {
		return fmt.Errorf("%w: sequence number must be positive", ErrValidation)
	}
	if d.DocumentType == DocTypeInvoice && strings.TrimSpace(d.ReceiverID) == "" {
		return fmt.Errorf("%w: receiver identification is required for FE documents", ErrValidation)
	}
	return nil
}

// CanGenerate reports whether the generate operation is allowed.
func (d *Document) CanGenerate() bool {
	return d.State == StateDraft || d.State == StateError
}

// CanSign reports whether the sign operation is allowed.
func (d *Document) CanSign() bool {
	return d.State == StateGenerated
}

// CanSubmit reports whether the submit operation is allowed.
func (d *Document) CanSubmit() bool {
	return d.State == StateSigned
}

// CanCheckStatus reports whether a status query is allowed.
func (d *Document) CanCheckStatus() bool {
	return d.State == StateSubmitted
}
