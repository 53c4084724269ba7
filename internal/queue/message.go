package queue

import (
	"fmt"
	"strings"
	"time"

	"github.com/facturacr/einvoice-engine/internal/domain"
)

// AlertKind identifies why an operator needs to look at a document.
type AlertKind string

const (
	AlertRetryExhausted   AlertKind = "retry.exhausted"
	AlertDocumentRejected AlertKind = "document.rejected"
)

func (k AlertKind) IsValid() bool {
	switch k {
	case AlertRetryExhausted, AlertDocumentRejected:
		return true
	}
	return false
}

// AlertSeverity ranks alerts for operator triage.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

func (s AlertSeverity) IsValid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return true
	}
	return false
}

// OperatorAlert is the broker payload for manual-intervention alerts.
type OperatorAlert struct {
	Kind          AlertKind            `json:"kind"`
	Severity      AlertSeverity        `json:"severity"`
	DocumentID    string               `json:"documentId"`
	Clave         string               `json:"clave,omitempty"`
	Operation     domain.Operation     `json:"operation,omitempty"`
	ErrorCategory domain.ErrorCategory `json:"errorCategory,omitempty"`
	Attempts      int                  `json:"attempts,omitempty"`
	LastError     string               `json:"lastError,omitempty"`
	OccurredAt    time.Time            `json:"occurredAt"`
}

func (m OperatorAlert) Validate() error {
	if !m.Kind.IsValid() {
		return fmt.Errorf("invalid alert kind %q", m.Kind)
	}
	if !m.Severity.IsValid() {
		return fmt.Errorf("invalid alert severity %q", m.Severity)
	}
	if strings.TrimSpace(m.DocumentID) == "" {
		return fmt.Errorf("documentId is required")
	}
	return nil
}
