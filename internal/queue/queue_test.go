package queue

import (
	"testing"
	"time"

	"github.com/facturacr/einvoice-engine/internal/domain"
)

func TestDLQName(t *testing.T) {
	if got := DLQName(AlertQueueName); got != "dlq.operator.alerts" {
		t.Fatalf("DLQName = %s, want dlq.operator.alerts", got)
	}
}

func TestPriorityValue(t *testing.T) {
	tests := []struct {
		name     string
		severity AlertSeverity
		want     uint8
	}{
		{name: "critical", severity: SeverityCritical, want: 3},
		{name: "warning", severity: SeverityWarning, want: 2},
		{name: "info", severity: SeverityInfo, want: 1},
		{name: "invalid", severity: AlertSeverity("invalid"), want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PriorityValue(tt.severity)
			if got != tt.want {
				t.Fatalf("PriorityValue(%q) = %d, want %d", tt.severity, got, tt.want)
			}
		})
	}
}

func TestOperatorAlertValidate(t *testing.T) {
	msg := OperatorAlert{
		Kind:       AlertRetryExhausted,
		Severity:   SeverityCritical,
		DocumentID: "d1",
		Operation:  domain.OperationSubmit,
		OccurredAt: time.Now(),
	}
	if err := msg.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}

	msg.DocumentID = ""
	if err := msg.Validate(); err == nil {
		t.Fatal("expected error for empty document id")
	}

	msg.DocumentID = "d1"
	msg.Kind = AlertKind("invalid")
	if err := msg.Validate(); err == nil {
		t.Fatal("expected error for invalid kind")
	}

	msg.Kind = AlertDocumentRejected
	msg.Severity = AlertSeverity("invalid")
	if err := msg.Validate(); err == nil {
		t.Fatal("expected error for invalid severity")
	}
}
