package queue

import (
	"context"
	"fmt"
)

// Publisher publishes operator alerts to the broker.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg OperatorAlert) error
	Close() error
}

// AlertQueueName is the work queue operators consume intervention alerts
// from.
const AlertQueueName = "operator.alerts"

// alertMaxPriority is the RabbitMQ x-max-priority value for the alert queue.
const alertMaxPriority int32 = 3

// DLQName returns the dead-letter queue name for a work queue.
func DLQName(queue string) string {
	return fmt.Sprintf("dlq.%s", queue)
}

// PriorityValue maps alert severity to RabbitMQ message priority.
func PriorityValue(severity AlertSeverity) uint8 {
	switch severity {
	case SeverityCritical:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}
