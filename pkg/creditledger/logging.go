package creditledger

import "context"

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing ledger or pacing operation.
type OperationLog struct {
	Operation      string
	AccountID      AccountID
	CampaignID     *CampaignID
	Actor          *ActorID
	Amount         int64
	IdempotencyKey IdempotencyKey
	Status         string
	Error          error
}

// AuditRecord is handed to the audit collaborator after a successful mutation.
type AuditRecord struct {
	Actor    *ActorID
	Action   string
	EntityID string
	Before   any
	After    any
	Reason   string
}

// AuditSink receives audit records. Implementations must not block the
// mutation path; a sink failure never rolls back the committed transaction.
type AuditSink interface {
	Record(ctx context.Context, record AuditRecord)
}

// NotificationSink receives owner-facing events after a successful mutation.
type NotificationSink interface {
	Notify(ctx context.Context, accountID AccountID, event string, payload map[string]any)
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithAuditSink wires the audit collaborator.
func WithAuditSink(sink AuditSink) ServiceOption {
	return func(service *Service) {
		service.audit = sink
	}
}

// WithNotificationSink wires the notification collaborator.
func WithNotificationSink(sink NotificationSink) ServiceOption {
	return func(service *Service) {
		service.notifier = sink
	}
}
