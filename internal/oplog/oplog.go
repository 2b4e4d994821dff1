// Package oplog adapts the credit ledger's operation, audit, and
// notification callbacks onto zap structured logging.
package oplog

import (
	"context"

	"go.uber.org/zap"

	"github.com/ReviewRampLab/creditengine/pkg/creditledger"
)

// OperationLogger emits one structured log line per ledger operation.
type OperationLogger struct {
	logger *zap.Logger
}

// NewOperationLogger wraps a zap logger.
func NewOperationLogger(logger *zap.Logger) *OperationLogger {
	return &OperationLogger{logger: logger}
}

func (operationLogger *OperationLogger) LogOperation(ctx context.Context, entry creditledger.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
	}
	if entry.AccountID.String() != "" {
		fields = append(fields, zap.String("account_id", entry.AccountID.String()))
	}
	if entry.CampaignID != nil {
		fields = append(fields, zap.String("campaign_id", entry.CampaignID.String()))
	}
	if entry.Actor != nil {
		fields = append(fields, zap.String("actor_id", entry.Actor.String()))
	}
	if entry.Amount != 0 {
		fields = append(fields, zap.Int64("amount", entry.Amount))
	}
	if entry.IdempotencyKey.String() != "" {
		fields = append(fields, zap.String("idempotency_key", entry.IdempotencyKey.String()))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		operationLogger.logger.Warn("ledger operation failed", fields...)
		return
	}
	operationLogger.logger.Info("ledger operation", fields...)
}

// AuditSink records admin mutations with before/after snapshots.
type AuditSink struct {
	logger *zap.Logger
}

// NewAuditSink wraps a zap logger.
func NewAuditSink(logger *zap.Logger) *AuditSink {
	return &AuditSink{logger: logger}
}

func (sink *AuditSink) Record(ctx context.Context, record creditledger.AuditRecord) {
	fields := []zap.Field{
		zap.String("action", record.Action),
		zap.String("entity_id", record.EntityID),
	}
	if record.Actor != nil {
		fields = append(fields, zap.String("actor_id", record.Actor.String()))
	}
	if record.Reason != "" {
		fields = append(fields, zap.String("reason", record.Reason))
	}
	if record.Before != nil {
		fields = append(fields, zap.Any("before", record.Before))
	}
	if record.After != nil {
		fields = append(fields, zap.Any("after", record.After))
	}
	sink.logger.Info("audit", fields...)
}

// NotificationSink logs owner-facing events. A real deployment would fan
// these out to email or in-app notifications; the log line keeps the hook
// observable either way.
type NotificationSink struct {
	logger *zap.Logger
}

// NewNotificationSink wraps a zap logger.
func NewNotificationSink(logger *zap.Logger) *NotificationSink {
	return &NotificationSink{logger: logger}
}

func (sink *NotificationSink) Notify(ctx context.Context, accountID creditledger.AccountID, event string, payload map[string]any) {
	sink.logger.Info("notify",
		zap.String("account_id", accountID.String()),
		zap.String("event", event),
		zap.Any("payload", payload),
	)
}
