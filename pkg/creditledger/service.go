package creditledger

import (
	"context"
	"fmt"
)

// Service contains the allocator and pacing domain logic over a Store.
type Service struct {
	store    Store
	nowFn    func() int64
	logger   OperationLogger
	audit    AuditSink
	notifier NotificationSink
}

// NewService wires a Service.
func NewService(store Store, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, nowFn: now}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// CreateAccount provisions an empty author credit account.
func (service *Service) CreateAccount(ctx context.Context, accountID AccountID) error {
	return service.store.CreateAccount(ctx, Account{AccountID: accountID})
}

// CreateCampaign provisions a campaign with a zero pool in draft status.
func (service *Service) CreateCampaign(ctx context.Context, campaignID CampaignID, accountID AccountID, targetReviews int64, reviewsPerWeek int64, overbookingPercent int64, overbookingEnabled bool) error {
	if targetReviews <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidTargetReviews, targetReviews)
	}
	if reviewsPerWeek <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidDistributionRate, reviewsPerWeek)
	}
	if overbookingPercent < 0 || overbookingPercent > maxOverbookingPercent {
		return fmt.Errorf("%w: %d", ErrInvalidOverbooking, overbookingPercent)
	}
	return service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if _, err := transactionStore.GetAccount(ctx, accountID); err != nil {
			return err
		}
		return transactionStore.CreateCampaign(ctx, Campaign{
			CampaignID: campaignID,
			AccountID:  accountID,
			Status:     StatusDraft,
			Pacing: CampaignPacing{
				TargetReviews:      targetReviews,
				ReviewsPerWeek:     reviewsPerWeek,
				OverbookingPercent: overbookingPercent,
				OverbookingEnabled: overbookingEnabled,
			},
		})
	})
}

// Balance returns the account's aggregate view.
func (service *Service) Balance(ctx context.Context, accountID AccountID) (Balance, error) {
	account, err := service.store.GetAccount(ctx, accountID)
	if err != nil {
		return Balance{}, err
	}
	return Balance{
		AvailableCredits:      account.AvailableCredits,
		TotalCreditsPurchased: account.TotalCreditsPurchased,
		TotalCreditsUsed:      account.TotalCreditsUsed,
	}, nil
}

// CampaignPoolState returns the campaign's pool view.
func (service *Service) CampaignPoolState(ctx context.Context, campaignID CampaignID) (CampaignPool, error) {
	campaign, err := service.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return CampaignPool{}, err
	}
	return campaign.Pool, nil
}

// LedgerEntries lists ledger entries for an account before a cutoff time.
func (service *Service) LedgerEntries(ctx context.Context, accountID AccountID, beforeUnixUTC int64, limit int) ([]Entry, error) {
	if _, err := service.store.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return service.store.ListEntries(ctx, accountID, beforeUnixUTC, limit)
}

// Reconcile verifies the ledger-balance invariant: the account's available
// balance must equal the sum of all its entry amounts.
func (service *Service) Reconcile(ctx context.Context, accountID AccountID) error {
	return service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		account, err := transactionStore.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		sum, err := transactionStore.SumEntries(ctx, accountID)
		if err != nil {
			return err
		}
		if sum != account.AvailableCredits {
			return WrapError("reconcile", "account", "ledger_drift", ErrInvalidBalance)
		}
		return nil
	})
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}

// recordAudit fires the audit collaborator after a successful mutation.
func (service *Service) recordAudit(ctx context.Context, record AuditRecord) {
	if service.audit == nil {
		return
	}
	service.audit.Record(ctx, record)
}

func (service *Service) notify(ctx context.Context, accountID AccountID, event string, payload map[string]any) {
	if service.notifier == nil {
		return
	}
	service.notifier.Notify(ctx, accountID, event, payload)
}

func deriveIdempotencyKey(baseKey IdempotencyKey, suffix string) (IdempotencyKey, error) {
	combined := baseKey.String() + idempotencyKeyDelimiter + suffix
	return NewIdempotencyKey(combined)
}
