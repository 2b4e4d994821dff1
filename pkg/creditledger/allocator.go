package creditledger

import "context"

// AddCredits credits an account by admin action. Both the available balance
// and the purchased total move; the ledger records a manual adjustment.
func (service *Service) AddCredits(ctx context.Context, accountID AccountID, amount CreditAmount, actor ActorID, reason string, idempotencyKey IdempotencyKey, metadata MetadataJSON) error {
	return service.creditAccount(ctx, operationAddCredits, KindManualAdjustment, accountID, amount, true, &actor, reason, idempotencyKey, metadata)
}

// RemoveCredits debits an account by admin action. The purchased total is
// untouched; the available balance must cover the amount.
func (service *Service) RemoveCredits(ctx context.Context, accountID AccountID, amount CreditAmount, actor ActorID, reason string, idempotencyKey IdempotencyKey, metadata MetadataJSON) error {
	return service.debitAccount(ctx, operationRemoveCredits, KindManualAdjustment, accountID, amount, nil, &actor, reason, idempotencyKey, metadata)
}

// RecordPurchase credits an account after a confirmed payment. The caller
// supplies the payment's dedupe key so a replayed confirmation cannot
// double-credit.
func (service *Service) RecordPurchase(ctx context.Context, accountID AccountID, amount CreditAmount, reason string, idempotencyKey IdempotencyKey, metadata MetadataJSON) error {
	return service.creditAccount(ctx, operationRecordPurchase, KindPurchase, accountID, amount, true, nil, reason, idempotencyKey, metadata)
}

// RecordRenewal credits an account for a subscription renewal grant.
func (service *Service) RecordRenewal(ctx context.Context, accountID AccountID, amount CreditAmount, reason string, idempotencyKey IdempotencyKey, metadata MetadataJSON) error {
	return service.creditAccount(ctx, operationRecordRenewal, KindSubscriptionRenewal, accountID, amount, true, nil, reason, idempotencyKey, metadata)
}

// GrantBonus credits an account without touching the purchased total.
func (service *Service) GrantBonus(ctx context.Context, accountID AccountID, amount CreditAmount, actor ActorID, reason string, idempotencyKey IdempotencyKey, metadata MetadataJSON) error {
	return service.creditAccount(ctx, operationGrantBonus, KindBonus, accountID, amount, false, &actor, reason, idempotencyKey, metadata)
}

// ExpireCredits debits an account for lapsed credits (system-generated).
func (service *Service) ExpireCredits(ctx context.Context, accountID AccountID, amount CreditAmount, reason string, idempotencyKey IdempotencyKey, metadata MetadataJSON) error {
	return service.debitAccount(ctx, operationExpireCredits, KindExpiration, accountID, amount, nil, nil, reason, idempotencyKey, metadata)
}

func (service *Service) creditAccount(ctx context.Context, operation string, kind EntryKind, accountID AccountID, amount CreditAmount, bumpPurchased bool, actor *ActorID, reason string, idempotencyKey IdempotencyKey, metadata MetadataJSON) error {
	var before, after Balance
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		account, err := transactionStore.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		before = accountBalance(account)
		account.AvailableCredits += amount.Int64()
		if bumpPurchased {
			account.TotalCreditsPurchased += amount.Int64()
		}
		if err := transactionStore.UpdateAccount(ctx, account); err != nil {
			return err
		}
		after = accountBalance(account)
		return transactionStore.AppendEntry(ctx, Entry{
			AccountID:      accountID,
			Kind:           kind,
			Amount:         amount.Int64(),
			BalanceAfter:   account.AvailableCredits,
			PerformedBy:    actor,
			Reason:         reason,
			IdempotencyKey: idempotencyKey,
			Metadata:       metadata,
			CreatedUnixUTC: service.nowFn(),
		})
	})
	service.logOperation(ctx, OperationLog{
		Operation:      operation,
		AccountID:      accountID,
		Actor:          actor,
		Amount:         amount.Int64(),
		IdempotencyKey: idempotencyKey,
		Error:          operationError,
	})
	if operationError == nil {
		service.recordAudit(ctx, AuditRecord{Actor: actor, Action: operation, EntityID: accountID.String(), Before: before, After: after, Reason: reason})
		service.notify(ctx, accountID, operation, map[string]any{"amount": amount.Int64(), "available": after.AvailableCredits})
	}
	return operationError
}

func (service *Service) debitAccount(ctx context.Context, operation string, kind EntryKind, accountID AccountID, amount CreditAmount, campaignID *CampaignID, actor *ActorID, reason string, idempotencyKey IdempotencyKey, metadata MetadataJSON) error {
	var before, after Balance
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		account, err := transactionStore.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if account.AvailableCredits < amount.Int64() {
			return ErrInsufficientBalance
		}
		before = accountBalance(account)
		account.AvailableCredits -= amount.Int64()
		if err := transactionStore.UpdateAccount(ctx, account); err != nil {
			return err
		}
		after = accountBalance(account)
		return transactionStore.AppendEntry(ctx, Entry{
			AccountID:      accountID,
			CampaignID:     campaignID,
			Kind:           kind,
			Amount:         -amount.Int64(),
			BalanceAfter:   account.AvailableCredits,
			PerformedBy:    actor,
			Reason:         reason,
			IdempotencyKey: idempotencyKey,
			Metadata:       metadata,
			CreatedUnixUTC: service.nowFn(),
		})
	})
	service.logOperation(ctx, OperationLog{
		Operation:      operation,
		AccountID:      accountID,
		CampaignID:     campaignID,
		Actor:          actor,
		Amount:         -amount.Int64(),
		IdempotencyKey: idempotencyKey,
		Error:          operationError,
	})
	if operationError == nil {
		service.recordAudit(ctx, AuditRecord{Actor: actor, Action: operation, EntityID: accountID.String(), Before: before, After: after, Reason: reason})
		service.notify(ctx, accountID, operation, map[string]any{"amount": -amount.Int64(), "available": after.AvailableCredits})
	}
	return operationError
}

// AllocateToCampaign moves credits from the account's pool into a campaign.
// The account debit, the usage bump, the pool growth, and the ledger entry
// commit together or not at all.
func (service *Service) AllocateToCampaign(ctx context.Context, accountID AccountID, campaignID CampaignID, amount CreditAmount, actor ActorID, reason string, idempotencyKey IdempotencyKey, metadata MetadataJSON) error {
	var before, after CampaignPool
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		account, err := transactionStore.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		campaign, err := transactionStore.GetCampaign(ctx, campaignID)
		if err != nil {
			return err
		}
		if campaign.AccountID != accountID {
			return ErrCampaignAccountMismatch
		}
		if campaign.Status.Terminal() {
			return ErrInvalidCampaignState
		}
		if account.AvailableCredits < amount.Int64() {
			return ErrInsufficientBalance
		}
		before = campaign.Pool
		account.AvailableCredits -= amount.Int64()
		account.TotalCreditsUsed += amount.Int64()
		campaign.Pool.CreditsAllocated += amount.Int64()
		campaign.Pool.CreditsRemaining += amount.Int64()
		if err := transactionStore.UpdateAccount(ctx, account); err != nil {
			return err
		}
		if err := transactionStore.UpdateCampaign(ctx, campaign); err != nil {
			return err
		}
		after = campaign.Pool
		return transactionStore.AppendEntry(ctx, Entry{
			AccountID:      accountID,
			CampaignID:     &campaignID,
			Kind:           KindAllocation,
			Amount:         -amount.Int64(),
			BalanceAfter:   account.AvailableCredits,
			PerformedBy:    &actor,
			Reason:         reason,
			IdempotencyKey: idempotencyKey,
			Metadata:       metadata,
			CreatedUnixUTC: service.nowFn(),
		})
	})
	service.logOperation(ctx, OperationLog{
		Operation:      operationAllocate,
		AccountID:      accountID,
		CampaignID:     &campaignID,
		Actor:          &actor,
		Amount:         -amount.Int64(),
		IdempotencyKey: idempotencyKey,
		Error:          operationError,
	})
	if operationError == nil {
		service.recordAudit(ctx, AuditRecord{Actor: &actor, Action: operationAllocate, EntityID: campaignID.String(), Before: before, After: after, Reason: reason})
	}
	return operationError
}

// DeallocateFromCampaign returns still-unused campaign credits to the account.
func (service *Service) DeallocateFromCampaign(ctx context.Context, campaignID CampaignID, amount CreditAmount, actor ActorID, reason string, idempotencyKey IdempotencyKey, metadata MetadataJSON) error {
	var accountID AccountID
	var before, after CampaignPool
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		campaign, err := transactionStore.GetCampaign(ctx, campaignID)
		if err != nil {
			return err
		}
		if campaign.Status.Terminal() {
			return ErrInvalidCampaignState
		}
		if campaign.Pool.CreditsRemaining < amount.Int64() {
			return ErrInsufficientBalance
		}
		account, err := transactionStore.GetAccount(ctx, campaign.AccountID)
		if err != nil {
			return err
		}
		accountID = account.AccountID
		before = campaign.Pool
		campaign.Pool.CreditsAllocated -= amount.Int64()
		campaign.Pool.CreditsRemaining -= amount.Int64()
		account.AvailableCredits += amount.Int64()
		account.TotalCreditsUsed -= amount.Int64()
		if err := transactionStore.UpdateAccount(ctx, account); err != nil {
			return err
		}
		if err := transactionStore.UpdateCampaign(ctx, campaign); err != nil {
			return err
		}
		after = campaign.Pool
		return transactionStore.AppendEntry(ctx, Entry{
			AccountID:      account.AccountID,
			CampaignID:     &campaignID,
			Kind:           KindRefund,
			Amount:         amount.Int64(),
			BalanceAfter:   account.AvailableCredits,
			PerformedBy:    &actor,
			Reason:         reason,
			IdempotencyKey: idempotencyKey,
			Metadata:       metadata,
			CreatedUnixUTC: service.nowFn(),
		})
	})
	service.logOperation(ctx, OperationLog{
		Operation:      operationDeallocate,
		AccountID:      accountID,
		CampaignID:     &campaignID,
		Actor:          &actor,
		Amount:         amount.Int64(),
		IdempotencyKey: idempotencyKey,
		Error:          operationError,
	})
	if operationError == nil {
		service.recordAudit(ctx, AuditRecord{Actor: &actor, Action: operationDeallocate, EntityID: campaignID.String(), Before: before, After: after, Reason: reason})
	}
	return operationError
}

// TransferBetweenCampaigns moves allocation between two pools funded by the
// same account. The account balance never moves; the paired ledger entries
// are zero-sum and both carry the unchanged balance.
func (service *Service) TransferBetweenCampaigns(ctx context.Context, fromCampaignID CampaignID, toCampaignID CampaignID, amount CreditAmount, actor ActorID, reason string, idempotencyKey IdempotencyKey, metadata MetadataJSON) error {
	var accountID AccountID
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if fromCampaignID == toCampaignID {
			return ErrMismatchedCampaigns
		}
		fromCampaign, err := transactionStore.GetCampaign(ctx, fromCampaignID)
		if err != nil {
			return err
		}
		toCampaign, err := transactionStore.GetCampaign(ctx, toCampaignID)
		if err != nil {
			return err
		}
		if fromCampaign.AccountID != toCampaign.AccountID {
			return ErrMismatchedCampaigns
		}
		if fromCampaign.Status.Terminal() || toCampaign.Status.Terminal() {
			return ErrInvalidCampaignState
		}
		if fromCampaign.Pool.CreditsRemaining < amount.Int64() {
			return ErrInsufficientBalance
		}
		account, err := transactionStore.GetAccount(ctx, fromCampaign.AccountID)
		if err != nil {
			return err
		}
		accountID = account.AccountID
		fromCampaign.Pool.CreditsAllocated -= amount.Int64()
		fromCampaign.Pool.CreditsRemaining -= amount.Int64()
		toCampaign.Pool.CreditsAllocated += amount.Int64()
		toCampaign.Pool.CreditsRemaining += amount.Int64()
		if err := transactionStore.UpdateCampaign(ctx, fromCampaign); err != nil {
			return err
		}
		if err := transactionStore.UpdateCampaign(ctx, toCampaign); err != nil {
			return err
		}
		outKey, err := deriveIdempotencyKey(idempotencyKey, idempotencySuffixOut)
		if err != nil {
			return err
		}
		inKey, err := deriveIdempotencyKey(idempotencyKey, idempotencySuffixIn)
		if err != nil {
			return err
		}
		nowUnixUTC := service.nowFn()
		outEntry := Entry{
			AccountID:      account.AccountID,
			CampaignID:     &fromCampaignID,
			Kind:           KindAllocation,
			Amount:         amount.Int64(),
			BalanceAfter:   account.AvailableCredits,
			PerformedBy:    &actor,
			Reason:         reason,
			IdempotencyKey: outKey,
			Metadata:       metadata,
			CreatedUnixUTC: nowUnixUTC,
		}
		if err := transactionStore.AppendEntry(ctx, outEntry); err != nil {
			return err
		}
		inEntry := Entry{
			AccountID:      account.AccountID,
			CampaignID:     &toCampaignID,
			Kind:           KindAllocation,
			Amount:         -amount.Int64(),
			BalanceAfter:   account.AvailableCredits,
			PerformedBy:    &actor,
			Reason:         reason,
			IdempotencyKey: inKey,
			Metadata:       metadata,
			CreatedUnixUTC: nowUnixUTC,
		}
		return transactionStore.AppendEntry(ctx, inEntry)
	})
	service.logOperation(ctx, OperationLog{
		Operation:      operationTransfer,
		AccountID:      accountID,
		CampaignID:     &fromCampaignID,
		Actor:          &actor,
		Amount:         amount.Int64(),
		IdempotencyKey: idempotencyKey,
		Error:          operationError,
	})
	if operationError == nil {
		service.recordAudit(ctx, AuditRecord{Actor: &actor, Action: operationTransfer, EntityID: fromCampaignID.String(), After: toCampaignID.String(), Reason: reason})
	}
	return operationError
}

// ForceCompleteCampaign terminates a campaign, optionally refunding the
// unused remainder to the account's available balance.
func (service *Service) ForceCompleteCampaign(ctx context.Context, campaignID CampaignID, actor ActorID, reason string, refundUnused bool, idempotencyKey IdempotencyKey, metadata MetadataJSON) error {
	var accountID AccountID
	var refunded int64
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		campaign, err := transactionStore.GetCampaign(ctx, campaignID)
		if err != nil {
			return err
		}
		if campaign.Status.Terminal() {
			return ErrInvalidCampaignState
		}
		accountID = campaign.AccountID
		if refundUnused && campaign.Pool.CreditsRemaining > 0 {
			account, err := transactionStore.GetAccount(ctx, campaign.AccountID)
			if err != nil {
				return err
			}
			refunded = campaign.Pool.CreditsRemaining
			campaign.Pool.CreditsRemaining = 0
			account.AvailableCredits += refunded
			account.TotalCreditsUsed -= refunded
			if err := transactionStore.UpdateAccount(ctx, account); err != nil {
				return err
			}
			entry := Entry{
				AccountID:      account.AccountID,
				CampaignID:     &campaignID,
				Kind:           KindRefund,
				Amount:         refunded,
				BalanceAfter:   account.AvailableCredits,
				PerformedBy:    &actor,
				Reason:         reason,
				IdempotencyKey: idempotencyKey,
				Metadata:       metadata,
				CreatedUnixUTC: service.nowFn(),
			}
			if err := transactionStore.AppendEntry(ctx, entry); err != nil {
				return err
			}
		}
		campaign.Status = StatusCompleted
		return transactionStore.UpdateCampaign(ctx, campaign)
	})
	service.logOperation(ctx, OperationLog{
		Operation:      operationForceComplete,
		AccountID:      accountID,
		CampaignID:     &campaignID,
		Actor:          &actor,
		Amount:         refunded,
		IdempotencyKey: idempotencyKey,
		Error:          operationError,
	})
	if operationError == nil {
		service.recordAudit(ctx, AuditRecord{Actor: &actor, Action: operationForceComplete, EntityID: campaignID.String(), Reason: reason})
		service.notify(ctx, accountID, operationForceComplete, map[string]any{"campaign": campaignID.String(), "refunded": refunded})
	}
	return operationError
}

// RemoveReaderAllocation releases exactly one consumed credit when a reader
// is removed from a campaign. By default the credit returns to the campaign's
// remaining pool; with refundToAccount it leaves the pool and goes back to
// the author, mirrored by a refund ledger entry.
func (service *Service) RemoveReaderAllocation(ctx context.Context, campaignID CampaignID, actor ActorID, reason string, refundToAccount bool, idempotencyKey IdempotencyKey, metadata MetadataJSON) error {
	var accountID AccountID
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		campaign, err := transactionStore.GetCampaign(ctx, campaignID)
		if err != nil {
			return err
		}
		if campaign.Status.Terminal() {
			return ErrInvalidCampaignState
		}
		if campaign.Pool.CreditsUsed < 1 {
			return ErrInsufficientBalance
		}
		accountID = campaign.AccountID
		campaign.Pool.CreditsUsed--
		if !refundToAccount {
			campaign.Pool.CreditsRemaining++
			return transactionStore.UpdateCampaign(ctx, campaign)
		}
		campaign.Pool.CreditsAllocated--
		account, err := transactionStore.GetAccount(ctx, campaign.AccountID)
		if err != nil {
			return err
		}
		account.AvailableCredits++
		account.TotalCreditsUsed--
		if err := transactionStore.UpdateAccount(ctx, account); err != nil {
			return err
		}
		if err := transactionStore.UpdateCampaign(ctx, campaign); err != nil {
			return err
		}
		return transactionStore.AppendEntry(ctx, Entry{
			AccountID:      account.AccountID,
			CampaignID:     &campaignID,
			Kind:           KindRefund,
			Amount:         1,
			BalanceAfter:   account.AvailableCredits,
			PerformedBy:    &actor,
			Reason:         reason,
			IdempotencyKey: idempotencyKey,
			Metadata:       metadata,
			CreatedUnixUTC: service.nowFn(),
		})
	})
	service.logOperation(ctx, OperationLog{
		Operation:      operationRemoveReader,
		AccountID:      accountID,
		CampaignID:     &campaignID,
		Actor:          &actor,
		Amount:         1,
		IdempotencyKey: idempotencyKey,
		Error:          operationError,
	})
	if operationError == nil {
		service.recordAudit(ctx, AuditRecord{Actor: &actor, Action: operationRemoveReader, EntityID: campaignID.String(), Reason: reason})
	}
	return operationError
}

// ManualGrantToReader consumes exactly one remaining credit for a manually
// assigned reader. The account is untouched; no ledger entry is written.
func (service *Service) ManualGrantToReader(ctx context.Context, campaignID CampaignID, actor ActorID, reason string) error {
	var accountID AccountID
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		campaign, err := transactionStore.GetCampaign(ctx, campaignID)
		if err != nil {
			return err
		}
		if campaign.Status.Terminal() {
			return ErrInvalidCampaignState
		}
		if campaign.Pool.CreditsRemaining < 1 {
			return ErrInsufficientBalance
		}
		accountID = campaign.AccountID
		campaign.Pool.CreditsRemaining--
		campaign.Pool.CreditsUsed++
		return transactionStore.UpdateCampaign(ctx, campaign)
	})
	service.logOperation(ctx, OperationLog{
		Operation:  operationManualGrant,
		AccountID:  accountID,
		CampaignID: &campaignID,
		Actor:      &actor,
		Amount:     1,
		Error:      operationError,
	})
	if operationError == nil {
		service.recordAudit(ctx, AuditRecord{Actor: &actor, Action: operationManualGrant, EntityID: campaignID.String(), Reason: reason})
	}
	return operationError
}

func accountBalance(account Account) Balance {
	return Balance{
		AvailableCredits:      account.AvailableCredits,
		TotalCreditsPurchased: account.TotalCreditsPurchased,
		TotalCreditsUsed:      account.TotalCreditsUsed,
	}
}
