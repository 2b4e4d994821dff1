package creditledger

import (
	"context"
	"errors"
	"testing"
)

const testNowUnixUTC int64 = 1_700_000_000

func TestAllocateToCampaignMovesCreditsAtomically(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	accountID := store.seedAccount(test, "acct-1", 100, 100, 0)
	campaignID := store.seedCampaign(test, "camp-1", "acct-1", StatusDraft, CampaignPool{}, defaultPacing())
	service := mustNewService(test, store)

	err := service.AllocateToCampaign(context.Background(), accountID, campaignID, mustAmount(test, 40), mustActorID(test, "admin-1"), "fund launch", mustIdempotencyKey(test, "alloc-1"), mustMetadata(test, "{}"))
	if err != nil {
		test.Fatalf("allocate: %v", err)
	}

	account := store.mustAccount(test, accountID)
	if account.AvailableCredits != 60 || account.TotalCreditsUsed != 40 {
		test.Fatalf("unexpected account after allocate: %+v", account)
	}
	campaign := store.mustCampaign(test, campaignID)
	if campaign.Pool.CreditsAllocated != 40 || campaign.Pool.CreditsRemaining != 40 || campaign.Pool.CreditsUsed != 0 {
		test.Fatalf("unexpected pool after allocate: %+v", campaign.Pool)
	}
	if len(store.entries) != 1 {
		test.Fatalf("expected 1 ledger entry, got %d", len(store.entries))
	}
	entry := store.entries[0]
	if entry.Kind != KindAllocation || entry.Amount != -40 || entry.BalanceAfter != 60 {
		test.Fatalf("unexpected allocation entry: %+v", entry)
	}
	if entry.CampaignID == nil || *entry.CampaignID != campaignID {
		test.Fatalf("allocation entry missing campaign id: %+v", entry)
	}
}

func TestAllocateInsufficientBalanceLeavesStateUnchanged(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	accountID := store.seedAccount(test, "acct-1", 25, 25, 0)
	campaignID := store.seedCampaign(test, "camp-1", "acct-1", StatusDraft, CampaignPool{}, defaultPacing())
	service := mustNewService(test, store)

	err := service.AllocateToCampaign(context.Background(), accountID, campaignID, mustAmount(test, 40), mustActorID(test, "admin-1"), "", mustIdempotencyKey(test, "alloc-low"), mustMetadata(test, "{}"))
	if !errors.Is(err, ErrInsufficientBalance) {
		test.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	account := store.mustAccount(test, accountID)
	if account.AvailableCredits != 25 || account.TotalCreditsUsed != 0 {
		test.Fatalf("account mutated on failed allocate: %+v", account)
	}
	campaign := store.mustCampaign(test, campaignID)
	if campaign.Pool != (CampaignPool{}) {
		test.Fatalf("pool mutated on failed allocate: %+v", campaign.Pool)
	}
	if len(store.entries) != 0 {
		test.Fatalf("expected no entries, got %d", len(store.entries))
	}
}

func TestAllocateRejectsForeignCampaign(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	accountID := store.seedAccount(test, "acct-1", 100, 100, 0)
	store.seedAccount(test, "acct-2", 50, 50, 0)
	campaignID := store.seedCampaign(test, "camp-other", "acct-2", StatusDraft, CampaignPool{}, defaultPacing())
	service := mustNewService(test, store)

	err := service.AllocateToCampaign(context.Background(), accountID, campaignID, mustAmount(test, 10), mustActorID(test, "admin-1"), "", mustIdempotencyKey(test, "alloc-x"), mustMetadata(test, "{}"))
	if !errors.Is(err, ErrCampaignAccountMismatch) {
		test.Fatalf("expected ErrCampaignAccountMismatch, got %v", err)
	}
}

func TestAllocateRejectsTerminalCampaign(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	accountID := store.seedAccount(test, "acct-1", 100, 100, 0)
	campaignID := store.seedCampaign(test, "camp-done", "acct-1", StatusCompleted, CampaignPool{}, defaultPacing())
	service := mustNewService(test, store)

	err := service.AllocateToCampaign(context.Background(), accountID, campaignID, mustAmount(test, 10), mustActorID(test, "admin-1"), "", mustIdempotencyKey(test, "alloc-done"), mustMetadata(test, "{}"))
	if !errors.Is(err, ErrInvalidCampaignState) {
		test.Fatalf("expected ErrInvalidCampaignState, got %v", err)
	}
}

func TestTransferIsZeroSumAndLeavesBalanceAlone(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	accountID := store.seedAccount(test, "acct-1", 20, 120, 100)
	fromID := store.seedCampaign(test, "camp-a", "acct-1", StatusActive, CampaignPool{CreditsAllocated: 60, CreditsUsed: 20, CreditsRemaining: 40}, defaultPacing())
	toID := store.seedCampaign(test, "camp-b", "acct-1", StatusActive, CampaignPool{CreditsAllocated: 40, CreditsUsed: 10, CreditsRemaining: 30}, defaultPacing())
	service := mustNewService(test, store)

	err := service.TransferBetweenCampaigns(context.Background(), fromID, toID, mustAmount(test, 15), mustActorID(test, "admin-1"), "rebalance", mustIdempotencyKey(test, "tx-1"), mustMetadata(test, "{}"))
	if err != nil {
		test.Fatalf("transfer: %v", err)
	}

	fromCampaign := store.mustCampaign(test, fromID)
	toCampaign := store.mustCampaign(test, toID)
	if fromCampaign.Pool.CreditsAllocated != 45 || fromCampaign.Pool.CreditsRemaining != 25 {
		test.Fatalf("unexpected source pool: %+v", fromCampaign.Pool)
	}
	if toCampaign.Pool.CreditsAllocated != 55 || toCampaign.Pool.CreditsRemaining != 45 {
		test.Fatalf("unexpected target pool: %+v", toCampaign.Pool)
	}
	if fromCampaign.Pool.CreditsAllocated+toCampaign.Pool.CreditsAllocated != 100 {
		test.Fatalf("transfer changed total allocation")
	}
	account := store.mustAccount(test, accountID)
	if account.AvailableCredits != 20 {
		test.Fatalf("transfer touched the account balance: %+v", account)
	}
	if len(store.entries) != 2 {
		test.Fatalf("expected paired entries, got %d", len(store.entries))
	}
	outEntry, inEntry := store.entries[0], store.entries[1]
	if outEntry.Amount+inEntry.Amount != 0 {
		test.Fatalf("entries not opposite-signed: %d and %d", outEntry.Amount, inEntry.Amount)
	}
	if outEntry.BalanceAfter != 20 || inEntry.BalanceAfter != 20 {
		test.Fatalf("entries must carry the unchanged balance: %+v %+v", outEntry, inEntry)
	}
	if outEntry.IdempotencyKey == inEntry.IdempotencyKey {
		test.Fatalf("expected distinct derived keys, got %s", outEntry.IdempotencyKey.String())
	}
}

func TestTransferInsufficientRemainingLeavesPoolsUnchanged(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	store.seedAccount(test, "acct-1", 5, 100, 95)
	fromID := store.seedCampaign(test, "camp-a", "acct-1", StatusActive, CampaignPool{CreditsAllocated: 30, CreditsUsed: 20, CreditsRemaining: 10}, defaultPacing())
	toID := store.seedCampaign(test, "camp-b", "acct-1", StatusActive, CampaignPool{CreditsAllocated: 10, CreditsUsed: 0, CreditsRemaining: 10}, defaultPacing())
	service := mustNewService(test, store)

	err := service.TransferBetweenCampaigns(context.Background(), fromID, toID, mustAmount(test, 15), mustActorID(test, "admin-1"), "", mustIdempotencyKey(test, "tx-low"), mustMetadata(test, "{}"))
	if !errors.Is(err, ErrInsufficientBalance) {
		test.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	fromCampaign := store.mustCampaign(test, fromID)
	toCampaign := store.mustCampaign(test, toID)
	if fromCampaign.Pool.CreditsRemaining != 10 || toCampaign.Pool.CreditsRemaining != 10 {
		test.Fatalf("pools mutated on failed transfer: %+v %+v", fromCampaign.Pool, toCampaign.Pool)
	}
	if len(store.entries) != 0 {
		test.Fatalf("expected no entries, got %d", len(store.entries))
	}
}

func TestTransferRejectsCampaignsOnDifferentAccounts(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	store.seedAccount(test, "acct-1", 0, 50, 50)
	store.seedAccount(test, "acct-2", 0, 50, 50)
	fromID := store.seedCampaign(test, "camp-a", "acct-1", StatusActive, CampaignPool{CreditsAllocated: 50, CreditsRemaining: 50}, defaultPacing())
	toID := store.seedCampaign(test, "camp-b", "acct-2", StatusActive, CampaignPool{}, defaultPacing())
	service := mustNewService(test, store)

	err := service.TransferBetweenCampaigns(context.Background(), fromID, toID, mustAmount(test, 5), mustActorID(test, "admin-1"), "", mustIdempotencyKey(test, "tx-x"), mustMetadata(test, "{}"))
	if !errors.Is(err, ErrMismatchedCampaigns) {
		test.Fatalf("expected ErrMismatchedCampaigns, got %v", err)
	}
}

func TestForceCompleteRefundsUnusedCredits(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	accountID := store.seedAccount(test, "acct-1", 10, 100, 90)
	campaignID := store.seedCampaign(test, "camp-1", "acct-1", StatusActive, CampaignPool{CreditsAllocated: 90, CreditsUsed: 60, CreditsRemaining: 30}, defaultPacing())
	service := mustNewService(test, store)

	err := service.ForceCompleteCampaign(context.Background(), campaignID, mustActorID(test, "admin-1"), "author request", true, mustIdempotencyKey(test, "fc-1"), mustMetadata(test, "{}"))
	if err != nil {
		test.Fatalf("force complete: %v", err)
	}

	account := store.mustAccount(test, accountID)
	if account.AvailableCredits != 40 || account.TotalCreditsUsed != 60 {
		test.Fatalf("unexpected account after refund: %+v", account)
	}
	campaign := store.mustCampaign(test, campaignID)
	if campaign.Pool.CreditsRemaining != 0 || campaign.Pool.CreditsAllocated != 90 {
		test.Fatalf("unexpected pool after refund: %+v", campaign.Pool)
	}
	if campaign.Status != StatusCompleted {
		test.Fatalf("expected completed campaign, got %s", campaign.Status)
	}
	if len(store.entries) != 1 {
		test.Fatalf("expected one refund entry, got %d", len(store.entries))
	}
	entry := store.entries[0]
	if entry.Kind != KindRefund || entry.Amount != 30 || entry.BalanceAfter != 40 {
		test.Fatalf("unexpected refund entry: %+v", entry)
	}
}

func TestForceCompleteWithoutRefundKeepsPool(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	store.seedAccount(test, "acct-1", 10, 100, 90)
	campaignID := store.seedCampaign(test, "camp-1", "acct-1", StatusActive, CampaignPool{CreditsAllocated: 90, CreditsUsed: 60, CreditsRemaining: 30}, defaultPacing())
	service := mustNewService(test, store)

	err := service.ForceCompleteCampaign(context.Background(), campaignID, mustActorID(test, "admin-1"), "", false, mustIdempotencyKey(test, "fc-2"), mustMetadata(test, "{}"))
	if err != nil {
		test.Fatalf("force complete: %v", err)
	}
	campaign := store.mustCampaign(test, campaignID)
	if campaign.Pool.CreditsRemaining != 30 || campaign.Status != StatusCompleted {
		test.Fatalf("unexpected campaign: %+v", campaign)
	}
	if len(store.entries) != 0 {
		test.Fatalf("expected no ledger entries, got %d", len(store.entries))
	}
}

func TestForceCompleteTwiceFails(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	store.seedAccount(test, "acct-1", 0, 0, 0)
	campaignID := store.seedCampaign(test, "camp-1", "acct-1", StatusActive, CampaignPool{}, defaultPacing())
	service := mustNewService(test, store)
	actor := mustActorID(test, "admin-1")

	if err := service.ForceCompleteCampaign(context.Background(), campaignID, actor, "", false, mustIdempotencyKey(test, "fc-a"), mustMetadata(test, "{}")); err != nil {
		test.Fatalf("first force complete: %v", err)
	}
	err := service.ForceCompleteCampaign(context.Background(), campaignID, actor, "", false, mustIdempotencyKey(test, "fc-b"), mustMetadata(test, "{}"))
	if !errors.Is(err, ErrInvalidCampaignState) {
		test.Fatalf("expected ErrInvalidCampaignState, got %v", err)
	}
}

func TestDeallocateReturnsUnusedCredits(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	accountID := store.seedAccount(test, "acct-1", 10, 100, 90)
	campaignID := store.seedCampaign(test, "camp-1", "acct-1", StatusActive, CampaignPool{CreditsAllocated: 90, CreditsUsed: 50, CreditsRemaining: 40}, defaultPacing())
	service := mustNewService(test, store)

	err := service.DeallocateFromCampaign(context.Background(), campaignID, mustAmount(test, 25), mustActorID(test, "admin-1"), "overfunded", mustIdempotencyKey(test, "dealloc-1"), mustMetadata(test, "{}"))
	if err != nil {
		test.Fatalf("deallocate: %v", err)
	}
	account := store.mustAccount(test, accountID)
	if account.AvailableCredits != 35 || account.TotalCreditsUsed != 65 {
		test.Fatalf("unexpected account: %+v", account)
	}
	campaign := store.mustCampaign(test, campaignID)
	if campaign.Pool.CreditsAllocated != 65 || campaign.Pool.CreditsRemaining != 15 {
		test.Fatalf("unexpected pool: %+v", campaign.Pool)
	}
	if campaign.Pool.CreditsAllocated != campaign.Pool.CreditsUsed+campaign.Pool.CreditsRemaining {
		test.Fatalf("pool invariant broken: %+v", campaign.Pool)
	}
	if len(store.entries) != 1 || store.entries[0].Kind != KindRefund || store.entries[0].Amount != 25 {
		test.Fatalf("unexpected entries: %+v", store.entries)
	}
}

func TestAddCreditsBumpsPurchasedTotal(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	accountID := store.seedAccount(test, "acct-1", 10, 10, 0)
	service := mustNewService(test, store)

	err := service.AddCredits(context.Background(), accountID, mustAmount(test, 50), mustActorID(test, "admin-1"), "goodwill", mustIdempotencyKey(test, "add-1"), mustMetadata(test, "{}"))
	if err != nil {
		test.Fatalf("add credits: %v", err)
	}
	account := store.mustAccount(test, accountID)
	if account.AvailableCredits != 60 || account.TotalCreditsPurchased != 60 {
		test.Fatalf("unexpected account: %+v", account)
	}
	entry := store.entries[0]
	if entry.Kind != KindManualAdjustment || entry.Amount != 50 || entry.BalanceAfter != 60 {
		test.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.PerformedBy == nil || entry.PerformedBy.String() != "admin-1" {
		test.Fatalf("expected actor attribution, got %+v", entry.PerformedBy)
	}
}

func TestRemoveCreditsGuardsBalanceAndKeepsPurchased(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	accountID := store.seedAccount(test, "acct-1", 30, 100, 70)
	service := mustNewService(test, store)
	actor := mustActorID(test, "admin-1")

	err := service.RemoveCredits(context.Background(), accountID, mustAmount(test, 40), actor, "", mustIdempotencyKey(test, "rm-1"), mustMetadata(test, "{}"))
	if !errors.Is(err, ErrInsufficientBalance) {
		test.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := service.RemoveCredits(context.Background(), accountID, mustAmount(test, 20), actor, "correction", mustIdempotencyKey(test, "rm-2"), mustMetadata(test, "{}")); err != nil {
		test.Fatalf("remove credits: %v", err)
	}
	account := store.mustAccount(test, accountID)
	if account.AvailableCredits != 10 || account.TotalCreditsPurchased != 100 {
		test.Fatalf("unexpected account: %+v", account)
	}
	if store.entries[0].Amount != -20 {
		test.Fatalf("unexpected entry amount: %d", store.entries[0].Amount)
	}
}

func TestPurchaseBonusAndExpirationKinds(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	accountID := store.seedAccount(test, "acct-1", 0, 0, 0)
	service := mustNewService(test, store)

	if err := service.RecordPurchase(context.Background(), accountID, mustAmount(test, 100), "stripe checkout", mustIdempotencyKey(test, "pay-1"), mustMetadata(test, "{}")); err != nil {
		test.Fatalf("purchase: %v", err)
	}
	if err := service.GrantBonus(context.Background(), accountID, mustAmount(test, 10), mustActorID(test, "admin-1"), "affiliate bonus", mustIdempotencyKey(test, "bonus-1"), mustMetadata(test, "{}")); err != nil {
		test.Fatalf("bonus: %v", err)
	}
	if err := service.ExpireCredits(context.Background(), accountID, mustAmount(test, 5), "12 month expiry", mustIdempotencyKey(test, "exp-1"), mustMetadata(test, "{}")); err != nil {
		test.Fatalf("expire: %v", err)
	}

	account := store.mustAccount(test, accountID)
	if account.AvailableCredits != 105 || account.TotalCreditsPurchased != 100 {
		test.Fatalf("unexpected account: %+v", account)
	}
	kinds := []EntryKind{store.entries[0].Kind, store.entries[1].Kind, store.entries[2].Kind}
	if kinds[0] != KindPurchase || kinds[1] != KindBonus || kinds[2] != KindExpiration {
		test.Fatalf("unexpected kinds: %v", kinds)
	}
	if store.entries[0].PerformedBy != nil {
		test.Fatalf("purchase entries are system-generated, got actor %+v", store.entries[0].PerformedBy)
	}
}

func TestDuplicateIdempotencyKeyRejected(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	accountID := store.seedAccount(test, "acct-1", 0, 0, 0)
	service := mustNewService(test, store)
	actor := mustActorID(test, "admin-1")
	key := mustIdempotencyKey(test, "add-once")

	if err := service.AddCredits(context.Background(), accountID, mustAmount(test, 10), actor, "", key, mustMetadata(test, "{}")); err != nil {
		test.Fatalf("first add: %v", err)
	}
	err := service.AddCredits(context.Background(), accountID, mustAmount(test, 10), actor, "", key, mustMetadata(test, "{}"))
	if !errors.Is(err, ErrDuplicateIdempotencyKey) {
		test.Fatalf("expected ErrDuplicateIdempotencyKey, got %v", err)
	}
}

func TestRemoveReaderReturnsCreditToCampaignByDefault(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	accountID := store.seedAccount(test, "acct-1", 0, 50, 50)
	campaignID := store.seedCampaign(test, "camp-1", "acct-1", StatusActive, CampaignPool{CreditsAllocated: 50, CreditsUsed: 20, CreditsRemaining: 30}, defaultPacing())
	service := mustNewService(test, store)

	err := service.RemoveReaderAllocation(context.Background(), campaignID, mustActorID(test, "admin-1"), "reader dropped", false, mustIdempotencyKey(test, "rr-1"), mustMetadata(test, "{}"))
	if err != nil {
		test.Fatalf("remove reader: %v", err)
	}
	campaign := store.mustCampaign(test, campaignID)
	if campaign.Pool.CreditsUsed != 19 || campaign.Pool.CreditsRemaining != 31 || campaign.Pool.CreditsAllocated != 50 {
		test.Fatalf("unexpected pool: %+v", campaign.Pool)
	}
	account := store.mustAccount(test, accountID)
	if account.AvailableCredits != 0 {
		test.Fatalf("account should be untouched: %+v", account)
	}
	if len(store.entries) != 0 {
		test.Fatalf("expected no ledger entry, got %d", len(store.entries))
	}
}

func TestRemoveReaderCanRefundToAccount(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	accountID := store.seedAccount(test, "acct-1", 0, 50, 50)
	campaignID := store.seedCampaign(test, "camp-1", "acct-1", StatusActive, CampaignPool{CreditsAllocated: 50, CreditsUsed: 20, CreditsRemaining: 30}, defaultPacing())
	service := mustNewService(test, store)

	err := service.RemoveReaderAllocation(context.Background(), campaignID, mustActorID(test, "admin-1"), "reader dropped", true, mustIdempotencyKey(test, "rr-2"), mustMetadata(test, "{}"))
	if err != nil {
		test.Fatalf("remove reader: %v", err)
	}
	campaign := store.mustCampaign(test, campaignID)
	if campaign.Pool.CreditsUsed != 19 || campaign.Pool.CreditsRemaining != 30 || campaign.Pool.CreditsAllocated != 49 {
		test.Fatalf("unexpected pool: %+v", campaign.Pool)
	}
	account := store.mustAccount(test, accountID)
	if account.AvailableCredits != 1 || account.TotalCreditsUsed != 49 {
		test.Fatalf("unexpected account: %+v", account)
	}
	if len(store.entries) != 1 || store.entries[0].Kind != KindRefund || store.entries[0].Amount != 1 {
		test.Fatalf("unexpected entries: %+v", store.entries)
	}
}

func TestManualGrantConsumesOneRemainingCredit(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	store.seedAccount(test, "acct-1", 0, 50, 50)
	campaignID := store.seedCampaign(test, "camp-1", "acct-1", StatusActive, CampaignPool{CreditsAllocated: 50, CreditsUsed: 49, CreditsRemaining: 1}, defaultPacing())
	service := mustNewService(test, store)
	actor := mustActorID(test, "admin-1")

	if err := service.ManualGrantToReader(context.Background(), campaignID, actor, "vip reader"); err != nil {
		test.Fatalf("manual grant: %v", err)
	}
	campaign := store.mustCampaign(test, campaignID)
	if campaign.Pool.CreditsRemaining != 0 || campaign.Pool.CreditsUsed != 50 {
		test.Fatalf("unexpected pool: %+v", campaign.Pool)
	}
	err := service.ManualGrantToReader(context.Background(), campaignID, actor, "vip reader")
	if !errors.Is(err, ErrInsufficientBalance) {
		test.Fatalf("expected ErrInsufficientBalance on empty pool, got %v", err)
	}
}

func TestLedgerBalanceInvariantAcrossOperations(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	accountID := store.seedAccount(test, "acct-1", 0, 0, 0)
	campaignID := store.seedCampaign(test, "camp-1", "acct-1", StatusDraft, CampaignPool{}, defaultPacing())
	service := mustNewService(test, store)
	actor := mustActorID(test, "admin-1")
	metadata := mustMetadata(test, "{}")

	if err := service.RecordPurchase(context.Background(), accountID, mustAmount(test, 200), "", mustIdempotencyKey(test, "seq-1"), metadata); err != nil {
		test.Fatalf("purchase: %v", err)
	}
	if err := service.AllocateToCampaign(context.Background(), accountID, campaignID, mustAmount(test, 120), actor, "", mustIdempotencyKey(test, "seq-2"), metadata); err != nil {
		test.Fatalf("allocate: %v", err)
	}
	if err := service.RemoveCredits(context.Background(), accountID, mustAmount(test, 30), actor, "", mustIdempotencyKey(test, "seq-3"), metadata); err != nil {
		test.Fatalf("remove: %v", err)
	}
	if err := service.DeallocateFromCampaign(context.Background(), campaignID, mustAmount(test, 20), actor, "", mustIdempotencyKey(test, "seq-4"), metadata); err != nil {
		test.Fatalf("deallocate: %v", err)
	}

	account := store.mustAccount(test, accountID)
	var sum int64
	for _, entry := range store.entries {
		sum += entry.Amount
	}
	if sum != account.AvailableCredits {
		test.Fatalf("ledger sum %d != available %d", sum, account.AvailableCredits)
	}
	last := store.entries[len(store.entries)-1]
	if last.BalanceAfter != account.AvailableCredits {
		test.Fatalf("last balanceAfter %d != available %d", last.BalanceAfter, account.AvailableCredits)
	}
	if err := service.Reconcile(context.Background(), accountID); err != nil {
		test.Fatalf("reconcile: %v", err)
	}
}

func TestReconcileDetectsDrift(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	accountID := store.seedAccount(test, "acct-1", 40, 40, 0)
	service := mustNewService(test, store)

	err := service.Reconcile(context.Background(), accountID)
	if !errors.Is(err, ErrInvalidBalance) {
		test.Fatalf("expected drift error for balance with no entries, got %v", err)
	}
}

func TestBalanceAndUnknownAccount(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	accountID := store.seedAccount(test, "acct-1", 70, 100, 30)
	service := mustNewService(test, store)

	balance, err := service.Balance(context.Background(), accountID)
	if err != nil {
		test.Fatalf("balance: %v", err)
	}
	if balance.AvailableCredits != 70 || balance.TotalCreditsPurchased != 100 || balance.TotalCreditsUsed != 30 {
		test.Fatalf("unexpected balance: %+v", balance)
	}
	_, err = service.Balance(context.Background(), mustAccountID(test, "ghost"))
	if !errors.Is(err, ErrAccountNotFound) {
		test.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestCreateCampaignValidatesInputs(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	accountID := store.seedAccount(test, "acct-1", 0, 0, 0)
	service := mustNewService(test, store)
	campaignID := mustCampaignID(test, "camp-new")

	if err := service.CreateCampaign(context.Background(), campaignID, accountID, 0, 10, 0, false); !errors.Is(err, ErrInvalidTargetReviews) {
		test.Fatalf("expected ErrInvalidTargetReviews, got %v", err)
	}
	if err := service.CreateCampaign(context.Background(), campaignID, accountID, 100, 0, 0, false); !errors.Is(err, ErrInvalidDistributionRate) {
		test.Fatalf("expected ErrInvalidDistributionRate, got %v", err)
	}
	if err := service.CreateCampaign(context.Background(), campaignID, accountID, 100, 10, 120, true); !errors.Is(err, ErrInvalidOverbooking) {
		test.Fatalf("expected ErrInvalidOverbooking, got %v", err)
	}
	if err := service.CreateCampaign(context.Background(), campaignID, accountID, 100, 10, 20, true); err != nil {
		test.Fatalf("create campaign: %v", err)
	}
	campaign := store.mustCampaign(test, campaignID)
	if campaign.Status != StatusDraft || campaign.Pool != (CampaignPool{}) {
		test.Fatalf("unexpected new campaign: %+v", campaign)
	}
}

func TestNewServiceRequiresDependencies(test *testing.T) {
	test.Parallel()
	_, err := NewService(nil, func() int64 { return 0 })
	if !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected invalid service config error, got %v", err)
	}
	_, err = NewService(newStubStore(test), nil)
	if !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected invalid service config error, got %v", err)
	}
}

type stubStore struct {
	accounts    map[AccountID]Account
	campaigns   map[CampaignID]Campaign
	entries     []Entry
	idempotency map[string]struct{}
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	return &stubStore{
		accounts:    make(map[AccountID]Account),
		campaigns:   make(map[CampaignID]Campaign),
		idempotency: make(map[string]struct{}),
	}
}

func (store *stubStore) seedAccount(test *testing.T, rawID string, available, purchased, used int64) AccountID {
	test.Helper()
	accountID := mustAccountID(test, rawID)
	store.accounts[accountID] = Account{
		AccountID:             accountID,
		AvailableCredits:      available,
		TotalCreditsPurchased: purchased,
		TotalCreditsUsed:      used,
	}
	return accountID
}

func (store *stubStore) seedCampaign(test *testing.T, rawID string, rawAccountID string, status CampaignStatus, pool CampaignPool, pacing CampaignPacing) CampaignID {
	test.Helper()
	campaignID := mustCampaignID(test, rawID)
	store.campaigns[campaignID] = Campaign{
		CampaignID: campaignID,
		AccountID:  mustAccountID(test, rawAccountID),
		Status:     status,
		Pool:       pool,
		Pacing:     pacing,
	}
	return campaignID
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	return fn(ctx, store)
}

func (store *stubStore) CreateAccount(ctx context.Context, account Account) error {
	if _, exists := store.accounts[account.AccountID]; exists {
		return ErrAccountExists
	}
	store.accounts[account.AccountID] = account
	return nil
}

func (store *stubStore) GetAccount(ctx context.Context, accountID AccountID) (Account, error) {
	account, ok := store.accounts[accountID]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return account, nil
}

func (store *stubStore) UpdateAccount(ctx context.Context, account Account) error {
	if _, ok := store.accounts[account.AccountID]; !ok {
		return ErrAccountNotFound
	}
	store.accounts[account.AccountID] = account
	return nil
}

func (store *stubStore) CreateCampaign(ctx context.Context, campaign Campaign) error {
	if _, exists := store.campaigns[campaign.CampaignID]; exists {
		return ErrCampaignExists
	}
	store.campaigns[campaign.CampaignID] = campaign
	return nil
}

func (store *stubStore) GetCampaign(ctx context.Context, campaignID CampaignID) (Campaign, error) {
	campaign, ok := store.campaigns[campaignID]
	if !ok {
		return Campaign{}, ErrCampaignNotFound
	}
	return campaign, nil
}

func (store *stubStore) UpdateCampaign(ctx context.Context, campaign Campaign) error {
	if _, ok := store.campaigns[campaign.CampaignID]; !ok {
		return ErrCampaignNotFound
	}
	store.campaigns[campaign.CampaignID] = campaign
	return nil
}

func (store *stubStore) AppendEntry(ctx context.Context, entry Entry) error {
	dedupeKey := entry.AccountID.String() + "|" + entry.IdempotencyKey.String()
	if _, exists := store.idempotency[dedupeKey]; exists {
		return ErrDuplicateIdempotencyKey
	}
	store.idempotency[dedupeKey] = struct{}{}
	store.entries = append(store.entries, entry)
	return nil
}

func (store *stubStore) ListEntries(ctx context.Context, accountID AccountID, beforeUnixUTC int64, limit int) ([]Entry, error) {
	out := make([]Entry, 0, len(store.entries))
	for _, entry := range store.entries {
		if entry.AccountID != accountID {
			continue
		}
		if beforeUnixUTC != 0 && entry.CreatedUnixUTC >= beforeUnixUTC {
			continue
		}
		out = append(out, entry)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (store *stubStore) SumEntries(ctx context.Context, accountID AccountID) (int64, error) {
	var sum int64
	for _, entry := range store.entries {
		if entry.AccountID == accountID {
			sum += entry.Amount
		}
	}
	return sum, nil
}

func (store *stubStore) mustAccount(test *testing.T, accountID AccountID) Account {
	test.Helper()
	account, ok := store.accounts[accountID]
	if !ok {
		test.Fatalf("account %s not found", accountID.String())
	}
	return account
}

func (store *stubStore) mustCampaign(test *testing.T, campaignID CampaignID) Campaign {
	test.Helper()
	campaign, ok := store.campaigns[campaignID]
	if !ok {
		test.Fatalf("campaign %s not found", campaignID.String())
	}
	return campaign
}

func defaultPacing() CampaignPacing {
	return CampaignPacing{TargetReviews: 100, ReviewsPerWeek: 10}
}

func mustNewService(test *testing.T, store Store) *Service {
	test.Helper()
	service, err := NewService(store, func() int64 { return testNowUnixUTC })
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

func mustAccountID(test *testing.T, raw string) AccountID {
	test.Helper()
	value, err := NewAccountID(raw)
	if err != nil {
		test.Fatalf("account id: %v", err)
	}
	return value
}

func mustCampaignID(test *testing.T, raw string) CampaignID {
	test.Helper()
	value, err := NewCampaignID(raw)
	if err != nil {
		test.Fatalf("campaign id: %v", err)
	}
	return value
}

func mustActorID(test *testing.T, raw string) ActorID {
	test.Helper()
	value, err := NewActorID(raw)
	if err != nil {
		test.Fatalf("actor id: %v", err)
	}
	return value
}

func mustIdempotencyKey(test *testing.T, raw string) IdempotencyKey {
	test.Helper()
	value, err := NewIdempotencyKey(raw)
	if err != nil {
		test.Fatalf("idempotency key: %v", err)
	}
	return value
}

func mustMetadata(test *testing.T, raw string) MetadataJSON {
	test.Helper()
	value, err := NewMetadataJSON(raw)
	if err != nil {
		test.Fatalf("metadata: %v", err)
	}
	return value
}

func mustAmount(test *testing.T, raw int64) CreditAmount {
	test.Helper()
	value, err := NewCreditAmount(raw)
	if err != nil {
		test.Fatalf("amount: %v", err)
	}
	return value
}
