package creditledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// AccountID identifies an author credit account.
type AccountID struct {
	value string
}

// CampaignID identifies a review campaign.
type CampaignID struct {
	value string
}

// ActorID identifies the admin or system principal performing a mutation.
type ActorID struct {
	value string
}

// IdempotencyKey scopes duplicate detection for balance-changing operations.
type IdempotencyKey struct {
	value string
}

// MetadataJSON stores arbitrary request metadata.
type MetadataJSON struct {
	value string
}

// CreditAmount is a strictly positive number of review credits.
type CreditAmount int64

// NewAccountID validates and normalizes an account id.
func NewAccountID(raw string) (AccountID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return AccountID{}, fmt.Errorf("%w: empty value", ErrInvalidAccountID)
	}
	return AccountID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id AccountID) String() string {
	return id.value
}

// NewCampaignID validates and normalizes a campaign id.
func NewCampaignID(raw string) (CampaignID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return CampaignID{}, fmt.Errorf("%w: empty value", ErrInvalidCampaignID)
	}
	return CampaignID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id CampaignID) String() string {
	return id.value
}

// NewActorID validates and normalizes an actor id.
func NewActorID(raw string) (ActorID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ActorID{}, fmt.Errorf("%w: empty value", ErrInvalidActorID)
	}
	return ActorID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id ActorID) String() string {
	return id.value
}

// NewIdempotencyKey validates and normalizes an idempotency key.
func NewIdempotencyKey(raw string) (IdempotencyKey, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return IdempotencyKey{}, fmt.Errorf("%w: empty value", ErrInvalidIdempotencyKey)
	}
	return IdempotencyKey{value: trimmed}, nil
}

// String returns the normalized key.
func (key IdempotencyKey) String() string {
	return key.value
}

// NewMetadataJSON validates metadata string (defaulting to "{}" for empty inputs).
func NewMetadataJSON(raw string) (MetadataJSON, error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		normalized = "{}"
	}
	if !json.Valid([]byte(normalized)) {
		return MetadataJSON{}, fmt.Errorf("%w: must be valid json", ErrInvalidMetadataJSON)
	}
	return MetadataJSON{value: normalized}, nil
}

// String returns the normalized JSON blob.
func (metadata MetadataJSON) String() string {
	return metadata.value
}

// NewCreditAmount validates an amount and ensures it is strictly positive.
func NewCreditAmount(raw int64) (CreditAmount, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	return CreditAmount(raw), nil
}

// Int64 returns the raw credit count.
func (amount CreditAmount) Int64() int64 {
	return int64(amount)
}

// EntryKind enumerates ledger entry kinds.
type EntryKind string

const (
	KindPurchase            EntryKind = "purchase"
	KindManualAdjustment    EntryKind = "manual_adjustment"
	KindAllocation          EntryKind = "allocation"
	KindRefund              EntryKind = "refund"
	KindSubscriptionRenewal EntryKind = "subscription_renewal"
	KindExpiration          EntryKind = "expiration"
	KindBonus               EntryKind = "bonus"
)

// String returns the wire value of the kind.
func (kind EntryKind) String() string {
	return string(kind)
}

// ParseEntryKind validates a stored entry kind.
func ParseEntryKind(raw string) (EntryKind, error) {
	switch EntryKind(raw) {
	case KindPurchase, KindManualAdjustment, KindAllocation, KindRefund,
		KindSubscriptionRenewal, KindExpiration, KindBonus:
		return EntryKind(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidEntryKind, raw)
}

// CampaignStatus enumerates the campaign lifecycle.
type CampaignStatus string

const (
	StatusDraft     CampaignStatus = "draft"
	StatusPending   CampaignStatus = "pending"
	StatusActive    CampaignStatus = "active"
	StatusPaused    CampaignStatus = "paused"
	StatusCompleted CampaignStatus = "completed"
	StatusCancelled CampaignStatus = "cancelled"
)

// String returns the wire value of the status.
func (status CampaignStatus) String() string {
	return string(status)
}

// Terminal reports whether the status is final.
func (status CampaignStatus) Terminal() bool {
	return status == StatusCompleted || status == StatusCancelled
}

// ParseCampaignStatus validates a stored campaign status.
func ParseCampaignStatus(raw string) (CampaignStatus, error) {
	switch CampaignStatus(raw) {
	case StatusDraft, StatusPending, StatusActive, StatusPaused, StatusCompleted, StatusCancelled:
		return CampaignStatus(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCampaignStatus, raw)
}

// HealthStatus classifies campaign delivery pacing.
type HealthStatus string

const (
	HealthAheadOfSchedule HealthStatus = "ahead-of-schedule"
	HealthOnTrack         HealthStatus = "on-track"
	HealthDelayed         HealthStatus = "delayed"
	HealthIssues          HealthStatus = "issues"
)

// Account is the author's aggregate credit balance.
// AvailableCredits always equals the running sum of the account's ledger entries.
type Account struct {
	AccountID             AccountID
	AvailableCredits      int64
	TotalCreditsPurchased int64
	TotalCreditsUsed      int64
}

// CampaignPool tracks the credits allocated to, used by, and remaining in a campaign.
// Invariant: CreditsAllocated == CreditsUsed + CreditsRemaining.
type CampaignPool struct {
	CreditsAllocated int64
	CreditsUsed      int64
	CreditsRemaining int64
}

// CampaignPacing carries the delivery counters and schedule state used by the
// pacing engine. Zero timestamps mean unset.
type CampaignPacing struct {
	TargetReviews      int64
	ReviewsPerWeek     int64
	ReviewsDelivered   int64
	ReviewsValidated   int64
	ReviewsRejected    int64
	ReviewsExpired     int64
	StartUnixUTC       int64
	ExpectedEndUnixUTC int64
	PausedAtUnixUTC    int64
	ResumedAtUnixUTC   int64
	ManualOverride     bool
	OverbookingPercent int64
	OverbookingEnabled bool
}

// Campaign aggregates pool, pacing state, and lifecycle status.
type Campaign struct {
	CampaignID CampaignID
	AccountID  AccountID
	Status     CampaignStatus
	Pool       CampaignPool
	Pacing     CampaignPacing
}

// A single immutable line in the ledger. Amount is signed; BalanceAfter is
// the account's available balance immediately after applying Amount.
type Entry struct {
	EntryID        string
	AccountID      AccountID
	CampaignID     *CampaignID
	Kind           EntryKind
	Amount         int64
	BalanceAfter   int64
	PerformedBy    *ActorID
	Reason         string
	IdempotencyKey IdempotencyKey
	Metadata       MetadataJSON
	CreatedUnixUTC int64
}

// Balance view for an account.
type Balance struct {
	AvailableCredits      int64
	TotalCreditsPurchased int64
	TotalCreditsUsed      int64
}

// HealthReport is the output of the pacing computation.
type HealthReport struct {
	Status                     HealthStatus
	WeeksElapsed               int64
	TotalPlannedWeeks          int64
	ReviewsExpected            int64
	Variance                   int64
	WeeksRemaining             int64
	ProjectedCompletionUnixUTC int64
	DaysOffSchedule            int64
}

// CatchUpResult describes a resume-with-catch-up transition.
type CatchUpResult struct {
	PauseDurationDays     int64
	MissedReviews         int64
	NewExpectedEndUnixUTC int64
}

// Store is the persistence contract used by Service. Implementations must
// serialize concurrent writers on the same account or campaign row for the
// duration of a WithTx scope.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	CreateAccount(ctx context.Context, account Account) error
	GetAccount(ctx context.Context, accountID AccountID) (Account, error)
	UpdateAccount(ctx context.Context, account Account) error
	CreateCampaign(ctx context.Context, campaign Campaign) error
	GetCampaign(ctx context.Context, campaignID CampaignID) (Campaign, error)
	UpdateCampaign(ctx context.Context, campaign Campaign) error
	AppendEntry(ctx context.Context, entry Entry) error
	ListEntries(ctx context.Context, accountID AccountID, beforeUnixUTC int64, limit int) ([]Entry, error)
	SumEntries(ctx context.Context, accountID AccountID) (int64, error)
}
