package gormstore

import (
	"context"
	"errors"
	"time"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ReviewRampLab/creditengine/pkg/creditledger"
)

const (
	constraintEntryIdempotencyKey = "uniq_entry_idem"
	constraintAccountPrimary      = "accounts_pkey"
	constraintCampaignPrimary     = "campaigns_pkey"
	defaultMetadataJSON           = "{}"
	pgUniqueViolationCode         = "23505"
	sqliteConstraintCode          = 19
	errorOperationStore           = "store"
	errorSubjectAccount           = "account"
	errorSubjectCampaign          = "campaign"
	errorSubjectEntry             = "entry"
	errorCodeCreate               = "create"
	errorCodeDuplicate            = "duplicate"
	errorCodeGet                  = "get"
	errorCodeInsert               = "insert"
	errorCodeInvalid              = "invalid"
	errorCodeList                 = "list"
	errorCodeSum                  = "sum"
	errorCodeUpdate               = "update"
)

// Store implements creditledger.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the backing tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Account{}, &Campaign{}, &LedgerEntry{})
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore creditledger.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

func (store *Store) CreateAccount(ctx context.Context, account creditledger.Account) error {
	model := Account{
		AccountID:             account.AccountID.String(),
		AvailableCredits:      account.AvailableCredits,
		TotalCreditsPurchased: account.TotalCreditsPurchased,
		TotalCreditsUsed:      account.TotalCreditsUsed,
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err, constraintAccountPrimary) {
		return wrapStoreError(errorSubjectAccount, errorCodeDuplicate, creditledger.ErrAccountExists)
	}
	if err != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetAccount(ctx context.Context, accountID creditledger.AccountID) (creditledger.Account, error) {
	var model Account
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("account_id = ?", accountID.String()).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return creditledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, creditledger.ErrAccountNotFound)
		}
		return creditledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, err)
	}
	return mapAccount(model)
}

func (store *Store) UpdateAccount(ctx context.Context, account creditledger.Account) error {
	result := store.db.WithContext(ctx).
		Model(&Account{}).
		Where("account_id = ?", account.AccountID.String()).
		Updates(map[string]interface{}{
			"available_credits":       account.AvailableCredits,
			"total_credits_purchased": account.TotalCreditsPurchased,
			"total_credits_used":      account.TotalCreditsUsed,
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectAccount, errorCodeUpdate, creditledger.ErrAccountNotFound)
	}
	return nil
}

func (store *Store) CreateCampaign(ctx context.Context, campaign creditledger.Campaign) error {
	model := campaignModel(campaign)
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err, constraintCampaignPrimary) {
		return wrapStoreError(errorSubjectCampaign, errorCodeDuplicate, creditledger.ErrCampaignExists)
	}
	if err != nil {
		return wrapStoreError(errorSubjectCampaign, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetCampaign(ctx context.Context, campaignID creditledger.CampaignID) (creditledger.Campaign, error) {
	var model Campaign
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("campaign_id = ?", campaignID.String()).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return creditledger.Campaign{}, wrapStoreError(errorSubjectCampaign, errorCodeGet, creditledger.ErrCampaignNotFound)
		}
		return creditledger.Campaign{}, wrapStoreError(errorSubjectCampaign, errorCodeGet, err)
	}
	return mapCampaign(model)
}

func (store *Store) UpdateCampaign(ctx context.Context, campaign creditledger.Campaign) error {
	model := campaignModel(campaign)
	result := store.db.WithContext(ctx).
		Model(&Campaign{}).
		Where("campaign_id = ?", campaign.CampaignID.String()).
		Updates(map[string]interface{}{
			"status":              model.Status,
			"credits_allocated":   model.CreditsAllocated,
			"credits_used":        model.CreditsUsed,
			"credits_remaining":   model.CreditsRemaining,
			"target_reviews":      model.TargetReviews,
			"reviews_per_week":    model.ReviewsPerWeek,
			"reviews_delivered":   model.ReviewsDelivered,
			"reviews_validated":   model.ReviewsValidated,
			"reviews_rejected":    model.ReviewsRejected,
			"reviews_expired":     model.ReviewsExpired,
			"start_at":            model.StartAt,
			"expected_end_at":     model.ExpectedEndAt,
			"paused_at":           model.PausedAt,
			"resumed_at":          model.ResumedAt,
			"manual_override":     model.ManualOverride,
			"overbooking_percent": model.OverbookingPercent,
			"overbooking_enabled": model.OverbookingEnabled,
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectCampaign, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectCampaign, errorCodeUpdate, creditledger.ErrCampaignNotFound)
	}
	return nil
}

func (store *Store) AppendEntry(ctx context.Context, entry creditledger.Entry) error {
	var campaignID *string
	if entry.CampaignID != nil {
		value := entry.CampaignID.String()
		campaignID = &value
	}
	var performedBy *string
	if entry.PerformedBy != nil {
		value := entry.PerformedBy.String()
		performedBy = &value
	}
	model := LedgerEntry{
		EntryID:        entry.EntryID,
		AccountID:      entry.AccountID.String(),
		CampaignID:     campaignID,
		Kind:           string(entry.Kind),
		Amount:         entry.Amount,
		BalanceAfter:   entry.BalanceAfter,
		PerformedBy:    performedBy,
		Reason:         entry.Reason,
		IdempotencyKey: entry.IdempotencyKey.String(),
		Metadata:       datatypesJSON(entry.Metadata.String()),
		CreatedAt:      time.Unix(entry.CreatedUnixUTC, 0).UTC(),
	}
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err, constraintEntryIdempotencyKey) {
		return wrapStoreError(errorSubjectEntry, errorCodeDuplicate, creditledger.ErrDuplicateIdempotencyKey)
	}
	if err != nil {
		return wrapStoreError(errorSubjectEntry, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) ListEntries(ctx context.Context, accountID creditledger.AccountID, beforeUnixUTC int64, limit int) ([]creditledger.Entry, error) {
	before := time.Unix(beforeUnixUTC, 0).UTC()
	if beforeUnixUTC == 0 {
		before = time.Now().UTC().Add(time.Second)
	}

	var rows []LedgerEntry
	err := store.db.WithContext(ctx).
		Where("account_id = ? AND created_at < ?", accountID.String(), before).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeList, err)
	}

	entries := make([]creditledger.Entry, 0, len(rows))
	for _, row := range rows {
		entry, err := mapLedgerEntry(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (store *Store) SumEntries(ctx context.Context, accountID creditledger.AccountID) (int64, error) {
	var sum sqlSum
	err := store.db.WithContext(ctx).
		Model(&LedgerEntry{}).
		Select("coalesce(sum(amount),0) as total").
		Where("account_id = ?", accountID.String()).
		Scan(&sum).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectEntry, errorCodeSum, err)
	}
	return sum.Total, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return creditledger.WrapError(errorOperationStore, subject, code, err)
}

type sqlSum struct {
	Total int64
}

func mapAccount(model Account) (creditledger.Account, error) {
	accountID, err := creditledger.NewAccountID(model.AccountID)
	if err != nil {
		return creditledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
	}
	return creditledger.Account{
		AccountID:             accountID,
		AvailableCredits:      model.AvailableCredits,
		TotalCreditsPurchased: model.TotalCreditsPurchased,
		TotalCreditsUsed:      model.TotalCreditsUsed,
	}, nil
}

func campaignModel(campaign creditledger.Campaign) Campaign {
	return Campaign{
		CampaignID:         campaign.CampaignID.String(),
		AccountID:          campaign.AccountID.String(),
		Status:             string(campaign.Status),
		CreditsAllocated:   campaign.Pool.CreditsAllocated,
		CreditsUsed:        campaign.Pool.CreditsUsed,
		CreditsRemaining:   campaign.Pool.CreditsRemaining,
		TargetReviews:      campaign.Pacing.TargetReviews,
		ReviewsPerWeek:     campaign.Pacing.ReviewsPerWeek,
		ReviewsDelivered:   campaign.Pacing.ReviewsDelivered,
		ReviewsValidated:   campaign.Pacing.ReviewsValidated,
		ReviewsRejected:    campaign.Pacing.ReviewsRejected,
		ReviewsExpired:     campaign.Pacing.ReviewsExpired,
		StartAt:            unixToTime(campaign.Pacing.StartUnixUTC),
		ExpectedEndAt:      unixToTime(campaign.Pacing.ExpectedEndUnixUTC),
		PausedAt:           unixToTime(campaign.Pacing.PausedAtUnixUTC),
		ResumedAt:          unixToTime(campaign.Pacing.ResumedAtUnixUTC),
		ManualOverride:     campaign.Pacing.ManualOverride,
		OverbookingPercent: campaign.Pacing.OverbookingPercent,
		OverbookingEnabled: campaign.Pacing.OverbookingEnabled,
	}
}

func mapCampaign(model Campaign) (creditledger.Campaign, error) {
	campaignID, err := creditledger.NewCampaignID(model.CampaignID)
	if err != nil {
		return creditledger.Campaign{}, wrapStoreError(errorSubjectCampaign, errorCodeInvalid, err)
	}
	accountID, err := creditledger.NewAccountID(model.AccountID)
	if err != nil {
		return creditledger.Campaign{}, wrapStoreError(errorSubjectCampaign, errorCodeInvalid, err)
	}
	status, err := creditledger.ParseCampaignStatus(model.Status)
	if err != nil {
		return creditledger.Campaign{}, wrapStoreError(errorSubjectCampaign, errorCodeInvalid, err)
	}
	return creditledger.Campaign{
		CampaignID: campaignID,
		AccountID:  accountID,
		Status:     status,
		Pool: creditledger.CampaignPool{
			CreditsAllocated: model.CreditsAllocated,
			CreditsUsed:      model.CreditsUsed,
			CreditsRemaining: model.CreditsRemaining,
		},
		Pacing: creditledger.CampaignPacing{
			TargetReviews:      model.TargetReviews,
			ReviewsPerWeek:     model.ReviewsPerWeek,
			ReviewsDelivered:   model.ReviewsDelivered,
			ReviewsValidated:   model.ReviewsValidated,
			ReviewsRejected:    model.ReviewsRejected,
			ReviewsExpired:     model.ReviewsExpired,
			StartUnixUTC:       timeOrZero(model.StartAt),
			ExpectedEndUnixUTC: timeOrZero(model.ExpectedEndAt),
			PausedAtUnixUTC:    timeOrZero(model.PausedAt),
			ResumedAtUnixUTC:   timeOrZero(model.ResumedAt),
			ManualOverride:     model.ManualOverride,
			OverbookingPercent: model.OverbookingPercent,
			OverbookingEnabled: model.OverbookingEnabled,
		},
	}, nil
}

func mapLedgerEntry(row LedgerEntry) (creditledger.Entry, error) {
	accountID, err := creditledger.NewAccountID(row.AccountID)
	if err != nil {
		return creditledger.Entry{}, err
	}
	kind, err := creditledger.ParseEntryKind(row.Kind)
	if err != nil {
		return creditledger.Entry{}, err
	}
	var campaignID *creditledger.CampaignID
	if row.CampaignID != nil {
		parsed, err := creditledger.NewCampaignID(*row.CampaignID)
		if err != nil {
			return creditledger.Entry{}, err
		}
		campaignID = &parsed
	}
	var performedBy *creditledger.ActorID
	if row.PerformedBy != nil {
		parsed, err := creditledger.NewActorID(*row.PerformedBy)
		if err != nil {
			return creditledger.Entry{}, err
		}
		performedBy = &parsed
	}
	idempotencyKey, err := creditledger.NewIdempotencyKey(row.IdempotencyKey)
	if err != nil {
		return creditledger.Entry{}, err
	}
	metadata, err := creditledger.NewMetadataJSON(string(row.Metadata))
	if err != nil {
		return creditledger.Entry{}, err
	}
	return creditledger.Entry{
		EntryID:        row.EntryID,
		AccountID:      accountID,
		CampaignID:     campaignID,
		Kind:           kind,
		Amount:         row.Amount,
		BalanceAfter:   row.BalanceAfter,
		PerformedBy:    performedBy,
		Reason:         row.Reason,
		IdempotencyKey: idempotencyKey,
		Metadata:       metadata,
		CreatedUnixUTC: row.CreatedAt.Unix(),
	}, nil
}

func unixToTime(value int64) *time.Time {
	if value == 0 {
		return nil
	}
	converted := time.Unix(value, 0).UTC()
	return &converted
}

func timeOrZero(value *time.Time) int64 {
	if value == nil {
		return 0
	}
	return value.Unix()
}

func datatypesJSON(raw string) datatypes.JSON {
	if raw == "" {
		return datatypes.JSON([]byte(defaultMetadataJSON))
	}
	return datatypes.JSON([]byte(raw))
}

func isUniqueViolation(err error, constraint string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraint
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
