package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Account represents the accounts table.
type Account struct {
	AccountID             string    `gorm:"primaryKey"`
	AvailableCredits      int64     `gorm:"not null"`
	TotalCreditsPurchased int64     `gorm:"not null"`
	TotalCreditsUsed      int64     `gorm:"not null"`
	CreatedAt             time.Time `gorm:"not null"`
	UpdatedAt             time.Time `gorm:"not null"`
}

func (Account) TableName() string { return "accounts" }

// Campaign mirrors the campaigns table. Pool and pacing counters live in
// columns so a single row lock covers the whole aggregate.
type Campaign struct {
	CampaignID         string `gorm:"primaryKey"`
	AccountID          string `gorm:"not null;index:idx_campaigns_account"`
	Status             string `gorm:"not null"`
	CreditsAllocated   int64  `gorm:"not null"`
	CreditsUsed        int64  `gorm:"not null"`
	CreditsRemaining   int64  `gorm:"not null"`
	TargetReviews      int64  `gorm:"not null"`
	ReviewsPerWeek     int64  `gorm:"not null"`
	ReviewsDelivered   int64  `gorm:"not null"`
	ReviewsValidated   int64  `gorm:"not null"`
	ReviewsRejected    int64  `gorm:"not null"`
	ReviewsExpired     int64  `gorm:"not null"`
	StartAt            *time.Time
	ExpectedEndAt      *time.Time
	PausedAt           *time.Time
	ResumedAt          *time.Time
	ManualOverride     bool      `gorm:"not null"`
	OverbookingPercent int64     `gorm:"not null"`
	OverbookingEnabled bool      `gorm:"not null"`
	CreatedAt          time.Time `gorm:"not null"`
	UpdatedAt          time.Time `gorm:"not null"`
}

func (Campaign) TableName() string { return "campaigns" }

// LedgerEntry mirrors the ledger_entries table.
type LedgerEntry struct {
	EntryID        string         `gorm:"type:uuid;primaryKey"`
	AccountID      string         `gorm:"not null;index:idx_ledger_account_created,priority:1;index:uniq_entry_idem,unique,priority:1"`
	CampaignID     *string        `gorm:"index:idx_ledger_campaign"`
	Kind           string         `gorm:"not null"`
	Amount         int64          `gorm:"not null"`
	BalanceAfter   int64          `gorm:"not null"`
	PerformedBy    *string        `gorm:""`
	Reason         string         `gorm:"not null"`
	IdempotencyKey string         `gorm:"not null;index:uniq_entry_idem,unique,priority:2"`
	Metadata       datatypes.JSON `gorm:"not null"`
	CreatedAt      time.Time      `gorm:"not null;index:idx_ledger_account_created,priority:2"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

func (entry *LedgerEntry) BeforeCreate(tx *gorm.DB) error {
	if entry.EntryID == "" {
		entry.EntryID = uuid.NewString()
	}
	return nil
}
