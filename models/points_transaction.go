package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TransactionType string

const (
	TransactionEarned TransactionType = "earned"
	TransactionSpent  TransactionType = "spent"
	TransactionBonus  TransactionType = "bonus"
)

// TransactionSource names what caused a ledger entry.
type TransactionSource string

const (
	SourceEngagement  TransactionSource = "engagement"
	SourceReward      TransactionSource = "reward"
	SourceAchievement TransactionSource = "achievement"
	SourceAdmin       TransactionSource = "admin"
)

// PointsTransaction is an immutable ledger entry. The (source, source_id, type)
// index keeps a single source from being credited or debited twice.
type PointsTransaction struct {
	ID          string            `gorm:"primaryKey;type:uuid" json:"id"`
	UserID      string            `gorm:"index;not null" json:"user_id"`
	Amount      int64             `gorm:"not null" json:"amount"`
	Type        TransactionType   `gorm:"type:varchar(16);not null;uniqueIndex:idx_ledger_source" json:"type"`
	Description string            `json:"description"`
	Source      TransactionSource `gorm:"type:varchar(16);not null;uniqueIndex:idx_ledger_source" json:"source"`
	SourceID    string            `gorm:"not null;uniqueIndex:idx_ledger_source" json:"source_id"`
	CreatedAt   time.Time         `gorm:"index;not null" json:"created_at"`
}

func (t *PointsTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// Ledger entries are never updated or deleted.
func (t *PointsTransaction) BeforeUpdate(tx *gorm.DB) error {
	return gorm.ErrInvalidTransaction
}

func (t *PointsTransaction) BeforeDelete(tx *gorm.DB) error {
	return gorm.ErrInvalidTransaction
}
