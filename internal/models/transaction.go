package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType represents the direction and shape of a transaction.
type TransactionType string

const (
	TransactionTypeIncome        TransactionType = "income"
	TransactionTypeExpense       TransactionType = "expense"
	TransactionTypeTransfer      TransactionType = "transfer"
	TransactionTypeAssetPurchase TransactionType = "asset_purchase"
)

// CategoryGroup is the fixed high-level spending classification. Free-form
// labeling happens in Subcategory; the group set itself is closed because the
// metrics aggregator keys off it.
type CategoryGroup string

const (
	CategorySurvival      CategoryGroup = "survival"
	CategoryMaterial      CategoryGroup = "material"
	CategoryExperiential  CategoryGroup = "experiential"
	CategoryInvestment    CategoryGroup = "investment"
	CategoryUncategorized CategoryGroup = "uncategorized"
)

// Transaction is one entry of the append-only financial event log. The
// Amount holds a non-negative magnitude; direction is encoded by Type.
// Balances are never stored on a transaction; they are derived by replaying
// the full log.
type Transaction struct {
	Base
	UserID        string          `gorm:"type:uuid;not null;index" json:"user_id"`
	Type          TransactionType `gorm:"not null" json:"type"`
	CategoryGroup CategoryGroup   `gorm:"not null;default:'uncategorized'" json:"category_group"`
	Subcategory   string          `json:"subcategory"`
	Amount        decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"amount"`
	Currency      string          `gorm:"size:3;not null;default:'USD'" json:"currency"`
	Date          time.Time       `gorm:"not null;index" json:"date"`
	Description   string          `json:"description"`
	Tags          []string        `gorm:"serializer:json" json:"tags,omitempty"`

	// SourceAccountID is the account debited (or, for income, credited).
	SourceAccountID *string `gorm:"type:uuid" json:"source_account_id,omitempty"`

	// DestAccountID is set only for transfers.
	DestAccountID *string `gorm:"type:uuid" json:"dest_account_id,omitempty"`

	// AssetID and Units are set only for asset purchases.
	AssetID *string         `gorm:"type:uuid" json:"asset_id,omitempty"`
	Units   decimal.Decimal `gorm:"type:numeric(20,8)" json:"units,omitempty"`

	// SubscriptionID marks transactions materialized by the scheduler.
	SubscriptionID *string `gorm:"type:uuid;index" json:"subscription_id,omitempty"`

	// Relationships
	SourceAccount *Account      `gorm:"foreignKey:SourceAccountID" json:"source_account,omitempty"`
	DestAccount   *Account      `gorm:"foreignKey:DestAccountID" json:"dest_account,omitempty"`
	Asset         *Account      `gorm:"foreignKey:AssetID" json:"asset,omitempty"`
	Subscription  *Subscription `gorm:"foreignKey:SubscriptionID" json:"subscription,omitempty"`
}
