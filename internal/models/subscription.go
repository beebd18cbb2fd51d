package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SubscriptionCycle is the billing cadence of a recurring rule.
type SubscriptionCycle string

const (
	CycleWeekly  SubscriptionCycle = "weekly"
	CycleMonthly SubscriptionCycle = "monthly"
	CycleYearly  SubscriptionCycle = "yearly"
)

// Subscription is a recurring bill rule. AnchorDate is the user-set start
// and never moves; RunnerDate is the next-due cursor the scheduler advances
// each time it materializes a due transaction.
type Subscription struct {
	Base
	UserID   string            `gorm:"type:uuid;not null;index" json:"user_id"`
	Name     string            `gorm:"not null" json:"name"`
	Amount   decimal.Decimal   `gorm:"type:numeric(20,8);not null" json:"amount"`
	Currency string            `gorm:"size:3;not null;default:'USD'" json:"currency"`
	Cycle    SubscriptionCycle `gorm:"not null;default:'monthly'" json:"cycle"`

	AnchorDate time.Time `gorm:"not null" json:"anchor_date"`
	RunnerDate time.Time `gorm:"not null;index" json:"runner_date"`

	IsActive bool `gorm:"default:true" json:"is_active"`

	// WeekdaysOnly rolls due dates that land on a weekend forward to the
	// next weekday.
	WeekdaysOnly bool `gorm:"default:false" json:"weekdays_only"`

	SourceAccountID *string `gorm:"type:uuid" json:"source_account_id,omitempty"`

	// Relationships
	SourceAccount *Account      `gorm:"foreignKey:SourceAccountID" json:"source_account,omitempty"`
	Transactions  []Transaction `gorm:"foreignKey:SubscriptionID" json:"transactions,omitempty"`
}
