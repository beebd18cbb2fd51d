package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountType represents the kind of store of value an account tracks.
type AccountType string

const (
	AccountTypeCash   AccountType = "cash"
	AccountTypeStock  AccountType = "stock"
	AccountTypeCrypto AccountType = "crypto"
	AccountTypeOther  AccountType = "other"
)

// IsTradable reports whether the account type carries unit holdings priced
// per unit rather than a flat balance.
func (t AccountType) IsTradable() bool {
	return t == AccountTypeStock || t == AccountTypeCrypto
}

// Account represents a store of value: a cash ledger account or a tradable
// asset position. For cash-like accounts Holdings is 1 and MarketValue is the
// total balance; for tradable assets Holdings is the unit count and
// MarketValue the unit price. TotalValue is always Holdings × MarketValue.
//
// Holdings and MarketValue (for cash) are derived state: outside of the
// reconciliation replay nothing may write them. The sole exception is the
// unit price of a tradable asset, which is an input to derivation.
type Account struct {
	Base
	UserID string `gorm:"type:uuid;not null;index" json:"user_id"`

	// ShortID is the stable external-facing identifier. Only ledger (cash)
	// accounts carry one.
	ShortID *string `gorm:"uniqueIndex" json:"short_id,omitempty"`

	Name        string          `gorm:"not null" json:"name"`
	Type        AccountType     `gorm:"not null" json:"type"`
	Currency    string          `gorm:"size:3;not null;default:'USD'" json:"currency"`
	Holdings    decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"holdings"`
	MarketValue decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"market_value"`

	// InitialBalance and InitialHoldings record the replay reset point.
	// External capital and opening balances live here, never in the log.
	InitialBalance  decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"initial_balance"`
	InitialHoldings decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"initial_holdings"`

	LastUpdated time.Time `json:"last_updated"`
	IsActive    bool      `gorm:"default:true" json:"is_active"`

	// Relationships
	Lots []StockLot `gorm:"foreignKey:AssetID" json:"lots,omitempty"`
}

// TotalValue returns Holdings × MarketValue in the account's own currency.
func (a *Account) TotalValue() decimal.Decimal {
	return a.Holdings.Mul(a.MarketValue)
}
