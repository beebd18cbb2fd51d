package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LotSide marks a lot as a buy or a sell.
type LotSide string

const (
	LotSideBuy  LotSide = "buy"
	LotSideSell LotSide = "sell"
)

// StockLot is one cost-basis entry for a tradable asset. The
// chronologically-ordered sequence of lots for an asset, replayed through the
// weighted-average algorithm, must fully explain the asset's holdings.
type StockLot struct {
	Base
	UserID  string `gorm:"type:uuid;not null;index" json:"user_id"`
	AssetID string `gorm:"type:uuid;not null;index" json:"asset_id"`

	// TransactionID links back to the originating transaction when the lot
	// was created from an asset purchase. It prevents duplicate lot creation
	// when the transaction is edited.
	TransactionID *string `gorm:"type:uuid;uniqueIndex" json:"transaction_id,omitempty"`

	Side         LotSide         `gorm:"not null" json:"side"`
	Units        decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"units"`
	PricePerUnit decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"price_per_unit"`
	Fees         decimal.Decimal `gorm:"type:numeric(20,8)" json:"fees"`
	Date         time.Time       `gorm:"not null;index" json:"date"`

	// Relationships
	Asset Account `gorm:"foreignKey:AssetID" json:"asset,omitempty"`
}

// GrossAmount returns Units × PricePerUnit plus fees for buys, minus fees for
// sells.
func (l *StockLot) GrossAmount() decimal.Decimal {
	base := l.Units.Mul(l.PricePerUnit)
	if l.Side == LotSideSell {
		return base.Sub(l.Fees)
	}
	return base.Add(l.Fees)
}
