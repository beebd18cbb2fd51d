package services

import (
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "tally/internal/errors"
	"tally/internal/fx"
	"tally/internal/logger"
	"tally/internal/models"
)

// reconciler derives every balance and holding from scratch. Balances are
// never primary facts: the transaction log is, and this replay is the only
// code path allowed to write a balance.
type reconciler struct {
	db        *gorm.DB
	converter *fx.Converter

	// mu enforces the single-writer discipline: a replay must never
	// interleave with another replay or with a mutation that triggers one.
	mu sync.Mutex
}

// NewReconciler creates a new Reconciler.
func NewReconciler(db *gorm.DB, converter *fx.Converter) Reconciler {
	return &reconciler{db: db, converter: converter}
}

// Reconcile resets every account of the user to its initial balance or
// holdings and replays the full transaction log in insertion order, then
// persists the derived state as one atomic batch. Transactions referencing
// missing accounts are skipped with a warning; fetch failures abort the whole
// replay leaving the previous consistent state in place.
func (r *reconciler) Reconcile(userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var accounts []models.Account
	if err := r.db.Where("user_id = ?", userID).Find(&accounts).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	byID := make(map[string]*models.Account, len(accounts))
	for i := range accounts {
		acct := &accounts[i]
		acct.Holdings = acct.InitialHoldings
		if !acct.Type.IsTradable() {
			// Cash-like: MarketValue is the balance, reset to opening.
			acct.MarketValue = acct.InitialBalance
		}
		byID[acct.ID] = acct
	}

	// Insertion order, not occurrence date: each transaction's effect is
	// commutative across accounts, and insertion order is the one the log
	// actually recorded. UUIDv7 keys tie-break equal timestamps.
	var txs []models.Transaction
	if err := r.db.Where("user_id = ?", userID).
		Order("created_at ASC, id ASC").Find(&txs).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	for i := range txs {
		r.apply(byID, &txs[i])
	}

	// Lots entered directly (no originating transaction) carry holdings
	// effects the transaction log does not; replay them too so the reset is
	// fully explained.
	var lots []models.StockLot
	if err := r.db.Where("user_id = ? AND transaction_id IS NULL", userID).
		Order("date ASC, id ASC").Find(&lots).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	for i := range lots {
		lot := &lots[i]
		asset, ok := byID[lot.AssetID]
		if !ok {
			logger.Get().Warnw("lot references missing asset, skipping",
				"lot_id", lot.ID, "asset_id", lot.AssetID)
			continue
		}
		if lot.Side == models.LotSideSell {
			asset.Holdings = asset.Holdings.Sub(lot.Units)
		} else {
			asset.Holdings = asset.Holdings.Add(lot.Units)
		}
	}

	now := time.Now()
	err := r.db.Transaction(func(tx *gorm.DB) error {
		for i := range accounts {
			acct := &accounts[i]
			acct.LastUpdated = now
			if err := tx.Model(acct).Updates(map[string]interface{}{
				"holdings":     acct.Holdings,
				"market_value": acct.MarketValue,
				"last_updated": now,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	return nil
}

// apply folds one transaction into the in-memory account state. Bad
// references are data-integrity failures: skip the effect, log, continue.
func (r *reconciler) apply(byID map[string]*models.Account, tx *models.Transaction) {
	if tx.SourceAccountID != nil {
		src, ok := byID[*tx.SourceAccountID]
		switch {
		case !ok:
			logger.Get().Warnw("transaction references missing source account, skipping",
				"transaction_id", tx.ID, "account_id", *tx.SourceAccountID)
		case src.Type.IsTradable():
			logger.Get().Warnw("transaction uses tradable asset as cash source, skipping",
				"transaction_id", tx.ID, "account_id", src.ID)
		default:
			delta := r.normalize(tx, tx.Amount, src.Currency)
			// Income arriving into the labeled "source" account is the
			// one crediting type; everything else debits it.
			if tx.Type == models.TransactionTypeIncome {
				src.MarketValue = src.MarketValue.Add(delta)
			} else {
				src.MarketValue = src.MarketValue.Sub(delta)
			}
		}
	}

	switch tx.Type {
	case models.TransactionTypeTransfer:
		if tx.DestAccountID == nil {
			logger.Get().Warnw("transfer without destination account, skipping credit",
				"transaction_id", tx.ID)
			return
		}
		dst, ok := byID[*tx.DestAccountID]
		if !ok || dst.Type.IsTradable() {
			logger.Get().Warnw("transfer references missing or non-cash destination, skipping credit",
				"transaction_id", tx.ID, "account_id", *tx.DestAccountID)
			return
		}
		dst.MarketValue = dst.MarketValue.Add(r.normalize(tx, tx.Amount, dst.Currency))

	case models.TransactionTypeAssetPurchase:
		if tx.AssetID == nil {
			logger.Get().Warnw("asset purchase without target asset, skipping units",
				"transaction_id", tx.ID)
			return
		}
		asset, ok := byID[*tx.AssetID]
		if !ok {
			logger.Get().Warnw("asset purchase references missing asset, skipping units",
				"transaction_id", tx.ID, "asset_id", *tx.AssetID)
			return
		}
		// Only the unit count moves here; valuation and cost accounting
		// belong to the cost-basis ledger.
		asset.Holdings = asset.Holdings.Add(tx.Units)
	}
}

// normalize converts a transaction amount into the target account currency.
// An unavailable rate degrades to the unconverted amount with a warning; the
// replay must finish regardless.
func (r *reconciler) normalize(tx *models.Transaction, amount decimal.Decimal, target string) decimal.Decimal {
	converted, err := r.converter.Convert(amount, tx.Currency, target)
	if errors.Is(err, fx.ErrRateUnavailable) {
		logger.Get().Warnw("rate unavailable, applying unconverted amount",
			"transaction_id", tx.ID, "from", tx.Currency, "to", target)
	}
	return converted
}
