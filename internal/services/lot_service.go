package services

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "tally/internal/errors"
	"tally/internal/logger"
	"tally/internal/models"
	"tally/internal/pagination"
)

var hundred = decimal.NewFromInt(100)

// lotService handles cost-basis lot management for tradable assets.
type lotService struct {
	db             *gorm.DB
	accountService AccountServicer
	reconciler     Reconciler
}

// NewLotService creates a new LotServicer.
func NewLotService(db *gorm.DB, accountService AccountServicer, reconciler Reconciler) LotServicer {
	return &lotService{db: db, accountService: accountService, reconciler: reconciler}
}

// AddLot records a buy or sell lot against a tradable asset. A TransactionID
// link is rejected when a lot for that transaction already exists: lots
// originating from the log are created exactly once.
func (s *lotService) AddLot(userID string, input LotInput) (*models.StockLot, error) {
	asset, err := s.validateInput(userID, &input)
	if err != nil {
		return nil, err
	}

	if input.TransactionID != nil {
		var count int64
		s.db.Model(&models.StockLot{}).Where("transaction_id = ?", *input.TransactionID).Count(&count)
		if count > 0 {
			return nil, apperrors.ErrDuplicateLot
		}
	}

	if input.Side == models.LotSideSell && asset.Holdings.LessThan(input.Units) {
		return nil, apperrors.ErrInsufficientUnits
	}

	lot := &models.StockLot{
		UserID:        userID,
		AssetID:       input.AssetID,
		TransactionID: input.TransactionID,
		Side:          input.Side,
		Units:         input.Units,
		PricePerUnit:  input.PricePerUnit,
		Fees:          input.Fees,
		Date:          input.Date,
	}

	if err := s.db.Create(lot).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	s.reconcileAfter("add", lot.ID, userID)
	return lot, nil
}

// UpdateLot edits a manually entered lot in place. Lots carrying a
// TransactionID are owned by the log: editing one here would move the cost
// basis while the replay keeps deriving holdings from the stale transaction
// Units, so linked lots can only change through the transaction itself.
// Holdings are re-derived by the replay that follows; this method never
// writes them.
func (s *lotService) UpdateLot(userID, lotID string, input LotInput) (*models.StockLot, error) {
	lot, err := s.getLot(userID, lotID)
	if err != nil {
		return nil, err
	}
	if lot.TransactionID != nil {
		return nil, apperrors.ErrLotLinked
	}
	if input.AssetID == "" {
		input.AssetID = lot.AssetID
	}
	if _, err := s.validateInput(userID, &input); err != nil {
		return nil, err
	}

	lot.AssetID = input.AssetID
	lot.Side = input.Side
	lot.Units = input.Units
	lot.PricePerUnit = input.PricePerUnit
	lot.Fees = input.Fees
	lot.Date = input.Date

	if err := s.db.Save(lot).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	s.reconcileAfter("update", lot.ID, userID)
	return lot, nil
}

// DeleteLot removes a manually entered lot; the replay that follows reverses
// its holdings effect. Linked lots are rejected for the same reason as in
// UpdateLot: deleting one would leave the purchase transaction re-adding
// units the lot sequence no longer explains.
func (s *lotService) DeleteLot(userID, lotID string) error {
	lot, err := s.getLot(userID, lotID)
	if err != nil {
		return err
	}
	if lot.TransactionID != nil {
		return apperrors.ErrLotLinked
	}

	if err := s.db.Delete(lot).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	s.reconcileAfter("delete", lot.ID, userID)
	return nil
}

// GetAssetLots returns a paginated list of lots for an asset, oldest first,
// the same order the cost-basis replay consumes them.
func (s *lotService) GetAssetLots(userID, assetID string, page pagination.PageRequest) (*pagination.PageResponse[models.StockLot], error) {
	if _, err := s.accountService.GetAccountByID(userID, assetID); err != nil {
		return nil, err
	}

	page.Defaults()

	base := s.db.Model(&models.StockLot{}).Where("user_id = ? AND asset_id = ?", userID, assetID)

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var lots []models.StockLot
	if err := base.Order("date ASC, id ASC").Scopes(pagination.Paginate(page)).Find(&lots).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(lots, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// CostBasis replays all lots of one asset oldest-first through the
// weighted-average pool and returns the derived cost view.
func (s *lotService) CostBasis(userID, assetID string) (*CostBasisSummary, error) {
	asset, err := s.accountService.GetAccountByID(userID, assetID)
	if err != nil {
		return nil, err
	}
	if !asset.Type.IsTradable() {
		return nil, apperrors.ErrAccountNotAsset
	}

	var lots []models.StockLot
	if err := s.db.Where("user_id = ? AND asset_id = ?", userID, assetID).
		Order("date ASC, id ASC").Find(&lots).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	units, avgCost := averageCostPool(lots)
	invested := totalInvested(lots)
	currentValue := asset.TotalValue()

	gain := currentValue.Sub(invested)
	gainPct := decimal.Zero
	if !invested.IsZero() {
		gainPct = gain.Div(invested).Mul(hundred)
	}

	return &CostBasisSummary{
		AssetID:           assetID,
		TotalUnits:        units,
		AverageCost:       avgCost,
		TotalInvested:     invested,
		CurrentValue:      currentValue,
		UnrealizedGain:    gain,
		UnrealizedGainPct: gainPct,
	}, nil
}

// averageCostPool runs the weighted-average algorithm: buys grow the cost
// pool by price×units+fees, sells drain it proportionally. Sells consume the
// average pool, not specific lots. There is no FIFO/LIFO queue here.
func averageCostPool(lots []models.StockLot) (units, avgCost decimal.Decimal) {
	pool := decimal.Zero
	for i := range lots {
		lot := &lots[i]
		if lot.Side == models.LotSideBuy {
			pool = pool.Add(lot.Units.Mul(lot.PricePerUnit)).Add(lot.Fees)
			units = units.Add(lot.Units)
			continue
		}
		if units.IsPositive() {
			pool = pool.Sub(pool.Mul(lot.Units.Div(units)))
			units = units.Sub(lot.Units)
		}
	}
	if units.IsPositive() {
		avgCost = pool.Div(units)
	}
	return units, avgCost
}

// totalInvested is the gross capital contributed: buy totals minus sell
// totals over an independent pass, deliberately decoupled from the average
// pool above.
func totalInvested(lots []models.StockLot) decimal.Decimal {
	invested := decimal.Zero
	for i := range lots {
		lot := &lots[i]
		if lot.Side == models.LotSideBuy {
			invested = invested.Add(lot.GrossAmount())
		} else {
			invested = invested.Sub(lot.GrossAmount())
		}
	}
	return invested
}

func (s *lotService) getLot(userID, lotID string) (*models.StockLot, error) {
	var lot models.StockLot
	if err := s.db.Where("id = ? AND user_id = ?", lotID, userID).First(&lot).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrLotNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &lot, nil
}

func (s *lotService) validateInput(userID string, input *LotInput) (*models.Account, error) {
	if input.Units.IsNegative() || input.Units.IsZero() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "units must be greater than zero")
	}
	if input.PricePerUnit.IsNegative() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "price per unit cannot be negative")
	}
	if input.Fees.IsNegative() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "fees cannot be negative")
	}
	if input.Date.IsZero() {
		input.Date = time.Now()
	}
	if input.Side != models.LotSideBuy && input.Side != models.LotSideSell {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "side must be buy or sell")
	}

	asset, err := s.accountService.GetAccountByID(userID, input.AssetID)
	if err != nil {
		return nil, err
	}
	if !asset.Type.IsTradable() {
		return nil, apperrors.ErrAccountNotAsset
	}
	return asset, nil
}

func (s *lotService) reconcileAfter(op, lotID, userID string) {
	if err := s.reconciler.Reconcile(userID); err != nil {
		logger.Get().Errorw("reconciliation after lot mutation failed",
			"op", op, "lot_id", lotID, "user_id", userID, "error", err)
	}
}
