package services

import (
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "tally/internal/errors"
	"tally/internal/fx"
	"tally/internal/logger"
	"tally/internal/models"
)

// withdrawalRate is the safe-withdrawal fraction the coverage projection
// applies to total asset value.
var withdrawalRate = decimal.NewFromFloat(0.04)

// metricsService computes the two headline ratios for a date window. It is a
// read-only consumer of the transaction log; the activity ratio never reads
// a derived balance, so it cannot go stale against a pending replay and
// cannot be moved by market prices.
type metricsService struct {
	db        *gorm.DB
	converter *fx.Converter
}

// NewMetricsService creates a new MetricsServicer.
func NewMetricsService(db *gorm.DB, converter *fx.Converter) MetricsServicer {
	return &metricsService{db: db, converter: converter}
}

// ComputeMetrics computes the activity and coverage ratios over the half-open
// window [Start, End), normalized into the user's reporting currency.
func (s *metricsService) ComputeMetrics(userID string, window Window) (*Metrics, error) {
	var user models.User
	if err := s.db.Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	m := &Metrics{Window: window, Currency: user.ReportingCurrency}

	// Activity ratio: in-window income over in-window non-investment
	// expenses, both straight from the log.
	income, err := s.sumTransactions(userID, window, models.TransactionTypeIncome, false, m)
	if err != nil {
		return nil, err
	}
	expenses, err := s.sumTransactions(userID, window, models.TransactionTypeExpense, true, m)
	if err != nil {
		return nil, err
	}
	m.ActiveIncome = income
	m.WindowExpenses = expenses
	m.ActivityRatio = safeRatio(income, expenses)

	// Coverage ratio: projected sustainable draw on current asset value over
	// the trailing twelve months of non-investment expenses.
	trailing := Window{Start: window.End.AddDate(-1, 0, 0), End: window.End}
	trailingExpenses, err := s.sumTransactions(userID, trailing, models.TransactionTypeExpense, true, m)
	if err != nil {
		return nil, err
	}
	assetValue, err := s.totalAssetValue(userID, user.ReportingCurrency, m)
	if err != nil {
		return nil, err
	}
	m.TrailingExpenses = trailingExpenses
	m.TotalAssetValue = assetValue
	m.CoverageRatio = safeRatio(assetValue.Mul(withdrawalRate), trailingExpenses)

	return m, nil
}

// sumTransactions normalizes and sums transactions of one type inside a
// window. When excludeInvestment is set, expenses categorized as investment
// are left out, since routing money into assets is not consumption.
func (s *metricsService) sumTransactions(userID string, window Window, txType models.TransactionType, excludeInvestment bool, m *Metrics) (decimal.Decimal, error) {
	q := s.db.Where("user_id = ? AND type = ? AND date >= ? AND date < ?",
		userID, txType, window.Start, window.End)
	if excludeInvestment {
		q = q.Where("category_group <> ?", models.CategoryInvestment)
	}

	var txs []models.Transaction
	if err := q.Find(&txs).Error; err != nil {
		return decimal.Zero, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	total := decimal.Zero
	for i := range txs {
		total = total.Add(s.normalize(txs[i].Amount, txs[i].Currency, m))
	}
	return total, nil
}

// totalAssetValue sums the current total value of every active account.
func (s *metricsService) totalAssetValue(userID, currency string, m *Metrics) (decimal.Decimal, error) {
	var accounts []models.Account
	if err := s.db.Where("user_id = ? AND is_active = ?", userID, true).Find(&accounts).Error; err != nil {
		return decimal.Zero, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	total := decimal.Zero
	for i := range accounts {
		total = total.Add(s.normalize(accounts[i].TotalValue(), accounts[i].Currency, m))
	}
	return total, nil
}

// normalize converts into the reporting currency, degrading to the
// unconverted amount when a rate is missing and flagging the result.
func (s *metricsService) normalize(amount decimal.Decimal, from string, m *Metrics) decimal.Decimal {
	converted, err := s.converter.Convert(amount, from, m.Currency)
	if errors.Is(err, fx.ErrRateUnavailable) {
		logger.Get().Warnw("rate unavailable in metrics, using unconverted amount",
			"from", from, "to", m.Currency)
		m.RateDegraded = true
	}
	return converted
}

// safeRatio divides numerator by denominator with the zero-denominator
// policy: 100 when there is any numerator (unbounded good), 0 when there is
// no data at all.
func safeRatio(numerator, denominator decimal.Decimal) float64 {
	if denominator.IsZero() {
		if numerator.IsPositive() {
			return 100
		}
		return 0
	}
	ratio, _ := numerator.Div(denominator).Float64()
	return ratio
}
