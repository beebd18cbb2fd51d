package services

import (
	"time"

	"github.com/shopspring/decimal"

	"tally/internal/models"
	"tally/internal/pagination"
)

// UserServicer defines the contract for user-related business logic.
type UserServicer interface {
	CreateUser(email, password, firstName, lastName string) (*models.User, error)
	GetUserByEmail(email string) (*models.User, error)
	GetUserByID(id string) (*models.User, error)
	VerifyPassword(user *models.User, password string) bool
	AttemptLogin(email, password string) (*models.User, error)
	StoreRefreshTokenHash(userID, tokenHash string) error
	GetRefreshTokenHash(userID string) (string, error)
}

// AccountServicer defines the contract for account-related business logic.
// Balances and holdings on accounts are derived state: the only mutation this
// service allows outside the reconciliation replay is the unit price of a
// tradable asset, which is an input to derivation rather than a result of it.
type AccountServicer interface {
	CreateLedgerAccount(userID, name, shortID, currency string, initialBalance decimal.Decimal) (*models.Account, error)
	CreateAssetAccount(userID, name string, accountType models.AccountType, currency string, initialHoldings, marketValue decimal.Decimal) (*models.Account, error)
	GetUserAccounts(userID string, page pagination.PageRequest) (*pagination.PageResponse[models.Account], error)
	GetAccountByID(userID, accountID string) (*models.Account, error)
	GetAccountByShortID(userID, shortID string) (*models.Account, error)
	UpdateAccount(userID, accountID, name string) (*models.Account, error)
	UpdateMarketValue(userID, accountID string, unitPrice decimal.Decimal) (*models.Account, error)
	DeactivateAccount(userID, accountID string) error
}

// TransactionInput carries the caller-supplied fields of a transaction.
type TransactionInput struct {
	Type            models.TransactionType
	CategoryGroup   models.CategoryGroup
	Subcategory     string
	Amount          decimal.Decimal
	Currency        string
	Date            time.Time
	Description     string
	Tags            []string
	SourceAccountID *string
	DestAccountID   *string
	AssetID         *string
	Units           decimal.Decimal
}

// TransactionFilter holds optional filter parameters for listing transactions.
type TransactionFilter struct {
	FromDate      *time.Time
	ToDate        *time.Time
	Type          *models.TransactionType
	CategoryGroup *models.CategoryGroup
	AccountID     *string
	MinAmount     *decimal.Decimal
	MaxAmount     *decimal.Decimal
}

// TransactionServicer defines the contract for transaction-related business
// logic. Every lifecycle transition of a transaction triggers a full
// reconciliation replay.
type TransactionServicer interface {
	CreateTransaction(userID string, input TransactionInput) (*models.Transaction, error)
	UpdateTransaction(userID, transactionID string, input TransactionInput) (*models.Transaction, error)
	DeleteTransaction(userID, transactionID string) error
	GetUserTransactions(userID string, page pagination.PageRequest, filter TransactionFilter) (*pagination.PageResponse[models.Transaction], error)
	GetTransactionByID(userID, transactionID string) (*models.Transaction, error)
}

// Reconciler derives authoritative balances and holdings by resetting every
// account to its initial state and replaying the full transaction log.
type Reconciler interface {
	Reconcile(userID string) error
}

// LotInput carries the caller-supplied fields of a stock lot.
type LotInput struct {
	AssetID       string
	TransactionID *string
	Side          models.LotSide
	Units         decimal.Decimal
	PricePerUnit  decimal.Decimal
	Fees          decimal.Decimal
	Date          time.Time
}

// CostBasisSummary is the weighted-average cost view of one asset.
type CostBasisSummary struct {
	AssetID           string          `json:"asset_id"`
	TotalUnits        decimal.Decimal `json:"total_units"`
	AverageCost       decimal.Decimal `json:"average_cost"`
	TotalInvested     decimal.Decimal `json:"total_invested"`
	CurrentValue      decimal.Decimal `json:"current_value"`
	UnrealizedGain    decimal.Decimal `json:"unrealized_gain"`
	UnrealizedGainPct decimal.Decimal `json:"unrealized_gain_pct"`
}

// LotServicer defines the contract for cost-basis lot management.
type LotServicer interface {
	AddLot(userID string, input LotInput) (*models.StockLot, error)
	UpdateLot(userID, lotID string, input LotInput) (*models.StockLot, error)
	DeleteLot(userID, lotID string) error
	GetAssetLots(userID, assetID string, page pagination.PageRequest) (*pagination.PageResponse[models.StockLot], error)
	CostBasis(userID, assetID string) (*CostBasisSummary, error)
}

// SubscriptionInput carries the caller-supplied fields of a recurring rule.
type SubscriptionInput struct {
	Name            string
	Amount          decimal.Decimal
	Currency        string
	Cycle           models.SubscriptionCycle
	AnchorDate      time.Time
	WeekdaysOnly    bool
	SourceAccountID *string
}

// SubscriptionServicer defines the contract for recurring bill rules and the
// scheduler pass that materializes due transactions from them.
type SubscriptionServicer interface {
	CreateSubscription(userID string, input SubscriptionInput) (*models.Subscription, error)
	UpdateSubscription(userID, subscriptionID string, input SubscriptionInput, isActive *bool) (*models.Subscription, error)
	DeleteSubscription(userID, subscriptionID string) error
	GetUserSubscriptions(userID string, page pagination.PageRequest) (*pagination.PageResponse[models.Subscription], error)
	GetSubscriptionByID(userID, subscriptionID string) (*models.Subscription, error)
	RunSchedulerPass(userID string, now time.Time) (int, error)
	NextDueDate(userID, subscriptionID string, now time.Time) (time.Time, error)
}

// Window is a half-open [Start, End) date interval.
type Window struct {
	Start time.Time
	End   time.Time
}

// MonthWindow returns the window covering one calendar month.
func MonthWindow(year int, month time.Month) Window {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return Window{Start: start, End: start.AddDate(0, 1, 0)}
}

// YearWindow returns the window covering one calendar year.
func YearWindow(year int) Window {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return Window{Start: start, End: start.AddDate(1, 0, 0)}
}

// Metrics holds the two headline financial health ratios for a window.
// ActivityRatio is fed exclusively by the transaction log and CoverageRatio
// by asset valuations, so a market-value change can never move the former.
type Metrics struct {
	Window            Window          `json:"-"`
	Currency          string          `json:"currency"`
	ActiveIncome      decimal.Decimal `json:"active_income"`
	WindowExpenses    decimal.Decimal `json:"window_expenses"`
	TrailingExpenses  decimal.Decimal `json:"trailing_expenses"`
	TotalAssetValue   decimal.Decimal `json:"total_asset_value"`
	ActivityRatio     float64         `json:"activity_ratio"`
	CoverageRatio     float64         `json:"coverage_ratio"`
	RateDegraded      bool            `json:"rate_degraded"`
}

// MetricsServicer computes period metrics from the transaction log and
// current asset valuations.
type MetricsServicer interface {
	ComputeMetrics(userID string, window Window) (*Metrics, error)
}

// AuditServicer defines the contract for audit logging.
type AuditServicer interface {
	Log(userID, action, resourceType, resourceID, ipAddress string, changes map[string]interface{})
}
