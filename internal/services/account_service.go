package services

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "tally/internal/errors"
	"tally/internal/models"
	"tally/internal/pagination"
)

// accountService handles account-related business logic.
type accountService struct {
	db *gorm.DB
}

// NewAccountService creates a new AccountServicer.
func NewAccountService(db *gorm.DB) AccountServicer {
	return &accountService{db: db}
}

// CreateLedgerAccount creates a cash-like account. The initial balance is
// recorded as the replay reset point, not as a transaction: opening capital
// exists outside the event log.
func (s *accountService) CreateLedgerAccount(userID, name, shortID, currency string, initialBalance decimal.Decimal) (*models.Account, error) {
	if name == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "account name is required")
	}
	if shortID == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "ledger accounts require a short ID")
	}
	if currency == "" {
		currency = "USD"
	}

	shortID = strings.ToLower(shortID)
	var count int64
	s.db.Model(&models.Account{}).Where("short_id = ?", shortID).Count(&count)
	if count > 0 {
		return nil, apperrors.ErrDuplicateShortID
	}

	account := &models.Account{
		UserID:          userID,
		ShortID:         &shortID,
		Name:            name,
		Type:            models.AccountTypeCash,
		Currency:        currency,
		Holdings:        decimal.NewFromInt(1),
		MarketValue:     initialBalance,
		InitialBalance:  initialBalance,
		InitialHoldings: decimal.NewFromInt(1),
		LastUpdated:     time.Now(),
		IsActive:        true,
	}

	if err := s.db.Create(account).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	return account, nil
}

// CreateAssetAccount creates a tradable (or other) asset position. Holdings
// count units; MarketValue is the unit price.
func (s *accountService) CreateAssetAccount(userID, name string, accountType models.AccountType, currency string, initialHoldings, marketValue decimal.Decimal) (*models.Account, error) {
	if name == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "account name is required")
	}
	if accountType == models.AccountTypeCash {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "use a ledger account for cash")
	}
	if currency == "" {
		currency = "USD"
	}

	account := &models.Account{
		UserID:          userID,
		Name:            name,
		Type:            accountType,
		Currency:        currency,
		Holdings:        initialHoldings,
		MarketValue:     marketValue,
		InitialBalance:  decimal.Zero,
		InitialHoldings: initialHoldings,
		LastUpdated:     time.Now(),
		IsActive:        true,
	}

	if err := s.db.Create(account).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	return account, nil
}

// GetUserAccounts retrieves a paginated list of accounts for a user.
func (s *accountService) GetUserAccounts(userID string, page pagination.PageRequest) (*pagination.PageResponse[models.Account], error) {
	page.Defaults()

	var totalItems int64
	base := s.db.Model(&models.Account{}).Where("user_id = ? AND is_active = ?", userID, true)
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var accounts []models.Account
	if err := base.Scopes(pagination.Paginate(page)).Find(&accounts).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(accounts, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// GetAccountByID retrieves an account owned by the user.
func (s *accountService) GetAccountByID(userID, accountID string) (*models.Account, error) {
	var account models.Account
	if err := s.db.Where("id = ? AND user_id = ?", accountID, userID).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrAccountNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &account, nil
}

// GetAccountByShortID resolves the stable external-facing short ID.
func (s *accountService) GetAccountByShortID(userID, shortID string) (*models.Account, error) {
	var account models.Account
	if err := s.db.Where("short_id = ? AND user_id = ?", strings.ToLower(shortID), userID).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrAccountNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &account, nil
}

// UpdateAccount renames an account. Balances and holdings are off-limits
// here: only the reconciliation replay writes those.
func (s *accountService) UpdateAccount(userID, accountID, name string) (*models.Account, error) {
	account, err := s.GetAccountByID(userID, accountID)
	if err != nil {
		return nil, err
	}

	if name == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "account name is required")
	}

	account.Name = name
	if err := s.db.Model(account).Update("name", name).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	return account, nil
}

// UpdateMarketValue sets the unit price of a tradable asset. This is the one
// legal balance-adjacent write outside the replay: price is an input to
// derivation. Cash balances cannot be set this way.
func (s *accountService) UpdateMarketValue(userID, accountID string, unitPrice decimal.Decimal) (*models.Account, error) {
	account, err := s.GetAccountByID(userID, accountID)
	if err != nil {
		return nil, err
	}

	if !account.Type.IsTradable() {
		return nil, apperrors.ErrAccountNotAsset
	}
	if unitPrice.IsNegative() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "unit price cannot be negative")
	}

	now := time.Now()
	account.MarketValue = unitPrice
	account.LastUpdated = now
	if err := s.db.Model(account).Updates(map[string]interface{}{
		"market_value": unitPrice,
		"last_updated": now,
	}).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	return account, nil
}

// DeactivateAccount soft-disables an account. History referencing it stays in
// the log; the replay keeps resolving it.
func (s *accountService) DeactivateAccount(userID, accountID string) error {
	account, err := s.GetAccountByID(userID, accountID)
	if err != nil {
		return err
	}

	if err := s.db.Model(account).Update("is_active", false).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return nil
}
