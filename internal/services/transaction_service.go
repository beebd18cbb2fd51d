package services

import (
	"errors"
	"time"

	"gorm.io/gorm"

	apperrors "tally/internal/errors"
	"tally/internal/logger"
	"tally/internal/models"
	"tally/internal/pagination"
)

// transactionService handles the append-only transaction log. It owns no
// balance math: every mutation ends by handing the whole log to the
// reconciler.
type transactionService struct {
	db             *gorm.DB
	accountService AccountServicer
	reconciler     Reconciler
}

// NewTransactionService creates a new TransactionServicer.
func NewTransactionService(db *gorm.DB, accountService AccountServicer, reconciler Reconciler) TransactionServicer {
	return &transactionService{
		db:             db,
		accountService: accountService,
		reconciler:     reconciler,
	}
}

// CreateTransaction appends a transaction to the log and triggers a replay.
func (s *transactionService) CreateTransaction(userID string, input TransactionInput) (*models.Transaction, error) {
	if err := s.validateInput(userID, &input); err != nil {
		return nil, err
	}

	transaction := &models.Transaction{
		UserID:          userID,
		Type:            input.Type,
		CategoryGroup:   input.CategoryGroup,
		Subcategory:     input.Subcategory,
		Amount:          input.Amount,
		Currency:        input.Currency,
		Date:            input.Date,
		Description:     input.Description,
		Tags:            input.Tags,
		SourceAccountID: input.SourceAccountID,
		DestAccountID:   input.DestAccountID,
		AssetID:         input.AssetID,
		Units:           input.Units,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if txErr := tx.Create(transaction).Error; txErr != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, txErr)
		}
		return s.syncPurchaseLot(tx, transaction)
	})
	if err != nil {
		return nil, err
	}

	s.reconcileAfter("create", transaction.ID, userID)
	return transaction, nil
}

// UpdateTransaction mutates a transaction in place and triggers a replay.
func (s *transactionService) UpdateTransaction(userID, transactionID string, input TransactionInput) (*models.Transaction, error) {
	transaction, err := s.GetTransactionByID(userID, transactionID)
	if err != nil {
		return nil, err
	}
	if err := s.validateInput(userID, &input); err != nil {
		return nil, err
	}

	transaction.Type = input.Type
	transaction.CategoryGroup = input.CategoryGroup
	transaction.Subcategory = input.Subcategory
	transaction.Amount = input.Amount
	transaction.Currency = input.Currency
	transaction.Date = input.Date
	transaction.Description = input.Description
	transaction.Tags = input.Tags
	transaction.SourceAccountID = input.SourceAccountID
	transaction.DestAccountID = input.DestAccountID
	transaction.AssetID = input.AssetID
	transaction.Units = input.Units

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if txErr := tx.Save(transaction).Error; txErr != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, txErr)
		}
		return s.syncPurchaseLot(tx, transaction)
	})
	if err != nil {
		return nil, err
	}

	s.reconcileAfter("update", transaction.ID, userID)
	return transaction, nil
}

// DeleteTransaction removes a transaction (and its linked lot) and triggers a
// replay.
func (s *transactionService) DeleteTransaction(userID, transactionID string) error {
	transaction, err := s.GetTransactionByID(userID, transactionID)
	if err != nil {
		return err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if txErr := tx.Where("transaction_id = ?", transaction.ID).
			Delete(&models.StockLot{}).Error; txErr != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, txErr)
		}
		if txErr := tx.Delete(transaction).Error; txErr != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, txErr)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.reconcileAfter("delete", transaction.ID, userID)
	return nil
}

// GetUserTransactions retrieves a paginated, filtered list of transactions.
func (s *transactionService) GetUserTransactions(userID string, page pagination.PageRequest, filter TransactionFilter) (*pagination.PageResponse[models.Transaction], error) {
	page.Defaults()

	base := s.db.Model(&models.Transaction{}).Where("user_id = ?", userID)
	base = applyTransactionFilters(base, filter)

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var transactions []models.Transaction
	if err := base.Scopes(pagination.Paginate(page)).
		Order("date DESC").
		Find(&transactions).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(transactions, page.Page, page.PageSize, totalItems)
	return &result, nil
}

func applyTransactionFilters(q *gorm.DB, f TransactionFilter) *gorm.DB {
	if f.FromDate != nil {
		q = q.Where("date >= ?", *f.FromDate)
	}
	if f.ToDate != nil {
		q = q.Where("date < ?", *f.ToDate)
	}
	if f.Type != nil {
		q = q.Where("type = ?", *f.Type)
	}
	if f.CategoryGroup != nil {
		q = q.Where("category_group = ?", *f.CategoryGroup)
	}
	if f.AccountID != nil {
		q = q.Where("source_account_id = ? OR dest_account_id = ? OR asset_id = ?",
			*f.AccountID, *f.AccountID, *f.AccountID)
	}
	if f.MinAmount != nil {
		q = q.Where("amount >= ?", *f.MinAmount)
	}
	if f.MaxAmount != nil {
		q = q.Where("amount <= ?", *f.MaxAmount)
	}
	return q
}

// GetTransactionByID retrieves a transaction by ID for a specific user.
func (s *transactionService) GetTransactionByID(userID, transactionID string) (*models.Transaction, error) {
	var transaction models.Transaction
	if err := s.db.Where("id = ? AND user_id = ?", transactionID, userID).First(&transaction).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrTransactionNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &transaction, nil
}

// validateInput enforces the reference invariant: exactly one of destination
// account and target asset may be set, and only when the type matches.
func (s *transactionService) validateInput(userID string, input *TransactionInput) error {
	if input.Amount.IsNegative() || input.Amount.IsZero() {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "amount must be greater than zero")
	}
	if input.Currency == "" {
		input.Currency = "USD"
	}
	if input.CategoryGroup == "" {
		input.CategoryGroup = models.CategoryUncategorized
	}
	if input.Date.IsZero() {
		input.Date = time.Now()
	}

	switch input.Type {
	case models.TransactionTypeIncome, models.TransactionTypeExpense:
		if input.DestAccountID != nil || input.AssetID != nil {
			return apperrors.ErrMisplacedReference
		}
	case models.TransactionTypeTransfer:
		if input.AssetID != nil || input.DestAccountID == nil {
			return apperrors.ErrMisplacedReference
		}
		if input.SourceAccountID == nil {
			return apperrors.WithMessage(apperrors.ErrInvalidInput, "transfers require a source account")
		}
		// No transaction may reference the same account on both sides; the
		// replay's commutativity argument depends on it.
		if *input.SourceAccountID == *input.DestAccountID {
			return apperrors.ErrSameAccountTransfer
		}
		if _, err := s.accountService.GetAccountByID(userID, *input.DestAccountID); err != nil {
			return err
		}
	case models.TransactionTypeAssetPurchase:
		if input.DestAccountID != nil || input.AssetID == nil {
			return apperrors.ErrMisplacedReference
		}
		if input.Units.IsNegative() || input.Units.IsZero() {
			return apperrors.WithMessage(apperrors.ErrInvalidInput, "asset purchases require a positive unit count")
		}
		asset, err := s.accountService.GetAccountByID(userID, *input.AssetID)
		if err != nil {
			return err
		}
		if !asset.Type.IsTradable() {
			return apperrors.ErrAccountNotAsset
		}
	default:
		return apperrors.ErrInvalidTransactionType
	}

	if input.SourceAccountID != nil {
		if _, err := s.accountService.GetAccountByID(userID, *input.SourceAccountID); err != nil {
			return err
		}
	}

	return nil
}

// syncPurchaseLot keeps the cost-basis lot of an asset purchase in step with
// its transaction. The TransactionID link makes this idempotent: edits update
// the existing lot instead of stacking duplicates.
func (s *transactionService) syncPurchaseLot(tx *gorm.DB, transaction *models.Transaction) error {
	if transaction.Type != models.TransactionTypeAssetPurchase {
		return nil
	}

	pricePerUnit := transaction.Amount.Div(transaction.Units)

	var existing models.StockLot
	err := tx.Where("transaction_id = ?", transaction.ID).First(&existing).Error
	switch {
	case err == nil:
		existing.AssetID = *transaction.AssetID
		existing.Units = transaction.Units
		existing.PricePerUnit = pricePerUnit
		existing.Date = transaction.Date
		if txErr := tx.Save(&existing).Error; txErr != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, txErr)
		}
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		lot := &models.StockLot{
			UserID:        transaction.UserID,
			AssetID:       *transaction.AssetID,
			TransactionID: &transaction.ID,
			Side:          models.LotSideBuy,
			Units:         transaction.Units,
			PricePerUnit:  pricePerUnit,
			Date:          transaction.Date,
		}
		if txErr := tx.Create(lot).Error; txErr != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, txErr)
		}
		return nil
	default:
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
}

// reconcileAfter runs the replay after a log mutation. Replay failures leave
// the previous derived state intact and are logged, never surfaced as fatal
// to the caller whose write already committed.
func (s *transactionService) reconcileAfter(op, transactionID, userID string) {
	if err := s.reconciler.Reconcile(userID); err != nil {
		logger.Get().Errorw("reconciliation after transaction mutation failed",
			"op", op, "transaction_id", transactionID, "user_id", userID, "error", err)
	}
}
