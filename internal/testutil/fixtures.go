package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"tally/internal/models"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// counter provides unique values across fixtures within a test run.
var counter atomic.Int64

func nextID() int64 {
	return counter.Add(1)
}

// CreateTestUser creates a user with a hashed password and unique email.
func CreateTestUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	user := &models.User{
		Email:             fmt.Sprintf("user%d@test.com", nextID()),
		Password:          string(hash),
		IsActive:          true,
		ReportingCurrency: "USD",
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// CreateTestLedgerAccount creates a cash account with the given opening balance.
func CreateTestLedgerAccount(t *testing.T, db *gorm.DB, userID string, initialBalance decimal.Decimal) *models.Account {
	t.Helper()

	n := nextID()
	shortID := fmt.Sprintf("cash%d", n)
	account := &models.Account{
		UserID:          userID,
		ShortID:         &shortID,
		Name:            fmt.Sprintf("Test Account %d", n),
		Type:            models.AccountTypeCash,
		Currency:        "USD",
		Holdings:        decimal.NewFromInt(1),
		MarketValue:     initialBalance,
		InitialBalance:  initialBalance,
		InitialHoldings: decimal.NewFromInt(1),
		LastUpdated:     time.Now(),
		IsActive:        true,
	}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("failed to create test ledger account: %v", err)
	}
	return account
}

// CreateTestAssetAccount creates a stock asset with the given holdings and unit price.
func CreateTestAssetAccount(t *testing.T, db *gorm.DB, userID string, holdings, unitPrice decimal.Decimal) *models.Account {
	t.Helper()

	account := &models.Account{
		UserID:          userID,
		Name:            fmt.Sprintf("Test Asset %d", nextID()),
		Type:            models.AccountTypeStock,
		Currency:        "USD",
		Holdings:        holdings,
		MarketValue:     unitPrice,
		InitialBalance:  decimal.Zero,
		InitialHoldings: holdings,
		LastUpdated:     time.Now(),
		IsActive:        true,
	}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("failed to create test asset account: %v", err)
	}
	return account
}

// CreateTestTransaction creates a transaction of the given type against a source account.
func CreateTestTransaction(t *testing.T, db *gorm.DB, userID, accountID string, txType models.TransactionType, amount decimal.Decimal) *models.Transaction {
	t.Helper()

	tx := &models.Transaction{
		UserID:          userID,
		Type:            txType,
		CategoryGroup:   models.CategoryUncategorized,
		Amount:          amount,
		Currency:        "USD",
		Date:            time.Now(),
		SourceAccountID: &accountID,
	}
	if err := db.Create(tx).Error; err != nil {
		t.Fatalf("failed to create test transaction: %v", err)
	}
	return tx
}

// CreateTestSubscription creates an active monthly rule anchored at the given date.
func CreateTestSubscription(t *testing.T, db *gorm.DB, userID string, amount decimal.Decimal, anchor time.Time) *models.Subscription {
	t.Helper()

	sub := &models.Subscription{
		UserID:     userID,
		Name:       fmt.Sprintf("Test Subscription %d", nextID()),
		Amount:     amount,
		Currency:   "USD",
		Cycle:      models.CycleMonthly,
		AnchorDate: anchor,
		RunnerDate: anchor,
		IsActive:   true,
	}
	if err := db.Create(sub).Error; err != nil {
		t.Fatalf("failed to create test subscription: %v", err)
	}
	return sub
}

// CreateTestLot creates a lot for an asset.
func CreateTestLot(t *testing.T, db *gorm.DB, userID, assetID string, side models.LotSide, units, price decimal.Decimal, date time.Time) *models.StockLot {
	t.Helper()

	lot := &models.StockLot{
		UserID:       userID,
		AssetID:      assetID,
		Side:         side,
		Units:        units,
		PricePerUnit: price,
		Date:         date,
	}
	if err := db.Create(lot).Error; err != nil {
		t.Fatalf("failed to create test lot: %v", err)
	}
	return lot
}
