package services

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tally/internal/fx"
	"tally/internal/models"
	"tally/internal/testutil"
)

func TestReconcile(t *testing.T) {
	t.Run("income_credits_expense_debits", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		rec := NewReconciler(db, fx.NewConverter(nil, time.Hour))
		user := testutil.CreateTestUser(t, db)
		account := testutil.CreateTestLedgerAccount(t, db, user.ID, decimal.NewFromInt(500))

		testutil.CreateTestTransaction(t, db, user.ID, account.ID, models.TransactionTypeIncome, decimal.NewFromInt(1000))
		testutil.CreateTestTransaction(t, db, user.ID, account.ID, models.TransactionTypeExpense, decimal.NewFromInt(200))

		testutil.AssertNoError(t, rec.Reconcile(user.ID))

		var got models.Account
		db.First(&got, "id = ?", account.ID)
		testutil.AssertDecimalEqual(t, decimal.NewFromInt(1300), got.MarketValue, "balance after replay")
		testutil.AssertDecimalEqual(t, decimal.NewFromInt(1), got.Holdings, "cash holdings")
	})

	t.Run("idempotent", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		rec := NewReconciler(db, fx.NewConverter(nil, time.Hour))
		user := testutil.CreateTestUser(t, db)
		account := testutil.CreateTestLedgerAccount(t, db, user.ID, decimal.NewFromInt(100))

		testutil.CreateTestTransaction(t, db, user.ID, account.ID, models.TransactionTypeIncome, decimal.NewFromInt(250))

		testutil.AssertNoError(t, rec.Reconcile(user.ID))
		var first models.Account
		db.First(&first, "id = ?", account.ID)

		testutil.AssertNoError(t, rec.Reconcile(user.ID))
		var second models.Account
		db.First(&second, "id = ?", account.ID)

		testutil.AssertDecimalEqual(t, first.MarketValue, second.MarketValue, "replay of a replay")
		testutil.AssertDecimalEqual(t, decimal.NewFromInt(350), second.MarketValue, "balance")
	})

	t.Run("transfer_moves_between_accounts", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		rec := NewReconciler(db, fx.NewConverter(nil, time.Hour))
		user := testutil.CreateTestUser(t, db)
		from := testutil.CreateTestLedgerAccount(t, db, user.ID, decimal.NewFromInt(1000))
		to := testutil.CreateTestLedgerAccount(t, db, user.ID, decimal.Zero)

		tx := &models.Transaction{
			UserID:          user.ID,
			Type:            models.TransactionTypeTransfer,
			CategoryGroup:   models.CategoryUncategorized,
			Amount:          decimal.NewFromInt(400),
			Currency:        "USD",
			Date:            time.Now(),
			SourceAccountID: &from.ID,
			DestAccountID:   &to.ID,
		}
		testutil.AssertNoError(t, db.Create(tx).Error)

		testutil.AssertNoError(t, rec.Reconcile(user.ID))

		var gotFrom, gotTo models.Account
		db.First(&gotFrom, "id = ?", from.ID)
		db.First(&gotTo, "id = ?", to.ID)
		testutil.AssertDecimalEqual(t, decimal.NewFromInt(600), gotFrom.MarketValue, "source debited")
		testutil.AssertDecimalEqual(t, decimal.NewFromInt(400), gotTo.MarketValue, "destination credited")
	})

	t.Run("asset_purchase_adds_units_only", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		rec := NewReconciler(db, fx.NewConverter(nil, time.Hour))
		user := testutil.CreateTestUser(t, db)
		cash := testutil.CreateTestLedgerAccount(t, db, user.ID, decimal.NewFromInt(5000))
		asset := testutil.CreateTestAssetAccount(t, db, user.ID, decimal.Zero, decimal.NewFromInt(150))

		tx := &models.Transaction{
			UserID:          user.ID,
			Type:            models.TransactionTypeAssetPurchase,
			CategoryGroup:   models.CategoryInvestment,
			Amount:          decimal.NewFromInt(1500),
			Currency:        "USD",
			Date:            time.Now(),
			SourceAccountID: &cash.ID,
			AssetID:         &asset.ID,
			Units:           decimal.NewFromInt(10),
		}
		testutil.AssertNoError(t, db.Create(tx).Error)

		testutil.AssertNoError(t, rec.Reconcile(user.ID))

		var gotCash, gotAsset models.Account
		db.First(&gotCash, "id = ?", cash.ID)
		db.First(&gotAsset, "id = ?", asset.ID)
		testutil.AssertDecimalEqual(t, decimal.NewFromInt(3500), gotCash.MarketValue, "cash debited")
		testutil.AssertDecimalEqual(t, decimal.NewFromInt(10), gotAsset.Holdings, "asset units")
		// Unit price is an input, not a replay result.
		testutil.AssertDecimalEqual(t, decimal.NewFromInt(150), gotAsset.MarketValue, "unit price untouched")
	})

	t.Run("missing_reference_skipped_not_fatal", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		rec := NewReconciler(db, fx.NewConverter(nil, time.Hour))
		user := testutil.CreateTestUser(t, db)
		account := testutil.CreateTestLedgerAccount(t, db, user.ID, decimal.Zero)

		ghost := "00000000-0000-7000-8000-000000000000"
		bad := &models.Transaction{
			UserID:          user.ID,
			Type:            models.TransactionTypeExpense,
			CategoryGroup:   models.CategoryUncategorized,
			Amount:          decimal.NewFromInt(999),
			Currency:        "USD",
			Date:            time.Now(),
			SourceAccountID: &ghost,
		}
		testutil.AssertNoError(t, db.Create(bad).Error)
		testutil.CreateTestTransaction(t, db, user.ID, account.ID, models.TransactionTypeIncome, decimal.NewFromInt(50))

		testutil.AssertNoError(t, rec.Reconcile(user.ID))

		var got models.Account
		db.First(&got, "id = ?", account.ID)
		testutil.AssertDecimalEqual(t, decimal.NewFromInt(50), got.MarketValue, "good transaction still applied")
	})

	t.Run("cross_currency_normalized", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		// nil source: static EUR-pivot fallback table, USD at 1.08.
		rec := NewReconciler(db, fx.NewConverter(nil, time.Hour))
		user := testutil.CreateTestUser(t, db)
		account := testutil.CreateTestLedgerAccount(t, db, user.ID, decimal.Zero)

		tx := &models.Transaction{
			UserID:          user.ID,
			Type:            models.TransactionTypeIncome,
			CategoryGroup:   models.CategoryUncategorized,
			Amount:          decimal.NewFromInt(100),
			Currency:        "EUR",
			Date:            time.Now(),
			SourceAccountID: &account.ID,
		}
		testutil.AssertNoError(t, db.Create(tx).Error)

		testutil.AssertNoError(t, rec.Reconcile(user.ID))

		var got models.Account
		db.First(&got, "id = ?", account.ID)
		testutil.AssertDecimalEqual(t, decimal.NewFromInt(108), got.MarketValue, "EUR income converted to USD")
	})

	t.Run("unlinked_lots_replayed", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		rec := NewReconciler(db, fx.NewConverter(nil, time.Hour))
		user := testutil.CreateTestUser(t, db)
		asset := testutil.CreateTestAssetAccount(t, db, user.ID, decimal.Zero, decimal.NewFromInt(100))

		testutil.CreateTestLot(t, db, user.ID, asset.ID, models.LotSideBuy, decimal.NewFromInt(10), decimal.NewFromInt(100), time.Now().Add(-48*time.Hour))
		testutil.CreateTestLot(t, db, user.ID, asset.ID, models.LotSideSell, decimal.NewFromInt(4), decimal.NewFromInt(110), time.Now().Add(-24*time.Hour))

		testutil.AssertNoError(t, rec.Reconcile(user.ID))

		var got models.Account
		db.First(&got, "id = ?", asset.ID)
		testutil.AssertDecimalEqual(t, decimal.NewFromInt(6), got.Holdings, "holdings from lot replay")
	})
}

// TestReconcileCrossCheck verifies the replay against a naive independent
// accumulator over the same log: the per-account effects must match exactly.
func TestReconcileCrossCheck(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	rec := NewReconciler(db, fx.NewConverter(nil, time.Hour))
	user := testutil.CreateTestUser(t, db)

	a := testutil.CreateTestLedgerAccount(t, db, user.ID, decimal.NewFromInt(1000))
	b := testutil.CreateTestLedgerAccount(t, db, user.ID, decimal.NewFromInt(50))

	amounts := []int64{120, 75, 340, 15, 990, 42, 7}
	types := []models.TransactionType{
		models.TransactionTypeIncome,
		models.TransactionTypeExpense,
		models.TransactionTypeIncome,
		models.TransactionTypeExpense,
		models.TransactionTypeIncome,
		models.TransactionTypeExpense,
		models.TransactionTypeExpense,
	}
	for i := range amounts {
		target := a.ID
		if i%2 == 1 {
			target = b.ID
		}
		testutil.CreateTestTransaction(t, db, user.ID, target, types[i], decimal.NewFromInt(amounts[i]))
	}

	testutil.AssertNoError(t, rec.Reconcile(user.ID))

	// Naive accumulator, written independently of the replay code path.
	expected := map[string]decimal.Decimal{
		a.ID: a.InitialBalance,
		b.ID: b.InitialBalance,
	}
	var txs []models.Transaction
	db.Where("user_id = ?", user.ID).Find(&txs)
	for i := range txs {
		tx := txs[i]
		if tx.Type == models.TransactionTypeIncome {
			expected[*tx.SourceAccountID] = expected[*tx.SourceAccountID].Add(tx.Amount)
		} else {
			expected[*tx.SourceAccountID] = expected[*tx.SourceAccountID].Sub(tx.Amount)
		}
	}

	for id, want := range expected {
		var got models.Account
		db.First(&got, "id = ?", id)
		testutil.AssertDecimalEqual(t, want, got.MarketValue, "cross-check for account "+id)
	}
}
