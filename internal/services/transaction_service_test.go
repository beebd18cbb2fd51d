package services

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"tally/internal/fx"
	"tally/internal/models"
	"tally/internal/pagination"
	"tally/internal/testutil"
)

func newTransactionTestService(db *gorm.DB) TransactionServicer {
	accountService := NewAccountService(db)
	rec := NewReconciler(db, fx.NewConverter(nil, time.Hour))
	return NewTransactionService(db, accountService, rec)
}

func TestCreateTransaction(t *testing.T) {
	t.Run("income_triggers_replay", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTransactionTestService(db)
		user := testutil.CreateTestUser(t, db)
		account := testutil.CreateTestLedgerAccount(t, db, user.ID, decimal.NewFromInt(100))

		_, err := svc.CreateTransaction(user.ID, TransactionInput{
			Type:            models.TransactionTypeIncome,
			Amount:          decimal.NewFromInt(1000),
			SourceAccountID: &account.ID,
		})
		testutil.AssertNoError(t, err)

		var got models.Account
		db.First(&got, "id = ?", account.ID)
		testutil.AssertDecimalEqual(t, decimal.NewFromInt(1100), got.MarketValue, "balance after income")
	})

	t.Run("asset_purchase_syncs_linked_lot", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTransactionTestService(db)
		user := testutil.CreateTestUser(t, db)
		cash := testutil.CreateTestLedgerAccount(t, db, user.ID, decimal.NewFromInt(5000))
		asset := testutil.CreateTestAssetAccount(t, db, user.ID, decimal.Zero, decimal.NewFromInt(150))

		tx, err := svc.CreateTransaction(user.ID, TransactionInput{
			Type:            models.TransactionTypeAssetPurchase,
			CategoryGroup:   models.CategoryInvestment,
			Amount:          decimal.NewFromInt(1500),
			SourceAccountID: &cash.ID,
			AssetID:         &asset.ID,
			Units:           decimal.NewFromInt(10),
		})
		testutil.AssertNoError(t, err)

		var lot models.StockLot
		testutil.AssertNoError(t, db.Where("transaction_id = ?", tx.ID).First(&lot).Error)
		if lot.Side != models.LotSideBuy {
			t.Errorf("expected a buy lot, got %s", lot.Side)
		}
		testutil.AssertDecimalEqual(t, decimal.NewFromInt(10), lot.Units, "lot units")
		testutil.AssertDecimalEqual(t, decimal.NewFromInt(150), lot.PricePerUnit, "derived price per unit")

		var gotAsset models.Account
		db.First(&gotAsset, "id = ?", asset.ID)
		testutil.AssertDecimalEqual(t, decimal.NewFromInt(10), gotAsset.Holdings, "asset holdings")
	})

	t.Run("reference_invariants", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTransactionTestService(db)
		user := testutil.CreateTestUser(t, db)
		account := testutil.CreateTestLedgerAccount(t, db, user.ID, decimal.NewFromInt(100))
		other := testutil.CreateTestLedgerAccount(t, db, user.ID, decimal.Zero)
		asset := testutil.CreateTestAssetAccount(t, db, user.ID, decimal.Zero, decimal.NewFromInt(100))

		cases := []struct {
			name     string
			input    TransactionInput
			wantCode string
		}{
			{
				name: "expense_with_destination",
				input: TransactionInput{
					Type:            models.TransactionTypeExpense,
					Amount:          decimal.NewFromInt(10),
					SourceAccountID: &account.ID,
					DestAccountID:   &other.ID,
				},
				wantCode: "MISPLACED_REFERENCE",
			},
			{
				name: "income_with_asset",
				input: TransactionInput{
					Type:            models.TransactionTypeIncome,
					Amount:          decimal.NewFromInt(10),
					SourceAccountID: &account.ID,
					AssetID:         &asset.ID,
				},
				wantCode: "MISPLACED_REFERENCE",
			},
			{
				name: "transfer_without_destination",
				input: TransactionInput{
					Type:            models.TransactionTypeTransfer,
					Amount:          decimal.NewFromInt(10),
					SourceAccountID: &account.ID,
				},
				wantCode: "MISPLACED_REFERENCE",
			},
			{
				name: "transfer_to_itself",
				input: TransactionInput{
					Type:            models.TransactionTypeTransfer,
					Amount:          decimal.NewFromInt(10),
					SourceAccountID: &account.ID,
					DestAccountID:   &account.ID,
				},
				wantCode: "SAME_ACCOUNT_TRANSFER",
			},
			{
				name: "purchase_of_cash_account",
				input: TransactionInput{
					Type:            models.TransactionTypeAssetPurchase,
					Amount:          decimal.NewFromInt(10),
					SourceAccountID: &account.ID,
					AssetID:         &other.ID,
					Units:           decimal.NewFromInt(1),
				},
				wantCode: "ACCOUNT_NOT_ASSET",
			},
			{
				name: "purchase_without_units",
				input: TransactionInput{
					Type:            models.TransactionTypeAssetPurchase,
					Amount:          decimal.NewFromInt(10),
					SourceAccountID: &account.ID,
					AssetID:         &asset.ID,
				},
				wantCode: "INVALID_INPUT",
			},
			{
				name: "zero_amount",
				input: TransactionInput{
					Type:            models.TransactionTypeExpense,
					SourceAccountID: &account.ID,
				},
				wantCode: "INVALID_INPUT",
			},
			{
				name: "unknown_type",
				input: TransactionInput{
					Type:   models.TransactionType("dividend"),
					Amount: decimal.NewFromInt(10),
				},
				wantCode: "INVALID_TRANSACTION_TYPE",
			},
		}

		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				_, err := svc.CreateTransaction(user.ID, tc.input)
				testutil.AssertAppError(t, err, tc.wantCode)
			})
		}
	})
}

func TestUpdateTransaction(t *testing.T) {
	t.Run("rewrites_history", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTransactionTestService(db)
		user := testutil.CreateTestUser(t, db)
		account := testutil.CreateTestLedgerAccount(t, db, user.ID, decimal.NewFromInt(1000))

		tx, err := svc.CreateTransaction(user.ID, TransactionInput{
			Type:            models.TransactionTypeExpense,
			Amount:          decimal.NewFromInt(200),
			SourceAccountID: &account.ID,
		})
		testutil.AssertNoError(t, err)

		_, err = svc.UpdateTransaction(user.ID, tx.ID, TransactionInput{
			Type:            models.TransactionTypeExpense,
			Amount:          decimal.NewFromInt(50),
			SourceAccountID: &account.ID,
		})
		testutil.AssertNoError(t, err)

		// The replay derives from the edited log, not from deltas.
		var got models.Account
		db.First(&got, "id = ?", account.ID)
		testutil.AssertDecimalEqual(t, decimal.NewFromInt(950), got.MarketValue, "balance after edit")
	})

	t.Run("purchase_edit_updates_lot_in_place", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTransactionTestService(db)
		user := testutil.CreateTestUser(t, db)
		cash := testutil.CreateTestLedgerAccount(t, db, user.ID, decimal.NewFromInt(5000))
		asset := testutil.CreateTestAssetAccount(t, db, user.ID, decimal.Zero, decimal.NewFromInt(100))

		tx, err := svc.CreateTransaction(user.ID, TransactionInput{
			Type:            models.TransactionTypeAssetPurchase,
			Amount:          decimal.NewFromInt(1000),
			SourceAccountID: &cash.ID,
			AssetID:         &asset.ID,
			Units:           decimal.NewFromInt(10),
		})
		testutil.AssertNoError(t, err)

		_, err = svc.UpdateTransaction(user.ID, tx.ID, TransactionInput{
			Type:            models.TransactionTypeAssetPurchase,
			Amount:          decimal.NewFromInt(1200),
			SourceAccountID: &cash.ID,
			AssetID:         &asset.ID,
			Units:           decimal.NewFromInt(8),
		})
		testutil.AssertNoError(t, err)

		var count int64
		db.Model(&models.StockLot{}).Where("transaction_id = ?", tx.ID).Count(&count)
		if count != 1 {
			t.Fatalf("expected exactly one linked lot, got %d", count)
		}

		var lot models.StockLot
		db.Where("transaction_id = ?", tx.ID).First(&lot)
		testutil.AssertDecimalEqual(t, decimal.NewFromInt(8), lot.Units, "lot units after edit")
		testutil.AssertDecimalEqual(t, decimal.NewFromInt(150), lot.PricePerUnit, "recomputed price per unit")

		var gotAsset models.Account
		db.First(&gotAsset, "id = ?", asset.ID)
		testutil.AssertDecimalEqual(t, decimal.NewFromInt(8), gotAsset.Holdings, "asset holdings after edit")
	})
}

func TestDeleteTransaction(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	svc := newTransactionTestService(db)
	user := testutil.CreateTestUser(t, db)
	cash := testutil.CreateTestLedgerAccount(t, db, user.ID, decimal.NewFromInt(5000))
	asset := testutil.CreateTestAssetAccount(t, db, user.ID, decimal.Zero, decimal.NewFromInt(100))

	tx, err := svc.CreateTransaction(user.ID, TransactionInput{
		Type:            models.TransactionTypeAssetPurchase,
		Amount:          decimal.NewFromInt(1000),
		SourceAccountID: &cash.ID,
		AssetID:         &asset.ID,
		Units:           decimal.NewFromInt(10),
	})
	testutil.AssertNoError(t, err)

	testutil.AssertNoError(t, svc.DeleteTransaction(user.ID, tx.ID))

	var count int64
	db.Model(&models.StockLot{}).Where("transaction_id = ?", tx.ID).Count(&count)
	if count != 0 {
		t.Fatalf("expected the linked lot to be removed, got %d", count)
	}

	var gotCash, gotAsset models.Account
	db.First(&gotCash, "id = ?", cash.ID)
	db.First(&gotAsset, "id = ?", asset.ID)
	testutil.AssertDecimalEqual(t, decimal.NewFromInt(5000), gotCash.MarketValue, "balance restored")
	testutil.AssertDecimalEqual(t, decimal.Zero, gotAsset.Holdings, "holdings restored")

	err = svc.DeleteTransaction(user.ID, tx.ID)
	testutil.AssertAppError(t, err, "TRANSACTION_NOT_FOUND")
}

func TestGetUserTransactions(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	svc := newTransactionTestService(db)
	user := testutil.CreateTestUser(t, db)
	account := testutil.CreateTestLedgerAccount(t, db, user.ID, decimal.NewFromInt(1000))

	for _, amount := range []int64{10, 20, 30} {
		_, err := svc.CreateTransaction(user.ID, TransactionInput{
			Type:            models.TransactionTypeExpense,
			Amount:          decimal.NewFromInt(amount),
			SourceAccountID: &account.ID,
		})
		testutil.AssertNoError(t, err)
	}

	t.Run("filters_by_amount", func(t *testing.T) {
		min := decimal.NewFromInt(15)
		page, err := svc.GetUserTransactions(user.ID, pagination.PageRequest{Page: 1, PageSize: 10}, TransactionFilter{MinAmount: &min})
		testutil.AssertNoError(t, err)
		if len(page.Data) != 2 {
			t.Fatalf("expected 2 transactions, got %d", len(page.Data))
		}
	})

	t.Run("filters_by_type", func(t *testing.T) {
		txType := models.TransactionTypeIncome
		page, err := svc.GetUserTransactions(user.ID, pagination.PageRequest{Page: 1, PageSize: 10}, TransactionFilter{Type: &txType})
		testutil.AssertNoError(t, err)
		if len(page.Data) != 0 {
			t.Fatalf("expected no income transactions, got %d", len(page.Data))
		}
	})

	t.Run("other_users_invisible", func(t *testing.T) {
		stranger := testutil.CreateTestUser(t, db)
		page, err := svc.GetUserTransactions(stranger.ID, pagination.PageRequest{Page: 1, PageSize: 10}, TransactionFilter{})
		testutil.AssertNoError(t, err)
		if len(page.Data) != 0 {
			t.Fatalf("expected no transactions for another user, got %d", len(page.Data))
		}
	})
}
