package handlers

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "tally/internal/errors"
	"tally/internal/models"
	"tally/internal/pagination"
	"tally/internal/services"
)

// --- mock account service ---

type mockAccountService struct {
	createLedgerAccountFn func(userID, name, shortID, currency string, initialBalance decimal.Decimal) (*models.Account, error)
	createAssetAccountFn  func(userID, name string, accountType models.AccountType, currency string, initialHoldings, marketValue decimal.Decimal) (*models.Account, error)
	getUserAccountsFn     func(userID string, page pagination.PageRequest) (*pagination.PageResponse[models.Account], error)
	getAccountByIDFn      func(userID, accountID string) (*models.Account, error)
	updateAccountFn       func(userID, accountID, name string) (*models.Account, error)
	updateMarketValueFn   func(userID, accountID string, unitPrice decimal.Decimal) (*models.Account, error)
	deactivateAccountFn   func(userID, accountID string) error
}

func (m *mockAccountService) CreateLedgerAccount(userID, name, shortID, currency string, initialBalance decimal.Decimal) (*models.Account, error) {
	if m.createLedgerAccountFn != nil {
		return m.createLedgerAccountFn(userID, name, shortID, currency, initialBalance)
	}
	return &models.Account{}, nil
}

func (m *mockAccountService) CreateAssetAccount(userID, name string, accountType models.AccountType, currency string, initialHoldings, marketValue decimal.Decimal) (*models.Account, error) {
	if m.createAssetAccountFn != nil {
		return m.createAssetAccountFn(userID, name, accountType, currency, initialHoldings, marketValue)
	}
	return &models.Account{}, nil
}

func (m *mockAccountService) GetUserAccounts(userID string, page pagination.PageRequest) (*pagination.PageResponse[models.Account], error) {
	if m.getUserAccountsFn != nil {
		return m.getUserAccountsFn(userID, page)
	}
	resp := pagination.NewPageResponse([]models.Account{}, 1, 20, 0)
	return &resp, nil
}

func (m *mockAccountService) GetAccountByID(userID, accountID string) (*models.Account, error) {
	if m.getAccountByIDFn != nil {
		return m.getAccountByIDFn(userID, accountID)
	}
	return &models.Account{}, nil
}

func (m *mockAccountService) GetAccountByShortID(userID, shortID string) (*models.Account, error) {
	return &models.Account{}, nil
}

func (m *mockAccountService) UpdateAccount(userID, accountID, name string) (*models.Account, error) {
	if m.updateAccountFn != nil {
		return m.updateAccountFn(userID, accountID, name)
	}
	return &models.Account{}, nil
}

func (m *mockAccountService) UpdateMarketValue(userID, accountID string, unitPrice decimal.Decimal) (*models.Account, error) {
	if m.updateMarketValueFn != nil {
		return m.updateMarketValueFn(userID, accountID, unitPrice)
	}
	return &models.Account{}, nil
}

func (m *mockAccountService) DeactivateAccount(userID, accountID string) error {
	if m.deactivateAccountFn != nil {
		return m.deactivateAccountFn(userID, accountID)
	}
	return nil
}

// verify interface compliance
var _ services.AccountServicer = (*mockAccountService)(nil)

// --- mock lot service ---

type mockLotService struct {
	addLotFn       func(userID string, input services.LotInput) (*models.StockLot, error)
	updateLotFn    func(userID, lotID string, input services.LotInput) (*models.StockLot, error)
	deleteLotFn    func(userID, lotID string) error
	getAssetLotsFn func(userID, assetID string, page pagination.PageRequest) (*pagination.PageResponse[models.StockLot], error)
	costBasisFn    func(userID, assetID string) (*services.CostBasisSummary, error)
}

func (m *mockLotService) AddLot(userID string, input services.LotInput) (*models.StockLot, error) {
	if m.addLotFn != nil {
		return m.addLotFn(userID, input)
	}
	return &models.StockLot{}, nil
}

func (m *mockLotService) UpdateLot(userID, lotID string, input services.LotInput) (*models.StockLot, error) {
	if m.updateLotFn != nil {
		return m.updateLotFn(userID, lotID, input)
	}
	return &models.StockLot{}, nil
}

func (m *mockLotService) DeleteLot(userID, lotID string) error {
	if m.deleteLotFn != nil {
		return m.deleteLotFn(userID, lotID)
	}
	return nil
}

func (m *mockLotService) GetAssetLots(userID, assetID string, page pagination.PageRequest) (*pagination.PageResponse[models.StockLot], error) {
	if m.getAssetLotsFn != nil {
		return m.getAssetLotsFn(userID, assetID, page)
	}
	resp := pagination.NewPageResponse([]models.StockLot{}, 1, 20, 0)
	return &resp, nil
}

func (m *mockLotService) CostBasis(userID, assetID string) (*services.CostBasisSummary, error) {
	if m.costBasisFn != nil {
		return m.costBasisFn(userID, assetID)
	}
	return &services.CostBasisSummary{}, nil
}

var _ services.LotServicer = (*mockLotService)(nil)

func setupAccountRouter(handler *AccountHandler) *gin.Engine {
	r := gin.New()
	auth := r.Group("", injectUserID("user-1"))
	auth.POST("/accounts/ledger", handler.CreateLedgerAccount)
	auth.POST("/accounts/asset", handler.CreateAssetAccount)
	auth.GET("/accounts", handler.GetAccounts)
	auth.GET("/accounts/:id", handler.GetAccount)
	auth.PATCH("/accounts/:id", handler.UpdateAccount)
	auth.PUT("/accounts/:id/market-value", handler.UpdateMarketValue)
	auth.GET("/accounts/:id/cost-basis", handler.GetCostBasis)
	auth.DELETE("/accounts/:id", handler.DeactivateAccount)
	return r
}

func TestAccountHandler_CreateLedgerAccount(t *testing.T) {
	t.Run("returns 201 on success", func(t *testing.T) {
		acctSvc := &mockAccountService{
			createLedgerAccountFn: func(userID, name, shortID, currency string, initialBalance decimal.Decimal) (*models.Account, error) {
				sid := shortID
				return &models.Account{
					Base:           models.Base{ID: "acct-1"},
					UserID:         userID,
					Name:           name,
					ShortID:        &sid,
					Type:           models.AccountTypeCash,
					Currency:       currency,
					MarketValue:    initialBalance,
					InitialBalance: initialBalance,
					IsActive:       true,
				}, nil
			},
		}
		handler := NewAccountHandler(acctSvc, &mockLotService{}, &mockAuditService{})
		r := setupAccountRouter(handler)

		rec := doRequest(r, "POST", "/accounts/ledger",
			`{"name":"Checking","short_id":"chk","currency":"USD","initial_balance":"2500"}`)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		result := parseJSON(t, rec)
		account := result["account"].(map[string]interface{})
		if account["short_id"] != "chk" {
			t.Errorf("expected short_id chk, got %v", account["short_id"])
		}
	})

	t.Run("returns 400 on missing short_id", func(t *testing.T) {
		handler := NewAccountHandler(&mockAccountService{}, &mockLotService{}, &mockAuditService{})
		r := setupAccountRouter(handler)

		rec := doRequest(r, "POST", "/accounts/ledger", `{"name":"Checking"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("returns 409 on duplicate short_id", func(t *testing.T) {
		acctSvc := &mockAccountService{
			createLedgerAccountFn: func(_, _, _, _ string, _ decimal.Decimal) (*models.Account, error) {
				return nil, apperrors.ErrDuplicateShortID
			},
		}
		handler := NewAccountHandler(acctSvc, &mockLotService{}, &mockAuditService{})
		r := setupAccountRouter(handler)

		rec := doRequest(r, "POST", "/accounts/ledger", `{"name":"Checking","short_id":"chk"}`)

		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "DUPLICATE_SHORT_ID")
	})

	t.Run("returns 400 on bad currency", func(t *testing.T) {
		handler := NewAccountHandler(&mockAccountService{}, &mockLotService{}, &mockAuditService{})
		r := setupAccountRouter(handler)

		rec := doRequest(r, "POST", "/accounts/ledger",
			`{"name":"Checking","short_id":"chk","currency":"NOPE"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestAccountHandler_CreateAssetAccount(t *testing.T) {
	t.Run("returns 400 on unknown type", func(t *testing.T) {
		handler := NewAccountHandler(&mockAccountService{}, &mockLotService{}, &mockAuditService{})
		r := setupAccountRouter(handler)

		rec := doRequest(r, "POST", "/accounts/asset", `{"name":"BTC","type":"bond"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("returns 201 on success", func(t *testing.T) {
		acctSvc := &mockAccountService{
			createAssetAccountFn: func(userID, name string, accountType models.AccountType, _ string, holdings, price decimal.Decimal) (*models.Account, error) {
				return &models.Account{
					Base:        models.Base{ID: "acct-2"},
					UserID:      userID,
					Name:        name,
					Type:        accountType,
					Holdings:    holdings,
					MarketValue: price,
					IsActive:    true,
				}, nil
			},
		}
		handler := NewAccountHandler(acctSvc, &mockLotService{}, &mockAuditService{})
		r := setupAccountRouter(handler)

		rec := doRequest(r, "POST", "/accounts/asset",
			`{"name":"VWCE","type":"stock","initial_holdings":"10","market_value":"100"}`)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
	})
}

func TestAccountHandler_UpdateMarketValue(t *testing.T) {
	t.Run("returns 400 for cash accounts", func(t *testing.T) {
		acctSvc := &mockAccountService{
			updateMarketValueFn: func(_, _ string, _ decimal.Decimal) (*models.Account, error) {
				return nil, apperrors.ErrAccountNotAsset
			},
		}
		handler := NewAccountHandler(acctSvc, &mockLotService{}, &mockAuditService{})
		r := setupAccountRouter(handler)

		rec := doRequest(r, "PUT", "/accounts/acct-1/market-value", `{"market_value":"120"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "ACCOUNT_NOT_ASSET")
	})
}

func TestAccountHandler_GetCostBasis(t *testing.T) {
	t.Run("returns the summary", func(t *testing.T) {
		lotSvc := &mockLotService{
			costBasisFn: func(_, assetID string) (*services.CostBasisSummary, error) {
				return &services.CostBasisSummary{
					AssetID:     assetID,
					TotalUnits:  decimal.NewFromInt(5),
					AverageCost: decimal.NewFromInt(100),
				}, nil
			},
		}
		handler := NewAccountHandler(&mockAccountService{}, lotSvc, &mockAuditService{})
		r := setupAccountRouter(handler)

		rec := doRequest(r, "GET", "/accounts/acct-2/cost-basis", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		result := parseJSON(t, rec)
		cb := result["cost_basis"].(map[string]interface{})
		if cb["asset_id"] != "acct-2" {
			t.Errorf("expected asset_id acct-2, got %v", cb["asset_id"])
		}
	})

	t.Run("returns 404 when missing", func(t *testing.T) {
		lotSvc := &mockLotService{
			costBasisFn: func(_, _ string) (*services.CostBasisSummary, error) {
				return nil, apperrors.ErrAccountNotFound
			},
		}
		handler := NewAccountHandler(&mockAccountService{}, lotSvc, &mockAuditService{})
		r := setupAccountRouter(handler)

		rec := doRequest(r, "GET", "/accounts/nope/cost-basis", "")

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})
}
