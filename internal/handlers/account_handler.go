package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "tally/internal/errors"
	"tally/internal/models"
	"tally/internal/pagination"
	"tally/internal/services"
)

// AccountHandler handles account-related requests.
type AccountHandler struct {
	accountService services.AccountServicer
	lotService     services.LotServicer
	auditService   services.AuditServicer
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accountService services.AccountServicer, lotService services.LotServicer, auditService services.AuditServicer) *AccountHandler {
	return &AccountHandler{accountService: accountService, lotService: lotService, auditService: auditService}
}

// CreateLedgerAccountRequest represents the request payload for creating a cash account.
type CreateLedgerAccountRequest struct {
	Name           string          `json:"name" binding:"required,min=1,max=100"`
	ShortID        string          `json:"short_id" binding:"required,min=1,max=20,alphanum"`
	Currency       string          `json:"currency" binding:"omitempty,iso4217"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
}

// CreateAssetAccountRequest represents the request payload for creating an asset position.
type CreateAssetAccountRequest struct {
	Name            string             `json:"name" binding:"required,min=1,max=100"`
	Type            models.AccountType `json:"type" binding:"required,account_type"`
	Currency        string             `json:"currency" binding:"omitempty,iso4217"`
	InitialHoldings decimal.Decimal    `json:"initial_holdings"`
	MarketValue     decimal.Decimal    `json:"market_value"`
}

// UpdateAccountRequest represents the request payload for renaming an account.
type UpdateAccountRequest struct {
	Name string `json:"name" binding:"required,min=1,max=100"`
}

// UpdateMarketValueRequest represents the request payload for a unit price update.
type UpdateMarketValueRequest struct {
	MarketValue decimal.Decimal `json:"market_value" binding:"required"`
}

// AccountResponse represents an account in the response.
type AccountResponse struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	ShortID     *string            `json:"short_id"`
	Type        models.AccountType `json:"type"`
	Currency    string             `json:"currency"`
	Holdings    decimal.Decimal    `json:"holdings"`
	MarketValue decimal.Decimal    `json:"market_value"`
	TotalValue  decimal.Decimal    `json:"total_value"`
	IsActive    bool               `json:"is_active"`
}

// CreateLedgerAccount handles the creation of a new cash account
// @Summary     Create a ledger account
// @Description Create a new cash-like account with an opening balance
// @Tags        accounts
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body CreateLedgerAccountRequest true "Ledger account details"
// @Success     201 {object} AccountResponse "Account created"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     409 {object} ErrorResponse "Short ID taken"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /accounts/ledger [post]
func (h *AccountHandler) CreateLedgerAccount(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateLedgerAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	account, err := h.accountService.CreateLedgerAccount(userID, req.Name, req.ShortID, req.Currency, req.InitialBalance)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "CREATE_ACCOUNT", "account", account.ID, c.ClientIP(),
		map[string]interface{}{"name": req.Name, "short_id": req.ShortID, "currency": account.Currency})

	c.JSON(http.StatusCreated, gin.H{"account": account})
}

// CreateAssetAccount handles the creation of a new asset position
// @Summary     Create an asset account
// @Description Create a tradable or other asset position with unit holdings and a unit price
// @Tags        accounts
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body CreateAssetAccountRequest true "Asset account details"
// @Success     201 {object} AccountResponse "Account created"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /accounts/asset [post]
func (h *AccountHandler) CreateAssetAccount(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateAssetAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	account, err := h.accountService.CreateAssetAccount(userID, req.Name, req.Type, req.Currency, req.InitialHoldings, req.MarketValue)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "CREATE_ACCOUNT", "account", account.ID, c.ClientIP(),
		map[string]interface{}{"name": req.Name, "type": string(req.Type)})

	c.JSON(http.StatusCreated, gin.H{"account": account})
}

// GetAccounts lists the user's active accounts
// @Summary     List accounts
// @Description Get a paginated list of the authenticated user's active accounts
// @Tags        accounts
// @Produce     json
// @Security    BearerAuth
// @Param       page query int false "Page number"
// @Param       page_size query int false "Page size"
// @Success     200 {object} pagination.PageResponse[models.Account] "Accounts"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /accounts [get]
func (h *AccountHandler) GetAccounts(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	result, err := h.accountService.GetUserAccounts(userID, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetAccount retrieves a single account
// @Summary     Get an account
// @Description Get one account by ID
// @Tags        accounts
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Account ID"
// @Success     200 {object} AccountResponse "Account"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /accounts/{id} [get]
func (h *AccountHandler) GetAccount(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	account, err := h.accountService.GetAccountByID(userID, c.Param("id"))
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"account": account})
}

// UpdateAccount renames an account
// @Summary     Rename an account
// @Description Update the display name of an account; balances are derived and cannot be set here
// @Tags        accounts
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Account ID"
// @Param       request body UpdateAccountRequest true "New name"
// @Success     200 {object} AccountResponse "Account updated"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /accounts/{id} [patch]
func (h *AccountHandler) UpdateAccount(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req UpdateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	account, err := h.accountService.UpdateAccount(userID, c.Param("id"), req.Name)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "UPDATE_ACCOUNT", "account", account.ID, c.ClientIP(),
		map[string]interface{}{"name": req.Name})

	c.JSON(http.StatusOK, gin.H{"account": account})
}

// UpdateMarketValue sets the unit price of a tradable asset
// @Summary     Update market value
// @Description Set the current unit price of a tradable asset
// @Tags        accounts
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Account ID"
// @Param       request body UpdateMarketValueRequest true "New unit price"
// @Success     200 {object} AccountResponse "Account updated"
// @Failure     400 {object} ErrorResponse "Invalid input or not a tradable asset"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /accounts/{id}/market-value [put]
func (h *AccountHandler) UpdateMarketValue(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req UpdateMarketValueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	account, err := h.accountService.UpdateMarketValue(userID, c.Param("id"), req.MarketValue)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "UPDATE_MARKET_VALUE", "account", account.ID, c.ClientIP(),
		map[string]interface{}{"market_value": req.MarketValue.String()})

	c.JSON(http.StatusOK, gin.H{"account": account})
}

// GetCostBasis returns the weighted-average cost view of an asset
// @Summary     Get cost basis
// @Description Get the weighted-average cost basis of a tradable asset
// @Tags        accounts
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Account ID"
// @Success     200 {object} services.CostBasisSummary "Cost basis"
// @Failure     400 {object} ErrorResponse "Not a tradable asset"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /accounts/{id}/cost-basis [get]
func (h *AccountHandler) GetCostBasis(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	summary, err := h.lotService.CostBasis(userID, c.Param("id"))
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"cost_basis": summary})
}

// DeactivateAccount soft-disables an account
// @Summary     Deactivate an account
// @Description Deactivate an account; its transaction history remains in the log
// @Tags        accounts
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Account ID"
// @Success     204 "Account deactivated"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /accounts/{id} [delete]
func (h *AccountHandler) DeactivateAccount(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	if err := h.accountService.DeactivateAccount(userID, c.Param("id")); err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "DEACTIVATE_ACCOUNT", "account", c.Param("id"), c.ClientIP(), nil)

	c.Status(http.StatusNoContent)
}
