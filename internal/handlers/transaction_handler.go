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

// TransactionHandler handles transaction log requests.
type TransactionHandler struct {
	transactionService services.TransactionServicer
	reconciler         services.Reconciler
	auditService       services.AuditServicer
}

// NewTransactionHandler creates a new TransactionHandler.
func NewTransactionHandler(transactionService services.TransactionServicer, reconciler services.Reconciler, auditService services.AuditServicer) *TransactionHandler {
	return &TransactionHandler{transactionService: transactionService, reconciler: reconciler, auditService: auditService}
}

// TransactionRequest represents the request payload for creating or updating a transaction.
type TransactionRequest struct {
	Type            models.TransactionType `json:"type" binding:"required,transaction_type"`
	CategoryGroup   models.CategoryGroup   `json:"category_group" binding:"omitempty,category_group"`
	Subcategory     string                 `json:"subcategory" binding:"max=100"`
	Amount          decimal.Decimal        `json:"amount" binding:"required"`
	Currency        string                 `json:"currency" binding:"omitempty,iso4217"`
	Date            string                 `json:"date"`
	Description     string                 `json:"description" binding:"max=500"`
	Tags            []string               `json:"tags" binding:"max=20,dive,max=50"`
	SourceAccountID *string                `json:"source_account_id"`
	DestAccountID   *string                `json:"dest_account_id"`
	AssetID         *string                `json:"asset_id"`
	Units           decimal.Decimal        `json:"units"`
}

// ListTransactionsQuery represents the query parameters for listing transactions.
type ListTransactionsQuery struct {
	pagination.PageRequest
	From          string  `form:"from"`
	To            string  `form:"to"`
	Type          string  `form:"type" binding:"omitempty,transaction_type"`
	CategoryGroup string  `form:"category_group" binding:"omitempty,category_group"`
	AccountID     *string `form:"account_id"`
	MinAmount     string  `form:"min_amount"`
	MaxAmount     string  `form:"max_amount"`
}

func (r *TransactionRequest) toInput() (services.TransactionInput, error) {
	input := services.TransactionInput{
		Type:            r.Type,
		CategoryGroup:   r.CategoryGroup,
		Subcategory:     r.Subcategory,
		Amount:          r.Amount,
		Currency:        r.Currency,
		Description:     r.Description,
		Tags:            r.Tags,
		SourceAccountID: r.SourceAccountID,
		DestAccountID:   r.DestAccountID,
		AssetID:         r.AssetID,
		Units:           r.Units,
	}
	if r.Date != "" {
		date, err := parseDate(r.Date)
		if err != nil {
			return services.TransactionInput{}, err
		}
		input.Date = date
	}
	return input, nil
}

// CreateTransaction appends a transaction to the log
// @Summary     Create a transaction
// @Description Append a transaction to the log; balances are re-derived by replay
// @Tags        transactions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body TransactionRequest true "Transaction details"
// @Success     201 {object} models.Transaction "Transaction created"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /transactions [post]
func (h *TransactionHandler) CreateTransaction(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req TransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	input, err := req.toInput()
	if err != nil {
		respondWithError(c, err)
		return
	}

	transaction, err := h.transactionService.CreateTransaction(userID, input)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "CREATE_TRANSACTION", "transaction", transaction.ID, c.ClientIP(),
		map[string]interface{}{"type": string(req.Type), "amount": req.Amount.String()})

	c.JSON(http.StatusCreated, gin.H{"transaction": transaction})
}

// GetTransactions lists transactions with optional filters
// @Summary     List transactions
// @Description Get a paginated, filtered list of the user's transactions
// @Tags        transactions
// @Produce     json
// @Security    BearerAuth
// @Param       page query int false "Page number"
// @Param       page_size query int false "Page size"
// @Param       from query string false "Start date (inclusive)"
// @Param       to query string false "End date (exclusive)"
// @Param       type query string false "Transaction type"
// @Param       category_group query string false "Category group"
// @Param       account_id query string false "Account referenced on either side"
// @Success     200 {object} pagination.PageResponse[models.Transaction] "Transactions"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /transactions [get]
func (h *TransactionHandler) GetTransactions(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var query ListTransactionsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	filter, err := query.toFilter()
	if err != nil {
		respondWithError(c, err)
		return
	}

	result, err := h.transactionService.GetUserTransactions(userID, query.PageRequest, filter)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (q *ListTransactionsQuery) toFilter() (services.TransactionFilter, error) {
	var filter services.TransactionFilter

	if q.From != "" {
		from, err := parseDate(q.From)
		if err != nil {
			return filter, err
		}
		filter.FromDate = &from
	}
	if q.To != "" {
		to, err := parseDate(q.To)
		if err != nil {
			return filter, err
		}
		filter.ToDate = &to
	}
	if q.Type != "" {
		t := models.TransactionType(q.Type)
		filter.Type = &t
	}
	if q.CategoryGroup != "" {
		g := models.CategoryGroup(q.CategoryGroup)
		filter.CategoryGroup = &g
	}
	filter.AccountID = q.AccountID
	if q.MinAmount != "" {
		min, err := decimal.NewFromString(q.MinAmount)
		if err != nil {
			return filter, apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid min_amount")
		}
		filter.MinAmount = &min
	}
	if q.MaxAmount != "" {
		max, err := decimal.NewFromString(q.MaxAmount)
		if err != nil {
			return filter, apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid max_amount")
		}
		filter.MaxAmount = &max
	}
	return filter, nil
}

// GetTransaction retrieves a single transaction
// @Summary     Get a transaction
// @Description Get one transaction by ID
// @Tags        transactions
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Transaction ID"
// @Success     200 {object} models.Transaction "Transaction"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /transactions/{id} [get]
func (h *TransactionHandler) GetTransaction(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	transaction, err := h.transactionService.GetTransactionByID(userID, c.Param("id"))
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transaction": transaction})
}

// UpdateTransaction edits a transaction in place
// @Summary     Update a transaction
// @Description Edit a transaction; the whole log is replayed afterwards
// @Tags        transactions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Transaction ID"
// @Param       request body TransactionRequest true "Updated transaction"
// @Success     200 {object} models.Transaction "Transaction updated"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /transactions/{id} [put]
func (h *TransactionHandler) UpdateTransaction(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req TransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	input, err := req.toInput()
	if err != nil {
		respondWithError(c, err)
		return
	}

	transaction, err := h.transactionService.UpdateTransaction(userID, c.Param("id"), input)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "UPDATE_TRANSACTION", "transaction", transaction.ID, c.ClientIP(),
		map[string]interface{}{"type": string(req.Type), "amount": req.Amount.String()})

	c.JSON(http.StatusOK, gin.H{"transaction": transaction})
}

// DeleteTransaction removes a transaction from the log
// @Summary     Delete a transaction
// @Description Remove a transaction and its linked lot; the log is replayed afterwards
// @Tags        transactions
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Transaction ID"
// @Success     204 "Transaction deleted"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /transactions/{id} [delete]
func (h *TransactionHandler) DeleteTransaction(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	if err := h.transactionService.DeleteTransaction(userID, c.Param("id")); err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "DELETE_TRANSACTION", "transaction", c.Param("id"), c.ClientIP(), nil)

	c.Status(http.StatusNoContent)
}

// Reconcile triggers a full replay for the user
// @Summary     Reconcile balances
// @Description Reset all accounts to their initial state and replay the full transaction log
// @Tags        transactions
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} map[string]string "Reconciliation complete"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /reconcile [post]
func (h *TransactionHandler) Reconcile(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	if err := h.reconciler.Reconcile(userID); err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "RECONCILE", "ledger", userID, c.ClientIP(), nil)

	c.JSON(http.StatusOK, gin.H{"status": "reconciled"})
}
