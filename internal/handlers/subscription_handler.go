package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "tally/internal/errors"
	"tally/internal/models"
	"tally/internal/pagination"
	"tally/internal/services"
)

// SubscriptionHandler handles recurring bill rule requests.
type SubscriptionHandler struct {
	subscriptionService services.SubscriptionServicer
	auditService        services.AuditServicer
}

// NewSubscriptionHandler creates a new SubscriptionHandler.
func NewSubscriptionHandler(subscriptionService services.SubscriptionServicer, auditService services.AuditServicer) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptionService: subscriptionService, auditService: auditService}
}

// SubscriptionRequest represents the request payload for creating or updating a rule.
type SubscriptionRequest struct {
	Name            string                   `json:"name" binding:"required,min=1,max=100"`
	Amount          decimal.Decimal          `json:"amount" binding:"required"`
	Currency        string                   `json:"currency" binding:"omitempty,iso4217"`
	Cycle           models.SubscriptionCycle `json:"cycle" binding:"omitempty,subscription_cycle"`
	AnchorDate      string                   `json:"anchor_date" binding:"required"`
	WeekdaysOnly    bool                     `json:"weekdays_only"`
	SourceAccountID *string                  `json:"source_account_id"`
	IsActive        *bool                    `json:"is_active"`
}

func (r *SubscriptionRequest) toInput() (services.SubscriptionInput, error) {
	anchor, err := parseDate(r.AnchorDate)
	if err != nil {
		return services.SubscriptionInput{}, err
	}
	return services.SubscriptionInput{
		Name:            r.Name,
		Amount:          r.Amount,
		Currency:        r.Currency,
		Cycle:           r.Cycle,
		AnchorDate:      anchor,
		WeekdaysOnly:    r.WeekdaysOnly,
		SourceAccountID: r.SourceAccountID,
	}, nil
}

// CreateSubscription creates a recurring bill rule
// @Summary     Create a subscription
// @Description Create a recurring bill rule anchored at a date
// @Tags        subscriptions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body SubscriptionRequest true "Subscription details"
// @Success     201 {object} models.Subscription "Subscription created"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /subscriptions [post]
func (h *SubscriptionHandler) CreateSubscription(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req SubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	input, err := req.toInput()
	if err != nil {
		respondWithError(c, err)
		return
	}

	sub, err := h.subscriptionService.CreateSubscription(userID, input)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "CREATE_SUBSCRIPTION", "subscription", sub.ID, c.ClientIP(),
		map[string]interface{}{"name": req.Name, "cycle": string(sub.Cycle)})

	c.JSON(http.StatusCreated, gin.H{"subscription": sub})
}

// GetSubscriptions lists the user's rules
// @Summary     List subscriptions
// @Description Get a paginated list of the user's recurring bill rules
// @Tags        subscriptions
// @Produce     json
// @Security    BearerAuth
// @Param       page query int false "Page number"
// @Param       page_size query int false "Page size"
// @Success     200 {object} pagination.PageResponse[models.Subscription] "Subscriptions"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /subscriptions [get]
func (h *SubscriptionHandler) GetSubscriptions(c *gin.Context) {
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

	result, err := h.subscriptionService.GetUserSubscriptions(userID, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetSubscription returns a single rule
// @Summary     Get a subscription
// @Description Get a single recurring bill rule by ID
// @Tags        subscriptions
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Subscription ID"
// @Success     200 {object} models.Subscription "Subscription"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /subscriptions/{id} [get]
func (h *SubscriptionHandler) GetSubscription(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	sub, err := h.subscriptionService.GetSubscriptionByID(userID, c.Param("id"))
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"subscription": sub})
}

// GetNextDueDate returns the projected next due date of a rule
// @Summary     Get next due date
// @Description Compute the effective next due date of a rule without advancing it
// @Tags        subscriptions
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Subscription ID"
// @Success     200 {object} map[string]string "Next due date"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /subscriptions/{id}/next-due [get]
func (h *SubscriptionHandler) GetNextDueDate(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	next, err := h.subscriptionService.NextDueDate(userID, c.Param("id"), time.Now())
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"next_due_date": next.Format("2006-01-02")})
}

// UpdateSubscription edits a rule
// @Summary     Update a subscription
// @Description Edit a recurring bill rule; a future anchor rebases the runner
// @Tags        subscriptions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Subscription ID"
// @Param       request body SubscriptionRequest true "Updated subscription"
// @Success     200 {object} models.Subscription "Subscription updated"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /subscriptions/{id} [put]
func (h *SubscriptionHandler) UpdateSubscription(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req SubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	input, err := req.toInput()
	if err != nil {
		respondWithError(c, err)
		return
	}

	sub, err := h.subscriptionService.UpdateSubscription(userID, c.Param("id"), input, req.IsActive)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "UPDATE_SUBSCRIPTION", "subscription", sub.ID, c.ClientIP(),
		map[string]interface{}{"name": req.Name})

	c.JSON(http.StatusOK, gin.H{"subscription": sub})
}

// DeleteSubscription removes a rule
// @Summary     Delete a subscription
// @Description Remove a recurring bill rule; already materialized bills stay in the log
// @Tags        subscriptions
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Subscription ID"
// @Success     204 "Subscription deleted"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /subscriptions/{id} [delete]
func (h *SubscriptionHandler) DeleteSubscription(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	if err := h.subscriptionService.DeleteSubscription(userID, c.Param("id")); err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "DELETE_SUBSCRIPTION", "subscription", c.Param("id"), c.ClientIP(), nil)

	c.Status(http.StatusNoContent)
}

// RunScheduler materializes all due bills for the user
// @Summary     Run the scheduler pass
// @Description Materialize every due bill across the user's active rules; cron-invoked
// @Tags        subscriptions
// @Produce     json
// @Security    ApiKeyAuth
// @Param       user_id query string true "User to run the pass for"
// @Success     200 {object} map[string]int "Number of bills created"
// @Failure     401 {object} ErrorResponse "Invalid API key"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /scheduler/run [post]
func (h *SubscriptionHandler) RunScheduler(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "user_id is required"))
		return
	}

	created, err := h.subscriptionService.RunSchedulerPass(userID, time.Now())
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "RUN_SCHEDULER", "subscription", userID, c.ClientIP(),
		map[string]interface{}{"bills_created": created})

	c.JSON(http.StatusOK, gin.H{"bills_created": created})
}
