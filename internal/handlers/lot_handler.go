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

// LotHandler handles cost-basis lot requests.
type LotHandler struct {
	lotService   services.LotServicer
	auditService services.AuditServicer
}

// NewLotHandler creates a new LotHandler.
func NewLotHandler(lotService services.LotServicer, auditService services.AuditServicer) *LotHandler {
	return &LotHandler{lotService: lotService, auditService: auditService}
}

// LotRequest represents the request payload for creating or updating a lot.
type LotRequest struct {
	AssetID      string          `json:"asset_id" binding:"required"`
	Side         models.LotSide  `json:"side" binding:"required,lot_side"`
	Units        decimal.Decimal `json:"units" binding:"required"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
	Fees         decimal.Decimal `json:"fees"`
	Date         string          `json:"date"`
}

func (r *LotRequest) toInput() (services.LotInput, error) {
	input := services.LotInput{
		AssetID:      r.AssetID,
		Side:         r.Side,
		Units:        r.Units,
		PricePerUnit: r.PricePerUnit,
		Fees:         r.Fees,
	}
	if r.Date != "" {
		date, err := parseDate(r.Date)
		if err != nil {
			return services.LotInput{}, err
		}
		input.Date = date
	}
	return input, nil
}

// CreateLot records a buy or sell lot
// @Summary     Record a lot
// @Description Record a buy or sell lot against a tradable asset
// @Tags        lots
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body LotRequest true "Lot details"
// @Success     201 {object} models.StockLot "Lot recorded"
// @Failure     400 {object} ErrorResponse "Invalid input or insufficient units"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /lots [post]
func (h *LotHandler) CreateLot(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req LotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	input, err := req.toInput()
	if err != nil {
		respondWithError(c, err)
		return
	}

	lot, err := h.lotService.AddLot(userID, input)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "CREATE_LOT", "lot", lot.ID, c.ClientIP(),
		map[string]interface{}{"asset_id": req.AssetID, "side": string(req.Side), "units": req.Units.String()})

	c.JSON(http.StatusCreated, gin.H{"lot": lot})
}

// GetAssetLots lists the lots of one asset
// @Summary     List lots
// @Description Get a paginated list of one asset's lots, oldest first
// @Tags        lots
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Asset account ID"
// @Param       page query int false "Page number"
// @Param       page_size query int false "Page size"
// @Success     200 {object} pagination.PageResponse[models.StockLot] "Lots"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /accounts/{id}/lots [get]
func (h *LotHandler) GetAssetLots(c *gin.Context) {
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

	result, err := h.lotService.GetAssetLots(userID, c.Param("id"), page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// UpdateLot edits a lot in place
// @Summary     Update a lot
// @Description Edit a lot; the asset's holdings move by the delta
// @Tags        lots
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Lot ID"
// @Param       request body LotRequest true "Updated lot"
// @Success     200 {object} models.StockLot "Lot updated"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /lots/{id} [put]
func (h *LotHandler) UpdateLot(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req LotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	input, err := req.toInput()
	if err != nil {
		respondWithError(c, err)
		return
	}

	lot, err := h.lotService.UpdateLot(userID, c.Param("id"), input)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "UPDATE_LOT", "lot", lot.ID, c.ClientIP(),
		map[string]interface{}{"side": string(req.Side), "units": req.Units.String()})

	c.JSON(http.StatusOK, gin.H{"lot": lot})
}

// DeleteLot removes a lot
// @Summary     Delete a lot
// @Description Remove a lot and reverse its holdings effect
// @Tags        lots
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Lot ID"
// @Success     204 "Lot deleted"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /lots/{id} [delete]
func (h *LotHandler) DeleteLot(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	if err := h.lotService.DeleteLot(userID, c.Param("id")); err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "DELETE_LOT", "lot", c.Param("id"), c.ClientIP(), nil)

	c.Status(http.StatusNoContent)
}
