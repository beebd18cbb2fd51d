package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "tally/internal/errors"
	"tally/internal/services"
)

// MetricsHandler handles period metrics requests.
type MetricsHandler struct {
	metricsService services.MetricsServicer
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(metricsService services.MetricsServicer) *MetricsHandler {
	return &MetricsHandler{metricsService: metricsService}
}

// MetricsQuery represents the query parameters for the metrics endpoint.
// Either a year and month, a year alone, or an explicit from/to pair.
type MetricsQuery struct {
	Year  int    `form:"year" binding:"omitempty,min=1970,max=2200"`
	Month int    `form:"month" binding:"omitempty,min=1,max=12"`
	From  string `form:"from"`
	To    string `form:"to"`
}

func (q *MetricsQuery) toWindow(now time.Time) (services.Window, error) {
	if q.From != "" || q.To != "" {
		if q.From == "" || q.To == "" {
			return services.Window{}, apperrors.WithMessage(apperrors.ErrInvalidInput, "from and to must be provided together")
		}
		from, err := parseDate(q.From)
		if err != nil {
			return services.Window{}, err
		}
		to, err := parseDate(q.To)
		if err != nil {
			return services.Window{}, err
		}
		if !to.After(from) {
			return services.Window{}, apperrors.WithMessage(apperrors.ErrInvalidInput, "to must be after from")
		}
		return services.Window{Start: from, End: to}, nil
	}

	year := q.Year
	if year == 0 {
		year = now.Year()
	}
	if q.Month != 0 {
		return services.MonthWindow(year, time.Month(q.Month)), nil
	}
	if q.Year != 0 {
		return services.YearWindow(year), nil
	}
	return services.MonthWindow(now.Year(), now.Month()), nil
}

// GetMetrics computes the activity and coverage ratios for a window
// @Summary     Get period metrics
// @Description Compute the activity and coverage ratios for a calendar month, year, or explicit window
// @Tags        metrics
// @Produce     json
// @Security    BearerAuth
// @Param       year query int false "Calendar year"
// @Param       month query int false "Calendar month (1-12)"
// @Param       from query string false "Window start (inclusive)"
// @Param       to query string false "Window end (exclusive)"
// @Success     200 {object} services.Metrics "Metrics"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /metrics [get]
func (h *MetricsHandler) GetMetrics(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var query MetricsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	window, err := query.toWindow(time.Now())
	if err != nil {
		respondWithError(c, err)
		return
	}

	metrics, err := h.metricsService.ComputeMetrics(userID, window)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"metrics": metrics})
}
