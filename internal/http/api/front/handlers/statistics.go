package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/modelgate/modelgate/internal/usage"
)

// StatisticsHandler serves usage rollups.
type StatisticsHandler struct {
	rollups           *usage.Rollups
	subscriptionPrice float64
}

// NewStatisticsHandler constructs a StatisticsHandler.
func NewStatisticsHandler(rollups *usage.Rollups, subscriptionPrice float64) *StatisticsHandler {
	return &StatisticsHandler{rollups: rollups, subscriptionPrice: subscriptionPrice}
}

// dateRange parses from/to query parameters (YYYY-MM-DD), defaulting to
// the trailing 30 days.
func dateRange(c *gin.Context) (time.Time, time.Time, bool) {
	now := time.Now().UTC()
	from := now.AddDate(0, 0, -30)
	to := now

	if raw := c.Query("from"); raw != "" {
		parsed, errParse := time.Parse("2006-01-02", raw)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from date"})
			return time.Time{}, time.Time{}, false
		}
		from = parsed
	}
	if raw := c.Query("to"); raw != "" {
		parsed, errParse := time.Parse("2006-01-02", raw)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to date"})
			return time.Time{}, time.Time{}, false
		}
		to = parsed
	}
	if to.Before(from) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to before from"})
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

// ByDay returns daily counters within the range.
func (h *StatisticsHandler) ByDay(c *gin.Context) {
	userID := getUserID(c)
	from, to, ok := dateRange(c)
	if !ok {
		return
	}

	rows, errQuery := h.rollups.ByDay(userID, from, to)
	if errQuery != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"daily": rows})
}

// ByModel returns per-model counters within the range, most expensive
// first.
func (h *StatisticsHandler) ByModel(c *gin.Context) {
	userID := getUserID(c)
	from, to, ok := dateRange(c)
	if !ok {
		return
	}

	rows, errQuery := h.rollups.ByModel(userID, from, to)
	if errQuery != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": rows})
}

// ByProvider returns per-provider counters within the range, most
// expensive first.
func (h *StatisticsHandler) ByProvider(c *gin.Context) {
	userID := getUserID(c)
	from, to, ok := dateRange(c)
	if !ok {
		return
	}

	rows, errQuery := h.rollups.ByProvider(userID, from, to)
	if errQuery != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"providers": rows})
}

// Summary returns the fixed convenience rollups and the savings figure.
func (h *StatisticsHandler) Summary(c *gin.Context) {
	userID := getUserID(c)
	summary, errQuery := h.rollups.Summarize(userID, h.subscriptionPrice, time.Now())
	if errQuery != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, summary)
}
