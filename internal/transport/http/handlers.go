package enginehttp

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"levex/internal/engine"
	"levex/internal/exitplan"
	"levex/internal/gateway/venue"
)

type handlers struct {
	eng   *engine.Engine
	plans *exitplan.Engine
}

func (h *handlers) register(g *gin.RouterGroup) {
	g.GET("/account", h.accountOverview)
	g.GET("/positions", h.positions)
	g.GET("/positions/summary", h.positionSummary)
	g.GET("/positions/unprotected", h.unprotectedPositions)
	g.GET("/positions/:symbol/protection", h.positionProtection)
	g.POST("/positions/:symbol/protection", h.addProtection)
	g.POST("/positions/:symbol/close", h.closePosition)
	g.GET("/borrowable/:asset", h.maxBorrowable)
	g.GET("/liabilities", h.liabilities)
	g.GET("/liabilities/total", h.totalLiability)
	g.GET("/risk", h.liquidationRisk)
	g.GET("/margin-level", h.marginLevel)
	g.POST("/orders/market", h.marketOrder)
	g.POST("/orders/limit", h.limitOrder)
	g.POST("/orders/stop-limit", h.stopLimitOrder)
	g.GET("/exit-plans", h.listExitPlans)
	g.POST("/exit-plans", h.createExitPlan)
	g.POST("/exit-plans/check", h.checkExitPlans)
	g.GET("/exit-plans/:symbol", h.getExitPlan)
	g.POST("/exit-plans/:symbol/execute", h.executeExitPlan)
	g.DELETE("/exit-plans/:symbol", h.removeExitPlan)
}

// fail maps the engine error taxonomy onto HTTP statuses: validation 400,
// not-found 404, venue rejection 502, anything else 500.
func fail(c *gin.Context, err error) {
	var verr *engine.ValidationError
	var rej *engine.VenueRejection
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrNotFound), errors.Is(err, exitplan.ErrPlanNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &rej):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "leg": rej.Leg})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h *handlers) accountOverview(c *gin.Context) {
	overview, err := h.eng.GetAccountOverview(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, overview)
}

func (h *handlers) positions(c *gin.Context) {
	positions, err := h.eng.CurrentPositions(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions})
}

func (h *handlers) positionSummary(c *gin.Context) {
	summary, err := h.eng.PositionSummary(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": summary})
}

func (h *handlers) unprotectedPositions(c *gin.Context) {
	bare, err := h.eng.UnprotectedPositions(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	if bare == nil {
		bare = []engine.PositionProtection{}
	}
	c.JSON(http.StatusOK, gin.H{"positions": bare})
}

func (h *handlers) positionProtection(c *gin.Context) {
	status, err := h.eng.CheckPositionProtection(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

type protectionRequest struct {
	TakeProfit float64 `json:"take_profit" binding:"required"`
	StopLoss   float64 `json:"stop_loss" binding:"required"`
}

func (h *handlers) addProtection(c *gin.Context) {
	var req protectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	outcome, err := h.eng.AddProtectionToPosition(c.Request.Context(), c.Param("symbol"), req.TakeProfit, req.StopLoss)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

type closeRequest struct {
	AutoRepay bool `json:"auto_repay"`
}

func (h *handlers) closePosition(c *gin.Context) {
	var req closeRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.eng.ClosePosition(c.Request.Context(), c.Param("symbol"), req.AutoRepay)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handlers) maxBorrowable(c *gin.Context) {
	res, err := h.eng.MaxBorrowable(c.Request.Context(), c.Param("asset"), c.Query("symbol"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handlers) liabilities(c *gin.Context) {
	liabilities, err := h.eng.CurrentLiabilities(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"liabilities": liabilities})
}

func (h *handlers) totalLiability(c *gin.Context) {
	total, err := h.eng.TotalLiabilityValue(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "asset": h.eng.Settings().QuoteAsset})
}

func (h *handlers) liquidationRisk(c *gin.Context) {
	risk, err := h.eng.LiquidationRisk(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, risk)
}

func (h *handlers) marginLevel(c *gin.Context) {
	level, err := h.eng.MarginLevel(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"margin_level": level})
}

type orderRequest struct {
	Symbol    string  `json:"symbol" binding:"required"`
	Side      string  `json:"side" binding:"required"`
	Quantity  float64 `json:"quantity" binding:"required"`
	Price     float64 `json:"price"`
	StopPrice float64 `json:"stop_price"`

	Leverage    int     `json:"leverage"`
	TakeProfit  float64 `json:"take_profit"`
	StopLoss    float64 `json:"stop_loss"`
	TimeInForce string  `json:"time_in_force"`
	PostOnly    bool    `json:"post_only"`
	ReduceOnly  bool    `json:"reduce_only"`
}

func (r orderRequest) options() engine.OrderOptions {
	return engine.OrderOptions{
		Leverage:    r.Leverage,
		TakeProfit:  r.TakeProfit,
		StopLoss:    r.StopLoss,
		TimeInForce: r.TimeInForce,
		PostOnly:    r.PostOnly,
		ReduceOnly:  r.ReduceOnly,
	}
}

func parseSide(raw string) (venue.Side, bool) {
	switch raw {
	case "BUY", "buy":
		return venue.SideBuy, true
	case "SELL", "sell":
		return venue.SideSell, true
	}
	return "", false
}

func (h *handlers) marketOrder(c *gin.Context) {
	var req orderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	side, ok := parseSide(req.Side)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "side must be BUY or SELL"})
		return
	}
	res, err := h.eng.CreateMarketOrder(c.Request.Context(), req.Symbol, side, req.Quantity, req.options())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handlers) limitOrder(c *gin.Context) {
	var req orderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	side, ok := parseSide(req.Side)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "side must be BUY or SELL"})
		return
	}
	res, err := h.eng.CreateLimitOrder(c.Request.Context(), req.Symbol, side, req.Quantity, req.Price, req.options())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handlers) stopLimitOrder(c *gin.Context) {
	var req orderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	side, ok := parseSide(req.Side)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "side must be BUY or SELL"})
		return
	}
	res, err := h.eng.CreateStopLimitOrder(c.Request.Context(), req.Symbol, side, req.Quantity, req.Price, req.StopPrice, req.options())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handlers) requirePlans(c *gin.Context) bool {
	if h.plans == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "exit plan engine not configured"})
		return false
	}
	return true
}

type exitPlanRequest struct {
	Symbol      string               `json:"symbol" binding:"required"`
	TargetPrice float64              `json:"target_price" binding:"required"`
	StopPrice   float64              `json:"stop_price" binding:"required"`
	Conditions  []exitplan.Condition `json:"conditions"`
}

func (h *handlers) createExitPlan(c *gin.Context) {
	if !h.requirePlans(c) {
		return
	}
	var req exitPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	plan, err := h.plans.CreateExitPlan(c.Request.Context(), req.Symbol, req.TargetPrice, req.StopPrice, req.Conditions)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

func (h *handlers) listExitPlans(c *gin.Context) {
	if !h.requirePlans(c) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"plans": h.plans.Plans()})
}

func (h *handlers) getExitPlan(c *gin.Context) {
	if !h.requirePlans(c) {
		return
	}
	plan, err := h.plans.Plan(c.Param("symbol"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

func (h *handlers) checkExitPlans(c *gin.Context) {
	if !h.requirePlans(c) {
		return
	}
	results, err := h.plans.CheckAllExitPlans(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (h *handlers) executeExitPlan(c *gin.Context) {
	if !h.requirePlans(c) {
		return
	}
	if err := h.plans.ExecuteExitPlan(c.Request.Context(), c.Param("symbol")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "closed"})
}

func (h *handlers) removeExitPlan(c *gin.Context) {
	if !h.requirePlans(c) {
		return
	}
	if err := h.plans.RemoveExitPlan(c.Request.Context(), c.Param("symbol")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}
