package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"trading-signal-engine/internal/auth"
	"trading-signal-engine/internal/database"
	"trading-signal-engine/internal/market"
	"trading-signal-engine/internal/pipeline"
)

func (s *Server) handleHealth(c *gin.Context) {
	health := gin.H{
		"status":    "ok",
		"timestamp": time.Now(),
		"mode":      string(s.engine.Mode().Mode),
		"websocket_clients": func() int {
			if wsHub != nil {
				return wsHub.GetClientCount()
			}
			return 0
		}(),
	}
	if s.vaultClient != nil && s.vaultClient.IsEnabled() {
		if err := s.vaultClient.Health(c.Request.Context()); err != nil {
			health["vault"] = err.Error()
		} else {
			health["vault"] = "ok"
		}
	}
	c.JSON(http.StatusOK, health)
}

func (s *Server) handleLogin(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "username and password are required")
		return
	}

	token, err := s.authService.Login(req.Username, req.Password)
	if err != nil {
		errorResponse(c, http.StatusUnauthorized, "invalid credentials")
		return
	}
	successResponse(c, gin.H{"token": token})
}

// symbolParam validates the symbol path parameter against the configured
// symbol list. An empty configuration accepts any symbol.
func (s *Server) symbolParam(c *gin.Context) (string, bool) {
	symbol := c.Param("symbol")
	if symbol == "" {
		errorResponse(c, http.StatusBadRequest, "symbol is required")
		return "", false
	}
	if len(s.symbols) > 0 && !s.symbols[symbol] {
		errorResponse(c, http.StatusNotFound, "unknown symbol")
		return "", false
	}
	return symbol, true
}

// handleGetSignal returns the latest signal for a symbol, serving from
// cache when a fresh payload exists and running a cycle otherwise.
func (s *Server) handleGetSignal(c *gin.Context) {
	symbol, ok := s.symbolParam(c)
	if !ok {
		return
	}

	if payload, found := s.engine.LatestSignal(c.Request.Context(), symbol); found {
		successResponse(c, payload)
		return
	}

	result, err := s.engine.RunCycle(c.Request.Context(), symbol)
	if err != nil {
		if errors.Is(err, pipeline.ErrThrottled) {
			errorResponse(c, http.StatusTooManyRequests, "evaluation throttled, retry shortly")
			return
		}
		errorResponse(c, http.StatusInternalServerError, "evaluation failed")
		return
	}
	successResponse(c, result.Display)
}

// handleRefreshSignal forces a fresh evaluation cycle. Throttled requests
// get 429 and are dropped, never queued.
func (s *Server) handleRefreshSignal(c *gin.Context) {
	symbol, ok := s.symbolParam(c)
	if !ok {
		return
	}

	result, err := s.engine.RunCycle(c.Request.Context(), symbol)
	if err != nil {
		if errors.Is(err, pipeline.ErrThrottled) {
			errorResponse(c, http.StatusTooManyRequests, "evaluation throttled, retry shortly")
			return
		}
		errorResponse(c, http.StatusInternalServerError, "evaluation failed")
		return
	}

	successResponse(c, gin.H{
		"cycle_id": result.CycleID,
		"signal":   result.Display,
		"mode":     result.Mode.Mode,
	})
}

func (s *Server) handleGateStatistics(c *gin.Context) {
	successResponse(c, s.engine.GateStatistics())
}

func (s *Server) handleGetMode(c *gin.Context) {
	successResponse(c, s.engine.Mode())
}

func (s *Server) handleSetMode(c *gin.Context) {
	var req struct {
		Mode string `json:"mode" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "mode is required")
		return
	}

	if err := s.engine.SetMode(req.Mode); err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	operator, _ := c.Get(auth.ContextKeyOperator)
	s.logger.Info("Mode changed via API", "mode", req.Mode, "operator", operator)
	successResponse(c, s.engine.Mode())
}

func (s *Server) handleAddCalibrationSample(c *gin.Context) {
	if s.calibration == nil {
		errorResponse(c, http.StatusServiceUnavailable, "calibration store not configured")
		return
	}

	var req struct {
		Symbol    string  `json:"symbol" binding:"required"`
		Timeframe string  `json:"timeframe" binding:"required"`
		Predicted float64 `json:"predicted"`
		Actual    float64 `json:"actual"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "symbol, timeframe, predicted and actual are required")
		return
	}
	if !market.Timeframe(req.Timeframe).Valid() {
		errorResponse(c, http.StatusBadRequest, "invalid timeframe")
		return
	}
	if req.Predicted < 0 || req.Predicted > 1 || req.Actual < 0 || req.Actual > 1 {
		errorResponse(c, http.StatusBadRequest, "predicted and actual must be within [0,1]")
		return
	}

	sample := &database.CalibrationSample{
		Symbol:    req.Symbol,
		Timeframe: req.Timeframe,
		Predicted: req.Predicted,
		Actual:    req.Actual,
	}
	if err := s.calibration.SaveSample(c.Request.Context(), sample); err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to save calibration sample")
		return
	}

	// Push the enlarged calibration set into the gate right away
	if err := s.engine.RefreshCalibration(c.Request.Context(), s.calibration, req.Symbol); err != nil {
		s.logger.Warn("Calibration refresh after insert failed", "error", err)
	}

	successResponse(c, sample)
}

func (s *Server) handleListCalibrationSamples(c *gin.Context) {
	if s.calibration == nil {
		errorResponse(c, http.StatusServiceUnavailable, "calibration store not configured")
		return
	}

	samples, err := s.calibration.RecentSamples(c.Request.Context(), c.Query("symbol"), 200)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to load calibration samples")
		return
	}
	successResponse(c, samples)
}
