package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"resume-match/internal/domain"
	"resume-match/internal/match"
	"resume-match/internal/service"
)

// MatchHandler expone el scoring de resume contra job description. Los
// insights completos son del plan pro; guests y plan free reciben solo
// el resumen.
type MatchHandler struct {
	logger     *zap.Logger
	reconciler *service.Reconciler
	scorer     match.Scorer
}

func NewMatchHandler(logger *zap.Logger, reconciler *service.Reconciler, scorer match.Scorer) *MatchHandler {
	return &MatchHandler{
		logger:     logger,
		reconciler: reconciler,
		scorer:     scorer,
	}
}

// Score maneja POST /match/score.
func (h *MatchHandler) Score(c *gin.Context) {
	var req struct {
		ResumeText string `json:"resume_text" binding:"required"`
		JDText     string `json:"jd_text" binding:"required"`
		Role       string `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	insights, err := h.scorer.Score(c.Request.Context(), req.ResumeText, req.JDText, req.Role)
	if err != nil {
		h.logger.Error("score failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scoring unavailable, try again later"})
		return
	}

	plan := domain.PlanFree
	if account, err := h.reconciler.CurrentAccount(c.Request.Context(), bearerToken(c)); err == nil {
		plan = account.Plan
	}
	if plan != domain.PlanPro {
		insights = insights.SummaryOnly()
	}
	c.JSON(http.StatusOK, gin.H{"insights": insights, "plan": plan})
}
