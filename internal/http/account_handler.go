package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"resume-match/internal/domain"
	"resume-match/internal/service"
)

// AccountHandler expone operaciones sobre la cuenta de la sesion actual.
type AccountHandler struct {
	logger     *zap.Logger
	reconciler *service.Reconciler
}

func NewAccountHandler(logger *zap.Logger, reconciler *service.Reconciler) *AccountHandler {
	return &AccountHandler{
		logger:     logger,
		reconciler: reconciler,
	}
}

// Me maneja GET /account.
func (h *AccountHandler) Me(c *gin.Context) {
	account, err := h.reconciler.CurrentAccount(c.Request.Context(), bearerToken(c))
	if err != nil {
		writeAuthError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": account})
}

// UpdateRole maneja PATCH /account/role.
func (h *AccountHandler) UpdateRole(c *gin.Context) {
	var req struct {
		Role string `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	account, err := h.reconciler.CurrentAccount(c.Request.Context(), bearerToken(c))
	if err != nil {
		writeAuthError(c, h.logger, err)
		return
	}

	updated, err := h.reconciler.UpdateRole(c.Request.Context(), account.ID, req.Role)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRole):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
		case errors.Is(err, service.ErrUpgradeRequired):
			// Razon estructurada: el shell decide como presentar el
			// prompt de upgrade.
			c.JSON(http.StatusConflict, gin.H{"error": "upgrade required", "reason": "upgrade_required"})
		case errors.Is(err, domain.ErrAccountNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		default:
			h.logger.Error("update role failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporary failure, try again later"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": updated})
}

// UpgradeEligibility maneja GET /account/upgrade-eligibility.
func (h *AccountHandler) UpgradeEligibility(c *gin.Context) {
	eligibility := h.reconciler.VerifyEligibleForUpgrade(c.Request.Context(), bearerToken(c))
	c.JSON(http.StatusOK, eligibility)
}
