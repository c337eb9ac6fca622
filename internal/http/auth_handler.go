package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"resume-match/internal/service"
)

// AuthHandler expone el ciclo de sesion: alta, login, logout, refresh y
// verificacion de email.
type AuthHandler struct {
	logger     *zap.Logger
	reconciler *service.Reconciler
}

func NewAuthHandler(logger *zap.Logger, reconciler *service.Reconciler) *AuthHandler {
	return &AuthHandler{
		logger:     logger,
		reconciler: reconciler,
	}
}

// SignUp maneja POST /auth/signup.
func (h *AuthHandler) SignUp(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
		Name     string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid signup request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	account, err := h.reconciler.SignUp(c.Request.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmailExists):
			c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
		case errors.Is(err, service.ErrWeakPassword):
			c.JSON(http.StatusBadRequest, gin.H{"error": "password too weak"})
		case errors.Is(err, service.ErrInvalidCredentials):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		default:
			h.logger.Error("signup failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "could not sign up, try again later"})
		}
		return
	}

	// La confirmacion de email es asincronica: la cuenta nace sin
	// verificar aunque el alta haya sido exitosa.
	c.JSON(http.StatusCreated, gin.H{"account": account, "is_email_verified": false})
}

// Login maneja POST /auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid login request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	session, account, err := h.reconciler.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeAuthError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": account, "session": session})
}

// Logout maneja POST /auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	_ = c.ShouldBindJSON(&req)

	if err := h.reconciler.SignOut(c.Request.Context(), bearerToken(c), req.RefreshToken); err != nil {
		h.logger.Warn("logout failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "could not sign out"})
		return
	}
	c.Status(http.StatusNoContent)
}

// Refresh maneja POST /auth/refresh.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	session, err := h.reconciler.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		h.logger.Error("refresh failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "could not refresh session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}

// ResendVerification maneja POST /auth/resend-verification.
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if err := h.reconciler.ResendVerification(c.Request.Context(), req.Email); err != nil {
		if errors.Is(err, service.ErrRateLimited) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		h.logger.Error("resend verification failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "could not resend verification"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "verification_sent"})
}

// VerifyEmail maneja GET /auth/verify?token=... (solo modo offline).
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing token"})
		return
	}
	if err := h.reconciler.ConfirmEmail(c.Request.Context(), token); err != nil {
		switch {
		case errors.Is(err, service.ErrVerifyUnsupported):
			c.JSON(http.StatusNotFound, gin.H{"error": "verification handled by auth provider"})
		case errors.Is(err, service.ErrInvalidCredentials):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or expired token"})
		default:
			h.logger.Error("confirm email failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "could not confirm email"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "email_verified"})
}

// Entitlements maneja GET /auth/entitlements. Total: siempre 200.
func (h *AuthHandler) Entitlements(c *gin.Context) {
	status := h.reconciler.DeriveEntitlementStatus(c.Request.Context(), bearerToken(c))
	c.JSON(http.StatusOK, gin.H{"entitlements": status})
}

// CanChangePassword maneja GET /auth/can-change-password.
func (h *AuthHandler) CanChangePassword(c *gin.Context) {
	allowed := h.reconciler.CanChangePassword(c.Request.Context(), bearerToken(c))
	c.JSON(http.StatusOK, gin.H{"can_change_password": allowed})
}

// writeAuthError traduce errores del reconciliador a respuestas. Los
// fallos de consistencia de identidad siempre se presentan como acceso
// denegado; el detalle interno no se filtra.
func writeAuthError(c *gin.Context, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
	case errors.Is(err, service.ErrAccessDenied),
		errors.Is(err, service.ErrMissingIdentityFields),
		errors.Is(err, service.ErrIdentityEmailMismatch),
		errors.Is(err, service.ErrEmailAlreadyInUse):
		c.JSON(http.StatusForbidden, gin.H{"error": "access denied, please sign in again"})
	default:
		logger.Error("auth operation failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporary failure, try again later"})
	}
}
