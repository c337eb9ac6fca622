package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter configura el router de Gin con middlewares y rutas.
func NewRouter(
	logger *zap.Logger,
	authH *AuthHandler,
	accountH *AccountHandler,
	billingH *BillingHandler,
	matchH *MatchHandler,
) *gin.Engine {
	r := gin.New()

	// Middlewares basicos: logging, recovery y JSON content-type.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery(), jsonContentTypeMiddleware())

	// El webhook de pagos exige 405 para metodos que no sean POST.
	r.HandleMethodNotAllowed = true
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed"})
	})

	auth := r.Group("/auth")
	auth.POST("/signup", authH.SignUp)
	auth.POST("/login", authH.Login)
	auth.POST("/logout", authH.Logout)
	auth.POST("/refresh", authH.Refresh)
	auth.POST("/resend-verification", authH.ResendVerification)
	auth.GET("/verify", authH.VerifyEmail)
	auth.GET("/entitlements", authH.Entitlements)
	auth.GET("/can-change-password", authH.CanChangePassword)

	account := r.Group("/account")
	account.GET("", accountH.Me)
	account.PATCH("/role", accountH.UpdateRole)
	account.GET("/upgrade-eligibility", accountH.UpgradeEligibility)

	r.POST("/billing/webhook", billingH.Webhook)
	r.POST("/match/score", matchH.Score)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
