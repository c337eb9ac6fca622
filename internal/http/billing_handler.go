package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"resume-match/internal/billing"
	"resume-match/internal/service"
)

// BillingHandler recibe los webhooks del proveedor de pagos. Contrato de
// respuesta: 405 metodo invalido, 400 firma o payload invalidos, 500 sin
// secretos configurados, 200 en todo lo demas — incluidos fallos
// internos de procesamiento, porque re-entregar un evento que no puede
// aplicarse no cambia el resultado.
type BillingHandler struct {
	logger        *zap.Logger
	billingServ   *service.BillingService
	webhookSecret string
	configured    bool
}

func NewBillingHandler(logger *zap.Logger, billingServ *service.BillingService, webhookSecret string, configured bool) *BillingHandler {
	return &BillingHandler{
		logger:        logger,
		billingServ:   billingServ,
		webhookSecret: webhookSecret,
		configured:    configured,
	}
}

// Webhook maneja POST /billing/webhook.
func (h *BillingHandler) Webhook(c *gin.Context) {
	if !h.configured {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}

	// La firma se computa sobre el body crudo; leerlo antes de parsear.
	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read payload"})
		return
	}

	header := c.GetHeader(billing.SignatureHeader)
	if err := billing.VerifySignature(payload, header, h.webhookSecret, billing.DefaultTolerance, time.Now()); err != nil {
		h.logger.Warn("webhook signature rejected", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	event, err := billing.ParseEvent(payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
		return
	}

	// Se responde 200 aunque el procesamiento falle: el proveedor exige
	// el ack rapido y el reintento no resuelve fallos no transitorios.
	if err := h.billingServ.HandleEvent(c.Request.Context(), event); err != nil {
		h.logger.Error("billing event processing failed",
			zap.String("event_id", event.ID),
			zap.String("type", event.Type),
			zap.Error(err),
		)
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
