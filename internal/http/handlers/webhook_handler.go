package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pixter/pixter-backend/internal/http/handlers/common"
	"github.com/pixter/pixter-backend/internal/logger"
)

// Максимальный размер тела события Stripe.
const maxWebhookBody = int64(256 << 10)

// WebhookHandler принимает события Stripe.
type WebhookHandler struct {
	webhooks WebhookAPI
}

// NewWebhookHandler создаёт хэндлер.
func NewWebhookHandler(webhooks WebhookAPI) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks}
}

// Stripe обрабатывает POST /api/webhooks/stripe. Подпись проверяется по сырому телу.
func (h *WebhookHandler) Stripe(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		logger.Log.WithError(err).Warn("не удалось прочитать тело вебхука")
		common.RespondError(c, http.StatusRequestEntityTooLarge, "Corpo da requisição inválido")
		return
	}

	if err := h.webhooks.Handle(c.Request.Context(), payload, c.GetHeader("Stripe-Signature")); err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
