package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pixter/pixter-backend/internal/http/handlers/common"
	"github.com/pixter/pixter-backend/internal/service"
)

// PaymentHandler обрабатывает запросы создания и отслеживания платежей.
type PaymentHandler struct {
	payments PaymentAPI
}

// NewPaymentHandler создаёт новый PaymentHandler.
func NewPaymentHandler(payments PaymentAPI) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// CreateIntent обрабатывает POST /api/payments/create-intent.
// Авторизация необязательна: если клиент вошёл, к платежу привязывается его customer.
func (h *PaymentHandler) CreateIntent(c *gin.Context) {
	var req struct {
		DriverID     string `json:"driver_id"`
		DriverPhone  string `json:"driver_phone"`
		CountryCode  string `json:"country_code"`
		Amount       int64  `json:"amount"`
		TipAmount    int64  `json:"tip_amount"`
		ReceiptEmail string `json:"receipt_email"`
	}
	if !common.BindJSON(c, &req) {
		return
	}

	in := service.CreateIntentInput{
		DriverPhone:    strings.TrimSpace(req.DriverPhone),
		CountryCode:    req.CountryCode,
		AmountCents:    req.Amount,
		TipCents:       req.TipAmount,
		ClientID:       common.OptionalUserID(c),
		ReceiptEmail:   strings.TrimSpace(req.ReceiptEmail),
		IdempotencyKey: c.GetHeader("Idempotency-Key"),
	}
	if req.DriverID != "" {
		driverID, err := uuid.Parse(req.DriverID)
		if err != nil {
			common.RespondBadRequest(c, "driver_id inválido")
			return
		}
		in.DriverID = &driverID
	}
	if in.DriverID == nil && in.DriverPhone == "" {
		common.RespondBadRequest(c, "Informe o motorista (driver_id ou driver_phone)")
		return
	}

	res, err := h.payments.CreateIntent(c.Request.Context(), in)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// UpdateIntent обрабатывает POST /api/payments/update-intent.
func (h *PaymentHandler) UpdateIntent(c *gin.Context) {
	var req struct {
		PaymentIntentID string `json:"payment_intent_id"`
		Amount          int64  `json:"amount"`
		TipAmount       int64  `json:"tip_amount"`
	}
	if !common.BindJSON(c, &req) {
		return
	}
	if strings.TrimSpace(req.PaymentIntentID) == "" {
		common.RespondBadRequest(c, "payment_intent_id é obrigatório")
		return
	}

	res, err := h.payments.UpdateIntent(c.Request.Context(), req.PaymentIntentID, req.Amount, req.TipAmount)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// Status обрабатывает GET /api/payments/status/:intentId.
func (h *PaymentHandler) Status(c *gin.Context) {
	status, err := h.payments.CheckStatus(c.Request.Context(), c.Param("intentId"))
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// ClientHistory обрабатывает GET /api/payments/history.
func (h *PaymentHandler) ClientHistory(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c)
		return
	}

	limit, offset := common.GetPagination(c)
	items, err := h.payments.ClientHistory(c.Request.Context(), userID, limit, offset)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payments": items, "limit": limit, "offset": offset})
}

// DriverHistory обрабатывает GET /api/driver/payments.
func (h *PaymentHandler) DriverHistory(c *gin.Context) {
	driverID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c)
		return
	}

	limit, offset := common.GetPagination(c)
	items, err := h.payments.DriverHistory(c.Request.Context(), driverID, limit, offset)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payments": items, "limit": limit, "offset": offset})
}
