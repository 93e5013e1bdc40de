package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pixter/pixter-backend/internal/http/handlers/common"
)

// ConnectHandler - подключение водителя к Stripe Connect и его баланс.
type ConnectHandler struct {
	connect ConnectAPI
}

// NewConnectHandler создаёт хэндлер.
func NewConnectHandler(connect ConnectAPI) *ConnectHandler {
	return &ConnectHandler{connect: connect}
}

// ConnectAccount обрабатывает POST /api/stripe/connect-account.
func (h *ConnectHandler) ConnectAccount(c *gin.Context) {
	driverID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c)
		return
	}

	link, err := h.connect.EnsureConnectedAccount(c.Request.Context(), driverID)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, link)
}

// AccountStatus обрабатывает GET /api/stripe/account-status.
func (h *ConnectHandler) AccountStatus(c *gin.Context) {
	driverID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c)
		return
	}

	status, err := h.connect.RefreshStatus(c.Request.Context(), driverID)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// Balance обрабатывает GET /api/driver/balance.
func (h *ConnectHandler) Balance(c *gin.Context) {
	driverID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c)
		return
	}

	balance, err := h.connect.Balance(c.Request.Context(), driverID)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, balance)
}

// Transactions обрабатывает GET /api/driver/transactions?limit=.
func (h *ConnectHandler) Transactions(c *gin.Context) {
	driverID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c)
		return
	}

	items, err := h.connect.Transactions(c.Request.Context(), driverID, common.ParseIntQuery(c, "limit", 0))
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": items})
}
