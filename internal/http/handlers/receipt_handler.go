package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pixter/pixter-backend/internal/http/handlers/common"
)

// ReceiptHandler отдаёт PDF-квитанции. Файлы генерируются на каждый запрос и не хранятся.
type ReceiptHandler struct {
	receipts ReceiptAPI
}

// NewReceiptHandler создаёт хэндлер.
func NewReceiptHandler(receipts ReceiptAPI) *ReceiptHandler {
	return &ReceiptHandler{receipts: receipts}
}

// ClientReceipt обрабатывает GET /api/receipts/:chargeId.
func (h *ReceiptHandler) ClientReceipt(c *gin.Context) {
	chargeID := strings.TrimSpace(c.Param("chargeId"))
	pdf, err := h.receipts.ClientReceipt(c.Request.Context(), chargeID)
	if err != nil {
		common.Fail(c, err)
		return
	}
	writePDF(c, "recibo-"+chargeID+".pdf", pdf)
}

// DriverReceipt обрабатывает GET /api/driver/receipts/:chargeId.
func (h *ReceiptHandler) DriverReceipt(c *gin.Context) {
	driverID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c)
		return
	}

	chargeID := strings.TrimSpace(c.Param("chargeId"))
	pdf, err := h.receipts.DriverReceipt(c.Request.Context(), driverID, chargeID)
	if err != nil {
		common.Fail(c, err)
		return
	}
	writePDF(c, "recibo-motorista-"+chargeID+".pdf", pdf)
}

func writePDF(c *gin.Context, filename string, pdf []byte) {
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "application/pdf", pdf)
}
