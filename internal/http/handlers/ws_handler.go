package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/pixter/pixter-backend/internal/http/middleware"
	"github.com/pixter/pixter-backend/internal/logger"
	"github.com/pixter/pixter-backend/internal/models"
	"github.com/pixter/pixter-backend/internal/pkg/apperror"
	"github.com/pixter/pixter-backend/internal/ws"
)

// WSHandler отвечает за установку WebSocket соединений водителей.
type WSHandler struct {
	hub      *ws.Hub
	auth     middleware.Authenticator
	upgrader websocket.Upgrader
}

// NewWSHandler создаёт новый хэндлер. Пустой allowedOrigins разрешает любой origin.
func NewWSHandler(hub *ws.Hub, auth middleware.Authenticator, allowedOrigins []string) *WSHandler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}
	return &WSHandler{
		hub:  hub,
		auth: auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || len(allowed) == 0 {
					return true
				}
				_, ok := allowed[origin]
				return ok
			},
		},
	}
}

// Handle обслуживает GET /api/ws?token=...
func (h *WSHandler) Handle(c *gin.Context) {
	rawToken := c.Query("token")
	if rawToken == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": apperror.ErrUnauthorized.Message})
		return
	}

	claims, err := h.auth.Authenticate(c.Request.Context(), rawToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Sessão inválida ou expirada"})
		return
	}
	if claims.Tipo != models.TipoMotorista {
		c.JSON(http.StatusForbidden, gin.H{"error": apperror.ErrDriverOnly.Message})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade уже ответил клиенту
		logger.Log.WithFields(logrus.Fields{
			"user_id": claims.UserID,
			"error":   err.Error(),
		}).Warn("websocket upgrade failed")
		return
	}

	ws.NewClient(conn, h.hub, claims.UserID).Run()
}
