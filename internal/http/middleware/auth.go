package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pixter/pixter-backend/internal/models"
	"github.com/pixter/pixter-backend/internal/pkg/apperror"
	"github.com/pixter/pixter-backend/internal/service"
)

// Context ключи для gin.Context.
const (
	ContextUserIDKey    = "userID"
	ContextTipoKey      = "tipo"
	ContextSessionIDKey = "sessionID"
)

// Authenticator проверяет токен сессии.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*service.SessionClaims, error)
}

// AuthMiddleware требует действующий Bearer токен и активную сессию.
func AuthMiddleware(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": apperror.ErrUnauthorized.Message})
			return
		}

		claims, err := auth.Authenticate(c.Request.Context(), raw)
		if err != nil || claims.UserID == uuid.Nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Sessão inválida ou expirada"})
			return
		}

		setClaims(c, claims)
		c.Next()
	}
}

// OptionalAuth подставляет пользователя, если передан валидный токен, и пропускает запрос в любом случае.
func OptionalAuth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw, ok := bearerToken(c); ok {
			if claims, err := auth.Authenticate(c.Request.Context(), raw); err == nil && claims.UserID != uuid.Nil {
				setClaims(c, claims)
			}
		}
		c.Next()
	}
}

// RequireTipo пропускает только пользователей указанного типа. Ставится после AuthMiddleware.
func RequireTipo(tipo string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ContextTipoKey) != tipo {
			denied := apperror.ErrForbidden
			if tipo == models.TipoMotorista {
				denied = apperror.ErrDriverOnly
			}
			c.AbortWithStatusJSON(denied.HTTPStatus, gin.H{"error": denied.Message})
			return
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	auth := c.GetHeader("Authorization")
	if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	return raw, raw != ""
}

func setClaims(c *gin.Context, claims *service.SessionClaims) {
	c.Set(ContextUserIDKey, claims.UserID)
	c.Set(ContextTipoKey, claims.Tipo)
	c.Set(ContextSessionIDKey, claims.SessionID)
}
