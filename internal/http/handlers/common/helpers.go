package common

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pixter/pixter-backend/internal/http/middleware"
	"github.com/pixter/pixter-backend/internal/pkg/apperror"
)

// ErrUserNotFound is returned when user is not found in context
var ErrUserNotFound = errors.New("usuário não encontrado no contexto")

// CurrentUserID extracts user ID from Gin context
func CurrentUserID(c *gin.Context) (uuid.UUID, error) {
	raw, exists := c.Get(middleware.ContextUserIDKey)
	if !exists {
		return uuid.Nil, ErrUserNotFound
	}

	userID, ok := raw.(uuid.UUID)
	if !ok || userID == uuid.Nil {
		return uuid.Nil, ErrUserNotFound
	}

	return userID, nil
}

// OptionalUserID returns the user set by OptionalAuth, if any
func OptionalUserID(c *gin.Context) *uuid.UUID {
	id, err := CurrentUserID(c)
	if err != nil {
		return nil
	}
	return &id
}

// CurrentSessionID extracts the session (token jti) from Gin context
func CurrentSessionID(c *gin.Context) (uuid.UUID, error) {
	raw, exists := c.Get(middleware.ContextSessionIDKey)
	if !exists {
		return uuid.Nil, ErrUserNotFound
	}
	sessionID, ok := raw.(uuid.UUID)
	if !ok {
		return uuid.Nil, ErrUserNotFound
	}
	return sessionID, nil
}

// BindJSON binds the request body; a malformed body becomes a validation AppError
func BindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		RespondBadRequest(c, "Dados inválidos")
		return false
	}
	return true
}

// Fail hands the error to middleware.ErrorHandler and stops the chain
func Fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// RespondError sends a standardized error response
func RespondError(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{"error": message})
}

// RespondJSON sends a JSON response
func RespondJSON(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, data)
}

// RespondUnauthorized sends 401 Unauthorized response
func RespondUnauthorized(c *gin.Context) {
	RespondError(c, http.StatusUnauthorized, apperror.ErrUnauthorized.Message)
}

// RespondBadRequest sends 400 Bad Request response
func RespondBadRequest(c *gin.Context, message string) {
	RespondError(c, http.StatusBadRequest, message)
}

// ParseIntQuery safely reads an integer query parameter with a fallback value
func ParseIntQuery(c *gin.Context, key string, fallback int) int {
	if v := c.Query(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

// GetPagination extracts limit and offset from query parameters with defaults
func GetPagination(c *gin.Context) (limit, offset int) {
	limit = ParseIntQuery(c, "limit", 20)
	offset = ParseIntQuery(c, "offset", 0)
	if limit > 100 {
		limit = 100
	}
	if limit < 1 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return
}
