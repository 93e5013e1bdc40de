package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pixter/pixter-backend/internal/logger"
	"github.com/pixter/pixter-backend/internal/pkg/apperror"
)

// ErrorHandler обрабатывает ошибки централизованно.
// AppError отдаётся со своим статусом и сообщением, остальные ошибки маскируются.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Ответ уже отправлен хэндлером
		if c.Writer.Written() || len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		statusCode := http.StatusInternalServerError
		message := apperror.ErrInternal.Message

		if appErr, ok := apperror.As(err); ok {
			statusCode = appErr.HTTPStatus
			message = appErr.Message
		}

		entry := logger.Log.WithFields(logrus.Fields{
			"error":  err.Error(),
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
			"status": statusCode,
		})
		if statusCode >= http.StatusInternalServerError {
			entry.Error("Request error")
		} else {
			entry.Debug("Request rejected")
		}

		c.JSON(statusCode, gin.H{"error": message})
	}
}
