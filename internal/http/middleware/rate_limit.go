package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pixter/pixter-backend/internal/logger"
	"github.com/pixter/pixter-backend/internal/ratelimit"
)

// RateLimitMiddleware ограничивает количество запросов с одного IP.
// Ключи префиксуются scope, чтобы группы маршрутов не делили общий счётчик.
func RateLimitMiddleware(l *ratelimit.KeyLimiter, scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := l.Hit(c.Request.Context(), scope+":"+c.ClientIP())
		if err != nil {
			// Недоступное хранилище лимитов не должно блокировать API
			logger.Log.WithFields(logrus.Fields{
				"scope": scope,
				"error": err.Error(),
			}).Warn("rate limiter unavailable")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(res.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(res.Reset, 10))

		if res.Reached {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Muitas requisições. Tente novamente em instantes.",
			})
			return
		}

		c.Next()
	}
}
