package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pixter/pixter-backend/internal/metrics"
)

// MetricsMiddleware записывает длительность запросов по шаблону маршрута.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RequestDuration.
			WithLabelValues(path, c.Request.Method, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
