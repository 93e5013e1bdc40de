package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// UUIDValidator проверяет, что параметр с указанным именем является валидным UUID.
// Использование: router.DELETE("/sessions/:id", UUIDValidator("id"), handler.DeleteSession)
func UUIDValidator(paramName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		idStr := c.Param(paramName)
		if idStr == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": "Parâmetro " + paramName + " é obrigatório",
			})
			return
		}

		if _, err := uuid.Parse(idStr); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": "Parâmetro " + paramName + " deve ser um UUID válido",
			})
			return
		}

		c.Next()
	}
}
