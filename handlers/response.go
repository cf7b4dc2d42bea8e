package handlers

import (
	"github.com/gin-gonic/gin"

	"insurecalc-backend/service"
)

func respondOK(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

// respondServiceError maps err through service.Describe
func respondServiceError(c *gin.Context, err error) {
	code, message, status := service.Describe(err)
	_ = c.Error(err)
	respondError(c, status, code, message)
}
