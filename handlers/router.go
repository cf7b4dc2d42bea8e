package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"insurecalc-backend/metrics"
	"insurecalc-backend/middleware"
	"insurecalc-backend/service"
	"insurecalc-backend/web"
)

// NewRouter wires the page, the JSON API and the operational endpoints.
func NewRouter(calcService *service.CalculationService, recorder *metrics.Recorder) (*gin.Engine, error) {
	tmpl, err := web.Templates()
	if err != nil {
		return nil, err
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.Logging())
	r.SetHTMLTemplate(tmpl)

	pageHandler := NewPageHandler(calcService)
	calcHandler := NewCalculationHandler(calcService)

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})
	if recorder != nil {
		r.GET("/metrics", gin.WrapH(recorder.Handler()))
	}

	// Form routes
	r.GET("/", pageHandler.Index)
	r.POST("/calculate", pageHandler.Calculate)
	r.POST("/history/:id/delete", pageHandler.DeleteHistoryEntry)
	r.POST("/history/clear", pageHandler.ClearHistory)
	r.POST("/credential/clear", pageHandler.ClearCredential)

	// API routes
	api := r.Group("/api")
	{
		api.POST("/calculate", calcHandler.Calculate)

		api.GET("/history", calcHandler.GetHistory)
		api.DELETE("/history", calcHandler.ClearHistory)
		api.DELETE("/history/:id", calcHandler.DeleteHistoryEntry)

		api.GET("/credential", calcHandler.GetCredential)
		api.PUT("/credential", calcHandler.UpdateCredential)
		api.DELETE("/credential", calcHandler.DeleteCredential)
	}

	return r, nil
}
