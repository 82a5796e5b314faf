package server

import (
	"github.com/labstack/echo/v4"

	"github.com/OFFIS-RIT/macrokg/internal/server/routes"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api")

	apiRoutes.POST("/context", routes.PostContextHandler)
	apiRoutes.POST("/answer", routes.PostAnswerHandler)
	apiRoutes.GET("/metrics", routes.GetMetricsHandler)
	apiRoutes.POST("/jobs", routes.PostJobHandler)
}
