package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/OFFIS-RIT/macrokg/internal/queue"
	"github.com/OFFIS-RIT/macrokg/internal/server/middleware"
	"github.com/OFFIS-RIT/macrokg/pkg/common"
)

// PostJobHandler puts a batch job on the queue for the worker.
func PostJobHandler(c echo.Context) error {
	app := c.(*middleware.AppContext).App
	if app.Enqueue == nil {
		return c.JSON(http.StatusServiceUnavailable, statusBody{Status: common.StatusError, Message: "job queue is not configured"})
	}

	msg := new(queue.JobMsg)
	if err := c.Bind(msg); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := c.Validate(msg); err != nil {
		return badRequest(c, "job is required and window_days must be between 0 and 3650")
	}
	msg.RequestedAt = app.Now().UTC()
	if err := app.Enqueue(c.Request().Context(), *msg); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusAccepted, statusBody{Status: common.StatusSuccess, Message: msg.Job + " enqueued"})
}
