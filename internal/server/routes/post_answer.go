package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/OFFIS-RIT/macrokg/internal/server/middleware"
	"github.com/OFFIS-RIT/macrokg/pkg/answer"
)

type postAnswerBody struct {
	answer.Request
	// TimeoutSeconds bounds the model call.
	TimeoutSeconds int `json:"timeout" validate:"min=0,max=600"`
}

func PostAnswerHandler(c echo.Context) error {
	app := c.(*middleware.AppContext).App

	body := new(postAnswerBody)
	if err := c.Bind(body); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := c.Validate(body); err != nil {
		return badRequest(c, "timeout must be between 0 and 600 seconds")
	}

	req := body.Request
	if body.TimeoutSeconds > 0 {
		req.Timeout = time.Duration(body.TimeoutSeconds) * time.Second
	}

	ctx := c.Request().Context()
	if app.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, app.RequestTimeout+req.Timeout)
		defer cancel()
	}
	resp, err := app.Answerer.Generate(ctx, req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}
