package routes

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/OFFIS-RIT/macrokg/internal/server/middleware"
	"github.com/OFFIS-RIT/macrokg/pkg/retrieval"
)

type contextResponse struct {
	*retrieval.Response
	Trace *retrieval.TraceSnapshot `json:"trace,omitempty"`
}

// PostContextHandler returns the retrieved context for a question. With
// ?trace=true the documents every retrieval path considered are included.
func PostContextHandler(c echo.Context) error {
	app := c.(*middleware.AppContext).App

	req := new(retrieval.Request)
	if err := c.Bind(req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	var trace *retrieval.Trace
	if c.QueryParam("trace") == "true" {
		trace = retrieval.NewTrace()
		req.Tracer = trace
	}

	ctx := c.Request().Context()
	if app.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, app.RequestTimeout)
		defer cancel()
	}
	resp, err := app.Context.BuildContext(ctx, *req)
	if err != nil {
		return fail(c, err)
	}

	out := contextResponse{Response: resp}
	if trace != nil {
		snap := trace.Snapshot()
		out.Trace = &snap
	}
	return c.JSON(http.StatusOK, out)
}
