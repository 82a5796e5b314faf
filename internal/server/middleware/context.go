package middleware

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/OFFIS-RIT/macrokg/internal/queue"
	"github.com/OFFIS-RIT/macrokg/pkg/answer"
	"github.com/OFFIS-RIT/macrokg/pkg/monitor"
)

type Answerer interface {
	Generate(ctx context.Context, req answer.Request) (*answer.Response, error)
}

// App holds the clients the handlers use. They are built once at startup.
type App struct {
	Context  answer.ContextBuilder
	Answerer Answerer
	Calls    monitor.CallLogReader
	// Enqueue is nil when the server has no queue connection.
	Enqueue func(ctx context.Context, msg queue.JobMsg) error
	// RequestTimeout caps every context and answer request.
	RequestTimeout time.Duration
	Now            func() time.Time
}

type AppContext struct {
	echo.Context
	App *App
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	if app.Now == nil {
		app.Now = time.Now
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			return next(&AppContext{Context: c, App: app})
		}
	}
}
