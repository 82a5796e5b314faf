package routes

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/OFFIS-RIT/macrokg/pkg/common"
	"github.com/OFFIS-RIT/macrokg/pkg/logger"
)

type statusBody struct {
	Status  common.Status `json:"status"`
	Message string        `json:"message"`
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, statusBody{Status: common.StatusError, Message: msg})
}

// fail maps validation errors to 400 and everything else to 500.
func fail(c echo.Context, err error) error {
	if errors.Is(err, common.ErrValidation) {
		return badRequest(c, err.Error())
	}
	logger.Error("[Server] Request failed", "path", c.Path(), "err", err)
	return c.JSON(http.StatusInternalServerError, statusBody{Status: common.StatusError, Message: err.Error()})
}
