package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nsyszr/punchclock/pkg/api/resource"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// JSONErrorHandler renders every error as a resource.ErrorResponse.
// Errors that are not an *echo.HTTPError are logged and reported as
// internal server errors without their details.
func JSONErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	msg := http.StatusText(code)

	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		msg = fmt.Sprint(he.Message)
	} else {
		log.WithFields(log.Fields{
			"method": c.Request().Method,
			"uri":    c.Request().RequestURI,
		}).WithError(err).Error("Request failed")
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, &resource.ErrorResponse{Success: false, Message: msg})
	}
	if err != nil {
		log.WithError(err).Error("Failed to send error response")
	}
}

func badRequest(format string, args ...interface{}) error {
	return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf(format, args...))
}

func notFound(format string, args ...interface{}) error {
	return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf(format, args...))
}
