package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nsyszr/punchclock/pkg/api/resource"
	"github.com/pkg/errors"
)

func (h *Handler) handleFetchSessions(c echo.Context) error {
	m, err := h.store.Sessions().FetchAll(c.Request().Context())
	if err != nil {
		return errors.Wrap(err, "failed to fetch sessions")
	}

	return c.JSON(http.StatusOK, resource.NewSessionList(m))
}
