package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nsyszr/punchclock/pkg/api/resource"
	"github.com/nsyszr/punchclock/pkg/storage"
	"github.com/pkg/errors"
)

func (h *Handler) handleFetchDevices(c echo.Context) error {
	m, err := h.store.Devices().FetchAll(c.Request().Context())
	if err != nil {
		return errors.Wrap(err, "failed to fetch devices")
	}

	return c.JSON(http.StatusOK, resource.NewDeviceList(m))
}

func (h *Handler) handleGetDeviceByID(c echo.Context) error {
	m, err := h.store.Devices().FindByID(c.Request().Context(), c.Param("id"))
	if err == storage.ErrNotFound {
		return notFound("device %q not found", c.Param("id"))
	} else if err != nil {
		return errors.Wrap(err, "failed to find device")
	}

	return c.JSON(http.StatusOK, resource.NewDevice(m))
}

func (h *Handler) handleCreateDevice(c echo.Context) error {
	r := &resource.DeviceResource{}
	if err := c.Bind(r); err != nil {
		return badRequest("malformed request body")
	}

	m, err := resource.ValidateDevice(r)
	if err != nil {
		return badRequest("%s", err)
	}

	err = h.store.Devices().Create(c.Request().Context(), m)
	if err == storage.ErrConflict {
		return echo.NewHTTPError(http.StatusConflict, "device already exists")
	} else if err != nil {
		return errors.Wrap(err, "failed to create device")
	}

	return c.JSON(http.StatusCreated, resource.NewDevice(m))
}

func (h *Handler) handleDeleteDevice(c echo.Context) error {
	err := h.store.Devices().Delete(c.Request().Context(), c.Param("id"))
	if err == storage.ErrNotFound {
		return notFound("device %q not found", c.Param("id"))
	} else if err != nil {
		return errors.Wrap(err, "failed to delete device")
	}

	return c.NoContent(http.StatusNoContent)
}
