package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nsyszr/punchclock/pkg/api/resource"
	"github.com/nsyszr/punchclock/pkg/storage"
	"github.com/pkg/errors"
)

func (h *Handler) handleFetchMappings(c echo.Context) error {
	ctx := c.Request().Context()
	deviceID := c.Param("id")

	if _, err := h.store.Devices().FindByID(ctx, deviceID); err == storage.ErrNotFound {
		return notFound("device %q not found", deviceID)
	} else if err != nil {
		return errors.Wrap(err, "failed to find device")
	}

	m, err := h.store.Employees().FetchByDevice(ctx, deviceID)
	if err != nil {
		return errors.Wrap(err, "failed to fetch mappings")
	}

	return c.JSON(http.StatusOK, resource.NewMappingList(m))
}

func (h *Handler) handleCreateMapping(c echo.Context) error {
	ctx := c.Request().Context()
	deviceID := c.Param("id")

	if _, err := h.store.Devices().FindByID(ctx, deviceID); err == storage.ErrNotFound {
		return notFound("device %q not found", deviceID)
	} else if err != nil {
		return errors.Wrap(err, "failed to find device")
	}

	r := &resource.MappingResource{}
	if err := c.Bind(r); err != nil {
		return badRequest("malformed request body")
	}

	m, err := resource.ValidateMapping(deviceID, r)
	if err != nil {
		return badRequest("%s", err)
	}

	if err := h.store.Employees().Create(ctx, m); err != nil {
		return errors.Wrap(err, "failed to create mapping")
	}

	return c.JSON(http.StatusCreated, r)
}
