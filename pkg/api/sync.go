package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nsyszr/punchclock/pkg/api/resource"
	"github.com/nsyszr/punchclock/pkg/controller"
	"github.com/nsyszr/punchclock/pkg/storage"
	"github.com/pkg/errors"
)

func (h *Handler) handleSync(c echo.Context) error {
	r := &resource.SyncRequest{}
	if err := c.Bind(r); err != nil {
		return badRequest("malformed request body")
	}

	v, err := resource.ValidateSyncRequest(r)
	if err != nil {
		return badRequest("%s", err)
	}

	ctx := c.Request().Context()
	m, err := h.store.Devices().FindByID(ctx, v.DeviceID)
	if err == storage.ErrNotFound {
		return badRequest("unknown device_id %q", v.DeviceID)
	} else if err != nil {
		return errors.Wrap(err, "failed to find device")
	}

	// The request names the address to reach the terminal at.
	device := *m
	device.Host = v.IPAddress
	device.Port = v.Port

	res := h.ctrl.SyncDevice(ctx, device, v.Timeout)
	if !res.Success {
		return c.JSON(http.StatusInternalServerError, resource.NewSyncErrorResponse(&res))
	}

	return c.JSON(http.StatusOK, resource.NewSyncResponse(&res))
}

func (h *Handler) handleSyncAll(c echo.Context) error {
	results, err := h.ctrl.SyncAll(c.Request().Context())
	if err != nil && err != controller.ErrRunCancelled {
		return err
	}

	success := err == nil
	for _, r := range results {
		success = success && r.Success
	}

	return c.JSON(http.StatusOK, &resource.SyncAllResponse{
		Success: success,
		Results: results,
	})
}
