package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/nsyszr/punchclock/pkg/api/resource"
	"github.com/nsyszr/punchclock/pkg/model"
	"github.com/nsyszr/punchclock/pkg/storage"
	"github.com/pkg/errors"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

func (h *Handler) handleFetchEvents(c echo.Context) error {
	filter := model.EventFilter{
		DeviceID:   c.QueryParam("device_id"),
		EmployeeID: c.QueryParam("employee_id"),
		Limit:      defaultEventLimit,
	}

	var err error
	if s := c.QueryParam("from"); s != "" {
		if filter.From, err = time.Parse(time.RFC3339, s); err != nil {
			return badRequest("from must be an RFC 3339 timestamp")
		}
	}
	if s := c.QueryParam("to"); s != "" {
		if filter.To, err = time.Parse(time.RFC3339, s); err != nil {
			return badRequest("to must be an RFC 3339 timestamp")
		}
	}
	if s := c.QueryParam("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 1 || limit > maxEventLimit {
			return badRequest("limit must be between 1 and %d", maxEventLimit)
		}
		filter.Limit = limit
	}

	m, err := h.store.Events().Fetch(c.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "failed to fetch events")
	}

	return c.JSON(http.StatusOK, resource.NewEventList(m))
}

// handleUpdateRemark annotates a ledger row. The remark is the only field
// that may change after ingestion.
func (h *Handler) handleUpdateRemark(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return badRequest("invalid event id")
	}

	r := &resource.RemarkResource{}
	if err := c.Bind(r); err != nil {
		return badRequest("malformed request body")
	}
	if err := resource.ValidateRemark(r); err != nil {
		return badRequest("%s", err)
	}

	ctx := c.Request().Context()
	err = h.store.Events().UpdateRemark(ctx, id, r.Remark)
	if err == storage.ErrNotFound {
		return notFound("event %d not found", id)
	} else if err != nil {
		return errors.Wrap(err, "failed to update remark")
	}

	m, err := h.store.Events().FindByID(ctx, id)
	if err != nil {
		return errors.Wrap(err, "failed to find event")
	}

	return c.JSON(http.StatusOK, resource.NewEvent(m))
}
