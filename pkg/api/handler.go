package api

import (
	"github.com/labstack/echo/v4"
	"github.com/nats-io/nats.go"
	"github.com/nsyszr/punchclock/pkg/client/natsio"
	"github.com/nsyszr/punchclock/pkg/controller"
	"github.com/nsyszr/punchclock/pkg/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// Handler contains all properties to serve the API
type Handler struct {
	nc          *nats.Conn
	store       storage.Interface
	ctrl        *controller.Controller
	baseSubject string
}

// NewHandler create a new API handler. nc may be nil, the realtime event
// relay is unavailable then.
func NewHandler(nc *nats.Conn, store storage.Interface, ctrl *controller.Controller) *Handler {
	return &Handler{
		nc:          nc,
		store:       store,
		ctrl:        ctrl,
		baseSubject: natsio.DefaultBaseSubject,
	}
}

// RegisterRoutes attaches the handlers to the echo web server
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	log.Debug("Register API routes")
	e.HTTPErrorHandler = JSONErrorHandler

	api := e.Group("/api/v1")
	api.POST("/sync", h.handleSync)
	api.POST("/sync/all", h.handleSyncAll)

	api.GET("/devices", h.handleFetchDevices)
	api.POST("/devices", h.handleCreateDevice)
	api.GET("/devices/:id", h.handleGetDeviceByID)
	api.DELETE("/devices/:id", h.handleDeleteDevice)
	api.GET("/devices/:id/mappings", h.handleFetchMappings)
	api.POST("/devices/:id/mappings", h.handleCreateMapping)

	api.GET("/events", h.handleFetchEvents)
	api.PATCH("/events/:id/remark", h.handleUpdateRemark)

	api.GET("/sessions", h.handleFetchSessions)

	api.Any("/realtime-events", h.realtimeEventsHandler())

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}
