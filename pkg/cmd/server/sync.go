package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	nats "github.com/nats-io/nats.go"
	"github.com/nsyszr/punchclock/config"
	"github.com/nsyszr/punchclock/pkg/api"
	"github.com/nsyszr/punchclock/pkg/client"
	"github.com/nsyszr/punchclock/pkg/cmd/setup"
	"github.com/nsyszr/punchclock/pkg/controller"
	"github.com/nsyszr/punchclock/pkg/storage"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type syncServer struct {
	c *config.Config

	quitCh chan bool
	doneCh chan bool

	nc         *nats.Conn
	store      storage.Interface
	closeStore func()
	publisher  client.Publisher
}

func newSyncServer(c *config.Config) (*syncServer, error) {
	s := &syncServer{
		c:      c,
		quitCh: make(chan bool),
		doneCh: make(chan bool),
	}

	store, closeStore, err := setup.Store(c)
	if err != nil {
		return nil, err
	}
	s.store = store
	s.closeStore = closeStore

	nc, err := setup.NATS(c)
	if err != nil {
		closeStore()
		return nil, err
	}
	s.nc = nc
	s.publisher = setup.Publisher(nc)

	return s, nil
}

func (s *syncServer) Serve() {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(logger())

	// Request contexts derive from baseCtx so that a stuck shutdown can
	// cancel the syncs still in flight.
	baseCtx, cancelRequests := context.WithCancel(context.Background())
	defer cancelRequests()
	e.Server.BaseContext = func(net.Listener) context.Context { return baseCtx }

	ctrl := controller.New(s.store, s.publisher, nil, setup.ControllerOptions(s.c))

	// Register API endpoints
	h := api.NewHandler(s.nc, s.store, ctrl)
	h.RegisterRoutes(e)

	go func() {
		log.WithFields(log.Fields{
			"host": s.c.BindHost,
			"port": s.c.BindPort,
		}).Info("Starting server")

		if err := e.Start(fmt.Sprintf("%s:%d", s.c.BindHost, s.c.BindPort)); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Server stopped unexpectedly")
		}
	}()

	// Wait until receiving the quit signal
	<-s.quitCh
	log.Info("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("Cancelling running syncs")
		cancelRequests()
		if err := e.Close(); err != nil {
			log.WithError(err).Error("Failed to close the server")
		}
	}

	s.doneCh <- true
}

// logger returns a middleware that logs HTTP requests.
func logger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			res := c.Response()
			start := time.Now()

			// The error is rendered here so that the logged status is the
			// one sent to the client.
			handlerErr := next(c)
			if handlerErr != nil {
				c.Error(handlerErr)
			}
			stop := time.Now()

			id := req.Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = res.Header().Get(echo.HeaderXRequestID)
			}
			reqSizeStr := req.Header.Get(echo.HeaderContentLength)
			if reqSizeStr == "" {
				reqSizeStr = "0"
			}
			reqSize, err := strconv.ParseInt(reqSizeStr, 10, 0)
			if err != nil {
				reqSize = -1
			}
			errMsg := ""
			if handlerErr != nil {
				errMsg = handlerErr.Error()
			}

			log.WithFields(log.Fields{
				"id":            id,
				"remote_ip":     c.RealIP(),
				"host":          req.Host,
				"method":        req.Method,
				"uri":           req.RequestURI,
				"protocol":      req.Proto,
				"user_agent":    req.UserAgent(),
				"status":        res.Status,
				"status_text":   http.StatusText(res.Status),
				"referer":       req.Referer(),
				"error":         errMsg,
				"bytes_in":      reqSize,
				"bytes_out":     res.Size,
				"latency":       stop.Sub(start).Nanoseconds(),
				"latency_human": stop.Sub(start).String(),
			}).Infof("%s %s %s %d %s", req.Method, req.RequestURI, req.Proto,
				res.Status, strconv.FormatInt(res.Size, 10))

			return nil
		}
	}
}

func (s *syncServer) Shutdown() {
	// Send the quit signal to the Serve() routine
	s.quitCh <- true

	// Wait up to 15 seconds
	select {
	case <-s.doneCh:
		log.Info("Shutdown server successful")
	case <-time.After(15 * time.Second):
		log.Error("Shutdown server failed")
	}

	if s.nc != nil {
		if err := s.nc.Drain(); err != nil {
			log.WithError(err).Error("Failed to drain NATS connection")
		}
	}
	s.closeStore()
}

// RunServeSync starts the sync API and blocks until SIGINT or SIGTERM.
func RunServeSync(c *config.Config) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		setup.Logging(c)

		s, err := newSyncServer(c)
		if err != nil {
			log.Error("failed to create new server instance: ", err)
			os.Exit(1)
		}

		go s.Serve()

		// Wait for interrupt signal to gracefully shutdown the server
		quitCh := make(chan os.Signal, 1)
		signal.Notify(quitCh, os.Interrupt, syscall.SIGTERM)
		<-quitCh

		s.Shutdown()
	}
}
