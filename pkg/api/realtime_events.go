package api

import (
	"encoding/json"
	"net/http"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/labstack/echo/v4"
	"github.com/nats-io/nats.go"
	"github.com/nsyszr/punchclock/pkg/api/resource"
	"github.com/nsyszr/punchclock/pkg/client/natsio"
	log "github.com/sirupsen/logrus"
)

// realtimeEventsHandler relays sync events published on NATS to a
// websocket client until the client goes away.
func (h *Handler) realtimeEventsHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.nc == nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "realtime events are not available")
		}

		conn, _, _, err := ws.UpgradeHTTP(c.Request(), c.Response())
		if err != nil {
			log.Error("api: failed to upgrade to websocket: ", err)
			return nil
		}
		defer conn.Close()

		msgs := make(chan *nats.Msg, 64)
		sub, err := h.nc.ChanSubscribe(h.baseSubject+".*.events.*", msgs)
		if err != nil {
			log.Error("api: failed to subscribe to realtime events: ", err)
			return nil
		}
		defer sub.Unsubscribe()

		// The client never sends anything useful. Reading only detects
		// that it closed the connection.
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := wsutil.ReadClientData(conn); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-closed:
				return nil
			case msg := <-msgs:
				deviceID, topic, ok := natsio.ParseSubject(h.baseSubject, msg.Subject)
				if !ok {
					continue
				}

				var data interface{}
				if err := json.Unmarshal(msg.Data, &data); err != nil {
					log.Warn("api: dropped malformed realtime event: ", err)
					continue
				}

				out, _ := json.Marshal(resource.NewRealtimeEvent(deviceID, topic, data))
				if err := wsutil.WriteServerMessage(conn, ws.OpText, out); err != nil {
					log.Error("api: failed to send realtime event: ", err)
					return nil
				}
			}
		}
	}
}
