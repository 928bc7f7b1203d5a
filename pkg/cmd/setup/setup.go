// Package setup turns the configuration into the runtime dependencies
// shared by the server and the one-shot commands.
package setup

import (
	"os"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	nats "github.com/nats-io/nats.go"
	"github.com/nsyszr/punchclock/config"
	"github.com/nsyszr/punchclock/pkg/client"
	"github.com/nsyszr/punchclock/pkg/client/natsio"
	"github.com/nsyszr/punchclock/pkg/controller"
	"github.com/nsyszr/punchclock/pkg/reconcile"
	"github.com/nsyszr/punchclock/pkg/storage"
	"github.com/nsyszr/punchclock/pkg/storage/memory"
	"github.com/nsyszr/punchclock/pkg/storage/postgres"
	"github.com/nsyszr/punchclock/pkg/terminal"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Logging configures the global logrus logger.
func Logging(c *config.Config) {
	if strings.EqualFold(c.LogFormat, "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp: true,
		})
	}
	log.SetOutput(os.Stdout)

	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

// Store opens the PostgreSQL store, or a memory store if no database URL
// is configured. The returned close func is never nil.
func Store(c *config.Config) (storage.Interface, func(), error) {
	if c.DatabaseURL == "" {
		log.Warn("No database configured, attendance events are kept in memory only")
		return memory.NewStore(), func() {}, nil
	}

	db, err := sqlx.Open("postgres", c.DatabaseURL)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to open database")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, errors.Wrap(err, "failed to connect to database")
	}

	return postgres.NewStore(db), func() { db.Close() }, nil
}

// NATS connects to the configured NATS server. It returns a nil connection
// if no server is configured.
func NATS(c *config.Config) (*nats.Conn, error) {
	if c.NATSServerURL == "" {
		return nil, nil
	}

	nc, err := nats.Connect(c.NATSServerURL,
		nats.Name("punchclock"),
		nats.DrainTimeout(10*time.Second),
		nats.MaxReconnects(-1),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.WithError(err).Error("NATS error")
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Warn("NATS connection lost")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.WithField("url", nc.ConnectedUrl()).Info("NATS connection restored")
		}))
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to NATS")
	}

	return nc, nil
}

// Publisher wraps nc into a sync event publisher. A nil connection yields
// a publisher that drops every event.
func Publisher(nc *nats.Conn) client.Publisher {
	if nc == nil {
		return client.Nop{}
	}
	return natsio.NewWithConn(natsio.NewConfig(nc.ConnectedUrl()), nc)
}

// ControllerOptions maps the sync settings to controller options. Zero
// values fall back to the controller defaults.
func ControllerOptions(c *config.Config) controller.Options {
	return controller.Options{
		MaxWorkers:     c.SyncMaxWorkers,
		ConnectTimeout: c.DeviceConnectTimeout,
		LeaseTTL:       c.SyncLeaseTTL,
		StoreTimeout:   c.StoreTimeout,
		Session: terminal.Options{
			FetchTimeout: c.DeviceFetchTimeout,
			BulkTimeout:  c.DeviceBulkTimeout,
			MaxRetries:   c.DeviceMaxRetries,
		},
		Reconcile: reconcile.Options{
			OffsetQuantum: c.ClockOffsetQuantum,
			StoreTimeout:  c.StoreTimeout,
		},
	}
}
