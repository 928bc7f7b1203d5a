// Package controller runs sync jobs against attendance terminals and
// feeds their records into the ledger.
package controller

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/nsyszr/punchclock/pkg/client"
	"github.com/nsyszr/punchclock/pkg/model"
	"github.com/nsyszr/punchclock/pkg/reconcile"
	"github.com/nsyszr/punchclock/pkg/storage"
	"github.com/nsyszr/punchclock/pkg/terminal"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultMaxWorkers     = 8
	DefaultConnectTimeout = 5 * time.Second
	DefaultLeaseTTL       = 10 * time.Minute
	DefaultStoreTimeout   = 5 * time.Second

	// TopicSyncStatus is the event topic of finished device syncs.
	TopicSyncStatus = "syncstatus"
)

// ErrRunCancelled is returned by SyncDevices when the run context ended
// before every device finished. The results are returned nevertheless.
var ErrRunCancelled = errors.New("sync run cancelled")

type Options struct {
	MaxWorkers     int
	ConnectTimeout time.Duration
	// LeaseTTL bounds how long a crashed run blocks a device.
	LeaseTTL     time.Duration
	StoreTimeout time.Duration
	// Owner identifies this process in sync leases.
	Owner string

	Session   terminal.Options
	Reconcile reconcile.Options
}

func (o Options) withDefaults() Options {
	if o.MaxWorkers <= 0 {
		o.MaxWorkers = DefaultMaxWorkers
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.LeaseTTL <= 0 {
		o.LeaseTTL = DefaultLeaseTTL
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = DefaultStoreTimeout
	}
	if o.Reconcile.StoreTimeout <= 0 {
		o.Reconcile.StoreTimeout = o.StoreTimeout
	}
	if o.Owner == "" {
		host, _ := os.Hostname()
		o.Owner = fmt.Sprintf("%s/%d", host, os.Getpid())
	}
	return o
}

type Controller struct {
	store      storage.Interface
	publisher  client.Publisher
	dialer     terminal.Dialer
	reconciler *reconcile.Reconciler
	opts       Options
}

// New creates a controller. A nil publisher disables sync events, a nil
// dialer dials plain TCP.
func New(store storage.Interface, publisher client.Publisher, dialer terminal.Dialer, opts Options) *Controller {
	if publisher == nil {
		publisher = client.Nop{}
	}
	opts = opts.withDefaults()

	return &Controller{
		store:      store,
		publisher:  publisher,
		dialer:     dialer,
		reconciler: reconcile.New(store, opts.Reconcile),
		opts:       opts,
	}
}

// SyncAll syncs every registered device.
func (ctrl *Controller) SyncAll(ctx context.Context) ([]Result, error) {
	devices, err := ctrl.store.Devices().FetchAll(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch devices")
	}

	return ctrl.SyncDevices(ctx, devices)
}

// SyncDevices syncs the devices concurrently with at most MaxWorkers
// sessions open at a time. It returns one result per device in input
// order. A failing device never stops its siblings.
func (ctrl *Controller) SyncDevices(ctx context.Context, devices []model.Device) ([]Result, error) {
	results := make([]Result, len(devices))
	if len(devices) == 0 {
		return results, nil
	}

	log.WithFields(log.Fields{
		"devices": len(devices),
		"workers": min(len(devices), ctrl.opts.MaxWorkers),
	}).Info("Starting sync run")

	var g errgroup.Group
	g.SetLimit(min(len(devices), ctrl.opts.MaxWorkers))

	for i := range devices {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = notStartedResult(devices[i])
				return nil
			}
			results[i] = ctrl.SyncDevice(ctx, devices[i], ctrl.opts.ConnectTimeout)
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		log.Warn("Sync run cancelled")
		return results, ErrRunCancelled
	}

	return results, nil
}

func notStartedResult(device model.Device) Result {
	now := time.Now().UTC()
	return Result{
		DeviceID:   device.DeviceID,
		Address:    terminal.Address(device),
		ErrorKind:  KindCancelled,
		Error:      "sync run cancelled before the device was started",
		StartedAt:  now,
		FinishedAt: now,
	}
}
