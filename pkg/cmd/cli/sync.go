package cli

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/nsyszr/punchclock/config"
	"github.com/nsyszr/punchclock/pkg/cmd/setup"
	"github.com/nsyszr/punchclock/pkg/controller"
	"github.com/nsyszr/punchclock/pkg/model"
	"github.com/nsyszr/punchclock/pkg/storage"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type SyncHandler struct {
	c *config.Config
}

func newSyncHandler(c *config.Config) *SyncHandler {
	return &SyncHandler{c: c}
}

// SyncDevices runs one sync of the given devices, or of every registered
// device if none is named, and prints the results as JSON. The process
// exits with 1 if any device failed.
func (h *SyncHandler) SyncDevices(cmd *cobra.Command, args []string) {
	setup.Logging(h.c)

	store, closeStore, err := setup.Store(h.c)
	if err != nil {
		log.Error(err)
		os.Exit(1)
	}
	defer closeStore()

	nc, err := setup.NATS(h.c)
	if err != nil {
		log.Error(err)
		os.Exit(1)
	}
	publisher := setup.Publisher(nc)
	defer publisher.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctrl := controller.New(store, publisher, nil, setup.ControllerOptions(h.c))
	results, err := runSync(ctx, ctrl, store, args)
	if err != nil && err != controller.ErrRunCancelled {
		log.Error(err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		log.WithError(err).Error("Failed to print results")
	}

	for _, r := range results {
		if !r.Success {
			// Deferred calls do not run on os.Exit.
			stop()
			publisher.Close()
			closeStore()
			os.Exit(1)
		}
	}
}

func runSync(ctx context.Context, ctrl *controller.Controller, store storage.Interface, ids []string) ([]controller.Result, error) {
	if len(ids) == 0 {
		return ctrl.SyncAll(ctx)
	}

	devices := make([]model.Device, 0, len(ids))
	for _, id := range ids {
		m, err := store.Devices().FindByID(ctx, id)
		if err == storage.ErrNotFound {
			return nil, errors.Errorf("unknown device %q", id)
		} else if err != nil {
			return nil, errors.Wrap(err, "failed to find device")
		}
		devices = append(devices, *m)
	}

	return ctrl.SyncDevices(ctx, devices)
}
