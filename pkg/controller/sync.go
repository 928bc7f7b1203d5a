package controller

import (
	"context"
	"time"

	"github.com/nsyszr/punchclock/pkg/metrics"
	"github.com/nsyszr/punchclock/pkg/model"
	"github.com/nsyszr/punchclock/pkg/storage"
	"github.com/nsyszr/punchclock/pkg/terminal"
	"github.com/nsyszr/punchclock/pkg/terminal/proto"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// SyncDevice runs the full sync sequence for one device: lease, connect,
// read info, download users and logs with the keypad disabled, disconnect,
// reconcile, and mark the device synced.
func (ctrl *Controller) SyncDevice(ctx context.Context, device model.Device, connectTimeout time.Duration) Result {
	if connectTimeout <= 0 {
		connectTimeout = ctrl.opts.ConnectTimeout
	}

	res := Result{
		DeviceID:  device.DeviceID,
		Address:   terminal.Address(device),
		StartedAt: time.Now().UTC(),
	}
	logger := log.WithFields(log.Fields{
		"device_id": device.DeviceID,
		"address":   res.Address,
	})

	ctrl.syncDevice(ctx, device, connectTimeout, &res, logger)

	res.FinishedAt = time.Now().UTC()
	outcome := "success"
	if !res.Success {
		outcome = res.ErrorKind
		logger.WithFields(log.Fields{
			"kind":  res.ErrorKind,
			"error": res.Error,
		}).Error("Device sync failed")
	} else {
		logger.WithFields(log.Fields{
			"inserted":   res.Punches.Inserted,
			"duplicates": res.Punches.Duplicates,
			"unmapped":   res.Punches.Unmapped,
			"duration":   res.FinishedAt.Sub(res.StartedAt).String(),
		}).Info("Device sync finished")
	}
	metrics.SyncRuns.WithLabelValues(outcome).Inc()
	metrics.SyncDuration.Observe(res.FinishedAt.Sub(res.StartedAt).Seconds())

	if err := ctrl.publisher.Publish(context.WithoutCancel(ctx), device.DeviceID, TopicSyncStatus, newSyncStatusDetails(&res)); err != nil {
		logger.WithError(err).Error("Failed to publish sync status")
	}

	return res
}

func (ctrl *Controller) syncDevice(ctx context.Context, device model.Device, connectTimeout time.Duration, res *Result, logger *log.Entry) {
	lease, err := ctrl.acquireLease(ctx, device.DeviceID)
	if err != nil {
		if err == storage.ErrSessionExists {
			res.fail(KindDeviceBusy, errors.New("another sync holds the device"))
			return
		}
		res.fail(ctrl.failureKind(ctx, err), err)
		return
	}
	defer ctrl.releaseLease(ctx, lease, logger)

	sess := terminal.NewSession(device, ctrl.opts.Session, ctrl.dialer)
	if err := sess.Connect(ctx, connectTimeout); err != nil {
		res.fail(ctrl.failureKind(ctx, err), err)
		return
	}

	info, users, punches, err := ctrl.download(ctx, sess)
	if derr := sess.Disconnect(); derr != nil {
		logger.WithError(derr).Warn("Failed to disconnect terminal")
	}
	res.MalformedRecords = sess.Stats().MalformedRecords
	if err != nil {
		res.fail(ctrl.failureKind(ctx, err), err)
		return
	}
	res.Info = info

	if res.Users, err = ctrl.reconciler.ReconcileUsers(ctx, device.DeviceID, users); err != nil {
		res.fail(ctrl.failureKind(ctx, err), err)
		return
	}
	if res.Punches, err = ctrl.reconciler.ReconcileAttendance(ctx, device.DeviceID, info.ClockOffset, punches); err != nil {
		res.fail(ctrl.failureKind(ctx, err), err)
		return
	}

	storeCtx, cancel := context.WithTimeout(ctx, ctrl.opts.StoreTimeout)
	defer cancel()
	if err := ctrl.store.Devices().UpdateLastSync(storeCtx, device.DeviceID, time.Now().UTC()); err != nil {
		res.fail(ctrl.failureKind(ctx, err), errors.Wrap(err, "failed to update last sync"))
		return
	}

	res.Success = true
}

func (ctrl *Controller) download(ctx context.Context, sess *terminal.Session) (*terminal.DeviceInfo, []proto.User, []proto.Punch, error) {
	info, err := sess.FetchInfo(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	var users []proto.User
	var punches []proto.Punch
	err = sess.WithExclusiveAccess(ctx, func(ctx context.Context) error {
		var err error
		if users, err = sess.FetchUsers(ctx); err != nil {
			return err
		}
		punches, err = sess.FetchAttendanceLogs(ctx)
		return err
	})
	if err != nil {
		return nil, nil, nil, err
	}

	return info, users, punches, nil
}

// failureKind classifies an error of the sync sequence. Anything that is
// not a session error comes from the store.
func (ctrl *Controller) failureKind(ctx context.Context, err error) string {
	if kind := terminal.KindOf(err); kind != "" {
		return string(kind)
	}
	if ctx.Err() != nil {
		return KindCancelled
	}
	return KindPersistenceError
}

func (ctrl *Controller) acquireLease(ctx context.Context, deviceID string) (*model.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, ctrl.opts.StoreTimeout)
	defer cancel()

	lease := &model.Session{
		DeviceID:  deviceID,
		Owner:     ctrl.opts.Owner,
		ExpiresAt: time.Now().Add(ctrl.opts.LeaseTTL).UTC(),
	}
	if err := ctrl.store.Sessions().Acquire(ctx, lease); err != nil {
		if err == storage.ErrSessionExists {
			return nil, err
		}
		return nil, errors.Wrap(err, "failed to acquire sync lease")
	}

	return lease, nil
}

func (ctrl *Controller) releaseLease(ctx context.Context, lease *model.Session, logger *log.Entry) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ctrl.opts.StoreTimeout)
	defer cancel()

	if err := ctrl.store.Sessions().Release(ctx, lease.ID); err != nil {
		logger.WithError(err).Warn("Failed to release sync lease")
	}
}
