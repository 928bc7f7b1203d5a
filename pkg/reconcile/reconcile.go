// Package reconcile turns raw device records into attendance ledger rows.
package reconcile

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/nsyszr/punchclock/pkg/metrics"
	"github.com/nsyszr/punchclock/pkg/model"
	"github.com/nsyszr/punchclock/pkg/storage"
	"github.com/nsyszr/punchclock/pkg/terminal/proto"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultOffsetQuantum = 15 * time.Minute
	DefaultStoreTimeout  = 5 * time.Second
)

type Options struct {
	// OffsetQuantum is the step the device clock offset is rounded to
	// before it is applied. Small drift between two syncs must not move a
	// punch to another second, otherwise its dedup key changes.
	OffsetQuantum time.Duration
	// StoreTimeout bounds every single storage call.
	StoreTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.OffsetQuantum <= 0 {
		o.OffsetQuantum = DefaultOffsetQuantum
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = DefaultStoreTimeout
	}
	return o
}

// UserResult summarizes the user table of one device.
type UserResult struct {
	Fetched  int      `json:"fetched"`
	Mapped   int      `json:"mapped"`
	Unmapped []string `json:"unmapped"`
}

// AttendanceResult summarizes one batch of punches. For a completed batch
// Fetched equals Inserted + Duplicates + Unmapped + Conflicts.
type AttendanceResult struct {
	Fetched    int `json:"fetched"`
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
	Unmapped   int `json:"unmapped"`
	Conflicts  int `json:"conflicts"`
}

type Reconciler struct {
	store storage.Interface
	opts  Options
}

func New(store storage.Interface, opts Options) *Reconciler {
	return &Reconciler{
		store: store,
		opts:  opts.withDefaults(),
	}
}

// ReconcileUsers checks every device user against the employee mapping
// table. Unmapped users are reported, nothing is written.
func (r *Reconciler) ReconcileUsers(ctx context.Context, deviceID string, users []proto.User) (UserResult, error) {
	res := UserResult{Fetched: len(users), Unmapped: make([]string, 0)}
	resolve := r.resolver(deviceID)

	for _, u := range users {
		userID := DeviceUserID(u.UID, u.UserID)
		_, ok, err := resolve(ctx, userID)
		if err != nil {
			return res, err
		}
		if ok {
			res.Mapped++
			continue
		}

		res.Unmapped = append(res.Unmapped, userID)
		log.WithFields(log.Fields{
			"device_id":      deviceID,
			"device_user_id": userID,
			"name":           u.Name,
		}).Warn("Unmapped device user")
	}

	return res, nil
}

// ReconcileAttendance normalizes the punches to UTC and writes them to the
// ledger. Punches already present are counted as duplicates. A storage
// failure stops the batch and returns the counts reached so far.
func (r *Reconciler) ReconcileAttendance(ctx context.Context, deviceID string, offset time.Duration, punches []proto.Punch) (AttendanceResult, error) {
	res := AttendanceResult{Fetched: len(punches)}
	defer func() {
		metrics.Punches.WithLabelValues("inserted").Add(float64(res.Inserted))
		metrics.Punches.WithLabelValues("duplicate").Add(float64(res.Duplicates))
		metrics.Punches.WithLabelValues("unmapped").Add(float64(res.Unmapped))
		metrics.Punches.WithLabelValues("conflict").Add(float64(res.Conflicts))
	}()

	resolve := r.resolver(deviceID)
	quantized := QuantizeOffset(offset, r.opts.OffsetQuantum)
	unmapped := make(map[string]bool)

	for _, p := range punches {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		userID := DeviceUserID(p.UID, p.UserID)
		employeeID, ok, err := resolve(ctx, userID)
		if err != nil {
			return res, err
		}
		if !ok {
			res.Unmapped++
			if !unmapped[userID] {
				unmapped[userID] = true
				log.WithFields(log.Fields{
					"device_id":      deviceID,
					"device_user_id": userID,
				}).Warn("Skipping punches of unmapped device user")
			}
			continue
		}

		punchedAt := Normalize(p.Timestamp, quantized)
		m := &model.AttendanceEvent{
			DedupKey:     DedupKey(employeeID, deviceID, punchedAt),
			EmployeeID:   employeeID,
			DeviceID:     deviceID,
			DeviceUserID: userID,
			PunchedAt:    punchedAt,
			VerifyType:   p.VerifyMethod.String(),
			Status:       p.Status.String(),
		}

		inserted, err := r.upsert(ctx, m)
		switch {
		case err == storage.ErrConflict:
			res.Conflicts++
			log.WithFields(log.Fields{
				"device_id": deviceID,
				"dedup_key": m.DedupKey,
			}).Warn("Ledger reported a conflicting attendance event")
		case err != nil:
			return res, errors.Wrapf(err, "failed to store punch of device user %s", userID)
		case inserted:
			res.Inserted++
		default:
			res.Duplicates++
		}
	}

	log.WithFields(log.Fields{
		"device_id":  deviceID,
		"fetched":    res.Fetched,
		"inserted":   res.Inserted,
		"duplicates": res.Duplicates,
		"unmapped":   res.Unmapped,
		"conflicts":  res.Conflicts,
	}).Info("Reconciled attendance logs")

	return res, nil
}

func (r *Reconciler) upsert(ctx context.Context, m *model.AttendanceEvent) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.StoreTimeout)
	defer cancel()
	return r.store.Events().Upsert(ctx, m)
}

type resolveFunc func(ctx context.Context, deviceUserID string) (employeeID string, ok bool, err error)

// resolver caches mapping lookups for the lifetime of one batch.
func (r *Reconciler) resolver(deviceID string) resolveFunc {
	type entry struct {
		employeeID string
		ok         bool
	}
	cache := make(map[string]entry)

	return func(ctx context.Context, deviceUserID string) (string, bool, error) {
		if e, hit := cache[deviceUserID]; hit {
			return e.employeeID, e.ok, nil
		}

		ctx, cancel := context.WithTimeout(ctx, r.opts.StoreTimeout)
		defer cancel()

		employeeID, err := r.store.Employees().Resolve(ctx, deviceID, deviceUserID)
		switch {
		case err == storage.ErrNotFound:
			cache[deviceUserID] = entry{}
			return "", false, nil
		case err != nil:
			return "", false, errors.Wrapf(err, "failed to resolve device user %s", deviceUserID)
		}

		cache[deviceUserID] = entry{employeeID: employeeID, ok: true}
		return employeeID, true, nil
	}
}

// DeviceUserID returns the identifier used to map a device user. Older
// firmware leaves the user id field empty; the numeric slot is used then.
func DeviceUserID(uid uint16, userID string) string {
	if userID != "" {
		return userID
	}
	return strconv.Itoa(int(uid))
}

// QuantizeOffset rounds offset to the nearest multiple of quantum.
func QuantizeOffset(offset, quantum time.Duration) time.Duration {
	if quantum <= 0 {
		return offset
	}
	return offset.Round(quantum)
}

// Normalize converts a naive device wall-clock reading to UTC using an
// already quantized clock offset. The result has second precision.
func Normalize(naive time.Time, offset time.Duration) time.Time {
	return naive.Add(-offset).UTC().Truncate(time.Second)
}

// DedupKey is the ledger identity of a punch: the same employee on the same
// device at the same second is one event.
func DedupKey(employeeID, deviceID string, t time.Time) string {
	h := sha256.New()
	h.Write([]byte(employeeID))
	h.Write([]byte{0})
	h.Write([]byte(deviceID))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(t.Unix(), 10)))
	return hex.EncodeToString(h.Sum(nil))
}
