package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/nsyszr/punchclock/pkg/model"
	"github.com/nsyszr/punchclock/pkg/storage"
	"github.com/pkg/errors"
)

func newSessionStore(db *sqlx.DB) *sessionStore {
	return &sessionStore{
		db: db,
	}
}

type sessionStore struct {
	db *sqlx.DB
}

type sqlDataSession struct {
	ID        int32     `db:"id"`
	DeviceID  string    `db:"device_id"`
	Owner     string    `db:"owner"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
}

func (d *sqlDataSession) Model() (*model.Session, error) {
	return &model.Session{
		ID:        d.ID,
		DeviceID:  d.DeviceID,
		Owner:     d.Owner,
		ExpiresAt: d.ExpiresAt.UTC(),
		CreatedAt: d.CreatedAt,
	}, nil
}

func (s *sessionStore) FetchAll(ctx context.Context) ([]model.Session, error) {
	rows := make([]sqlDataSession, 0)

	query := "SELECT id, device_id, owner, expires_at, created_at FROM sync_sessions ORDER BY id"
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, errors.Wrap(err, "failed to fetch all sessions")
	}

	models := make([]model.Session, 0, len(rows))
	for _, d := range rows {
		m, err := d.Model()
		if err != nil {
			return nil, errors.Wrap(err, "failed to convert SQL data to session model")
		}
		models = append(models, *m)
	}

	return models, nil
}

func (s *sessionStore) FindByDeviceID(ctx context.Context, deviceID string) (*model.Session, error) {
	d := sqlDataSession{}
	query := "SELECT id, device_id, owner, expires_at, created_at FROM sync_sessions WHERE device_id=$1"
	if err := s.db.GetContext(ctx, &d, query, deviceID); err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to find session")
	}

	return d.Model()
}

// Acquire takes over an expired lease in the same statement, so two runs
// racing for one device cannot both succeed. A takeover gets the fresh id
// of the proposed row, so the previous holder's Release cannot delete it.
func (s *sessionStore) Acquire(ctx context.Context, m *model.Session) error {
	now := time.Now().Round(time.Second).UTC()

	query := `INSERT INTO sync_sessions (device_id, owner, expires_at, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (device_id) DO UPDATE
SET id = EXCLUDED.id, owner = EXCLUDED.owner, expires_at = EXCLUDED.expires_at, created_at = EXCLUDED.created_at
WHERE sync_sessions.expires_at < EXCLUDED.created_at
RETURNING id`

	var id int32
	err := s.db.QueryRowxContext(ctx, query, m.DeviceID, m.Owner, m.ExpiresAt.UTC(), now).Scan(&id)
	if err == sql.ErrNoRows {
		return storage.ErrSessionExists
	}
	if err != nil {
		return errors.Wrap(err, "failed to acquire session")
	}

	m.ID = id
	m.CreatedAt = now

	return nil
}

func (s *sessionStore) Release(ctx context.Context, id int32) error {
	query := "DELETE FROM sync_sessions WHERE id=$1"
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return errors.Wrap(err, "failed to release session")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}

	return nil
}
