package storage

type storageError string

const (
	// ErrNotFound is returned when a lookup has no matching row.
	ErrNotFound = storageError("not found")

	// ErrSessionExists is returned by SessionStore.Acquire when another sync
	// run holds an unexpired lease on the device.
	ErrSessionExists = storageError("session exists")

	// ErrConflict is returned when a write violates a uniqueness constraint
	// that an atomic upsert could not absorb.
	ErrConflict = storageError("conflict")
)

func (e storageError) Error() string {
	return string(e)
}
