package cli

import "github.com/nsyszr/punchclock/config"

type Handler struct {
	Migration *MigrateHandler
	Sync      *SyncHandler
}

func NewHandler(c *config.Config) *Handler {
	return &Handler{
		Migration: newMigrateHandler(c),
		Sync:      newSyncHandler(c),
	}
}
