package registry

import (
	"context"

	"github.com/dmitrijs2005/subkeeper/internal/logging"
)

// Hook runs after a committed change to an owner's subscriptions. It never
// fails the caller: implementations log their own errors.
type Hook interface {
	OwnerChanged(ctx context.Context, ownerID string)
}

// SyncHook resyncs inline, detached from the caller's cancellation.
type SyncHook struct {
	sync *Synchronizer
	log  logging.Logger
}

func NewSyncHook(sync *Synchronizer, log logging.Logger) *SyncHook {
	return &SyncHook{sync: sync, log: log.With("module", "registry")}
}

func (h *SyncHook) OwnerChanged(ctx context.Context, ownerID string) {
	if err := h.sync.Resync(context.WithoutCancel(ctx), ownerID); err != nil {
		h.log.Warn(ctx, "registry resync failed", "user_id", ownerID, "error", err)
	}
}
