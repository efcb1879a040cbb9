package cache

import (
	"context"
	"time"
)

// DeliveryCache mirrors per-recipient bulk outcomes for external lookups.
type DeliveryCache interface {
	StoreSent(ctx context.Context, taskID, chatID string, at time.Time) error
	StoreFailed(ctx context.Context, taskID, chatID, reason string, at time.Time) error
}
