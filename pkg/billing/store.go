package billing

import (
	"context"

	"github.com/google/uuid"
)

// Store persists subscription records, one per user.
//
// Save is a compare-and-set: the record's Version field is the expected
// pre-image version. Version zero means "insert a fresh record"; any other
// value updates only if the stored version still matches, otherwise
// ErrVersionConflict is returned and the caller re-reads and re-applies its
// transition. On success implementations bump rec.Version and set
// rec.UpdatedAt in place. This is the only per-user serialization point in
// the system; cross-user writes proceed in parallel.
type Store interface {
	// Get retrieves a record by user ID. Returns ErrRecordNotFound if the
	// user has never been materialized (callers treat that as TierFree).
	Get(ctx context.Context, userID uuid.UUID) (*Record, error)

	// FindBySubscriptionRef retrieves the record referencing a provider
	// subscription. Renewal and cancellation events carry no user
	// reference, so this is their only lookup path.
	FindBySubscriptionRef(ctx context.Context, ref string) (*Record, error)

	// Save writes the record under compare-and-set as described above.
	Save(ctx context.Context, rec *Record) error
}
