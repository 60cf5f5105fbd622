package billing

import (
	"time"

	"github.com/google/uuid"
)

// Tier is the entitlement level granted to a user.
type Tier string

const (
	TierFree      Tier = "free"
	TierRecurring Tier = "recurring"
	TierLifetime  Tier = "lifetime"
)

// Record is the authoritative subscription state for one user. It is owned
// exclusively by the event processor; everyone else only reads it. A record
// is created implicitly at TierFree and is never deleted, only transitioned.
type Record struct {
	UserID                  uuid.UUID
	Tier                    Tier
	PeriodEnd               *time.Time // set only while Tier is TierRecurring
	ProviderCustomerRef     string     // provider's customer ID, stable once set
	ProviderSubscriptionRef string     // active recurring agreement; empty for free and lifetime
	Version                 int64      // CAS marker, bumped on every committed write
	UpdatedAt               time.Time
}

// NewRecord returns the implicit initial record for a user.
func NewRecord(userID uuid.UUID) *Record {
	return &Record{
		UserID: userID,
		Tier:   TierFree,
	}
}

// EntitledAt reports whether the record grants premium access at the given
// time: lifetime always, recurring only while the paid period lasts.
func (r *Record) EntitledAt(now time.Time) bool {
	switch r.Tier {
	case TierLifetime:
		return true
	case TierRecurring:
		return r.PeriodEnd != nil && r.PeriodEnd.After(now)
	default:
		return false
	}
}

// IsLifetime reports whether the record holds a lifetime grant.
func (r *Record) IsLifetime() bool {
	return r.Tier == TierLifetime
}
