package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/draftcoach/billing/pkg/pg"
)

// PGStore is the Postgres-backed Store. Compare-and-set is implemented with
// a guarded INSERT for fresh records and a version-checked UPDATE for
// existing ones; no explicit locking or transactions are needed because a
// record is a single row.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const pgRecordColumns = `user_id, tier, period_end, provider_customer_ref, provider_subscription_ref, version, updated_at`

func (s *PGStore) Get(ctx context.Context, userID uuid.UUID) (*Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgRecordColumns+` FROM subscription_records WHERE user_id = $1`,
		userID)
	return scanRecord(row)
}

func (s *PGStore) FindBySubscriptionRef(ctx context.Context, ref string) (*Record, error) {
	if ref == "" {
		return nil, ErrRecordNotFound
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgRecordColumns+` FROM subscription_records WHERE provider_subscription_ref = $1`,
		ref)
	return scanRecord(row)
}

func (s *PGStore) Save(ctx context.Context, rec *Record) error {
	now := time.Now().UTC()

	if rec.Version == 0 {
		tag, err := s.pool.Exec(ctx,
			`INSERT INTO subscription_records (`+pgRecordColumns+`)
			 VALUES ($1, $2, $3, $4, $5, 1, $6)
			 ON CONFLICT (user_id) DO NOTHING`,
			rec.UserID, rec.Tier, rec.PeriodEnd,
			rec.ProviderCustomerRef, rec.ProviderSubscriptionRef, now)
		if err != nil {
			return fmt.Errorf("insert subscription record: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrVersionConflict
		}
		rec.Version = 1
		rec.UpdatedAt = now
		return nil
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE subscription_records
		 SET tier = $2, period_end = $3, provider_customer_ref = $4,
		     provider_subscription_ref = $5, version = version + 1, updated_at = $6
		 WHERE user_id = $1 AND version = $7`,
		rec.UserID, rec.Tier, rec.PeriodEnd,
		rec.ProviderCustomerRef, rec.ProviderSubscriptionRef, now, rec.Version)
	if err != nil {
		return fmt.Errorf("update subscription record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	rec.Version++
	rec.UpdatedAt = now
	return nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	err := row.Scan(&rec.UserID, &rec.Tier, &rec.PeriodEnd,
		&rec.ProviderCustomerRef, &rec.ProviderSubscriptionRef,
		&rec.Version, &rec.UpdatedAt)
	if pg.IsNotFoundError(err) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan subscription record: %w", err)
	}
	return &rec, nil
}

var _ Store = (*PGStore)(nil)
