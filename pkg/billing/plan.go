package billing

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PlanID identifies a purchasable plan. The catalog is intentionally tiny:
// one recurring plan and one lifetime (one-time) plan.
type PlanID string

const (
	PlanRecurring PlanID = "recurring"
	PlanOneTime   PlanID = "one-time"
)

// Valid reports whether the plan ID belongs to the known set.
func (p PlanID) Valid() bool {
	return p == PlanRecurring || p == PlanOneTime
}

// Plan maps a plan ID to the provider's price and carries display metadata
// for the surrounding application.
type Plan struct {
	ID        PlanID `yaml:"id"`
	Name      string `yaml:"name"`
	PriceID   string `yaml:"price_id"` // provider price identifier
	Amount    int64  `yaml:"amount"`   // smallest currency unit
	Currency  string `yaml:"currency"`
	Recurring bool   `yaml:"recurring"`
}

// CatalogSource loads the plan catalog.
type CatalogSource interface {
	Load(ctx context.Context) (map[PlanID]Plan, error)
}

// StaticCatalog is an in-memory catalog source for tests and simple setups.
type StaticCatalog map[PlanID]Plan

func (c StaticCatalog) Load(ctx context.Context) (map[PlanID]Plan, error) {
	return c, nil
}

// FileCatalog reads the plan catalog from a YAML file:
//
//	plans:
//	  - id: recurring
//	    name: Monthly
//	    price_id: price_monthly_20
//	    amount: 2000
//	    currency: USD
//	    recurring: true
type FileCatalog struct {
	Path string
}

func (c FileCatalog) Load(ctx context.Context) (map[PlanID]Plan, error) {
	raw, err := os.ReadFile(c.Path)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}

	var doc struct {
		Plans []Plan `yaml:"plans"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}

	plans := make(map[PlanID]Plan, len(doc.Plans))
	for _, p := range doc.Plans {
		plans[p.ID] = p
	}
	return plans, nil
}

// validatePlans ensures catalog entries are internally consistent before the
// service starts taking checkouts against them.
func validatePlans(plans map[PlanID]Plan) error {
	for id, plan := range plans {
		if !id.Valid() {
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("unknown plan ID %q", id))
		}
		if plan.ID != id {
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan ID mismatch: map key %s != plan.ID %s", id, plan.ID))
		}
		if plan.PriceID == "" {
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan %s has no provider price ID", id))
		}
		if plan.Recurring != (id == PlanRecurring) {
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan %s recurring flag does not match its ID", id))
		}
	}
	return nil
}
