// Command billing runs the subscription billing service: checkout initiation,
// provider webhook processing, and the entitlement API.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	billingmod "github.com/draftcoach/billing/modules/billing"
	"github.com/draftcoach/billing/migrations"
	"github.com/draftcoach/billing/pkg/billing"
	"github.com/draftcoach/billing/pkg/config"
	"github.com/draftcoach/billing/pkg/email"
	"github.com/draftcoach/billing/pkg/httpserver"
	"github.com/draftcoach/billing/pkg/logger"
	"github.com/draftcoach/billing/pkg/mongo"
	"github.com/draftcoach/billing/pkg/pg"
	redisconn "github.com/draftcoach/billing/pkg/redis"
)

type appConfig struct {
	Logger logger.Config
	Server httpserver.Config
	Email  email.Config

	// Provider selects the payment backend: "stripe" or "paddle".
	Provider string `env:"BILLING_PROVIDER" envDefault:"stripe"`

	// StoreDriver selects record persistence: "postgres", "mongo" or
	// "memory" (local development only).
	StoreDriver string `env:"BILLING_STORE_DRIVER" envDefault:"postgres"`

	// PlansPath points at the YAML plan catalog.
	PlansPath string `env:"BILLING_PLANS_PATH" envDefault:"plans.yml"`

	// RedisEnabled wires the gate cache and the deferral queue. Without it
	// orphaned events get only the single in-process retry.
	RedisEnabled bool `env:"BILLING_REDIS_ENABLED" envDefault:"true"`

	GateCacheTTL     time.Duration `env:"BILLING_GATE_CACHE_TTL" envDefault:"30s"`
	DeferralPoll     time.Duration `env:"BILLING_DEFERRAL_POLL" envDefault:"5s"`
	WebhookSigHeader string        `env:"BILLING_WEBHOOK_SIGNATURE_HEADER"`
}

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	log := logger.NewFromConfig(cfg.Logger)

	store, readiness, err := newStore(ctx, cfg, log)
	if err != nil {
		return err
	}

	provider, sigHeader, err := newProvider(cfg)
	if err != nil {
		return err
	}
	if cfg.WebhookSigHeader != "" {
		sigHeader = cfg.WebhookSigHeader
	}

	opts := []billing.Option{billing.WithLogger(log)}

	var deferralQueue *billing.RedisDeferralQueue
	if cfg.RedisEnabled {
		var redisCfg redisconn.Config
		if err := config.Load(&redisCfg); err != nil {
			return fmt.Errorf("load redis configuration: %w", err)
		}
		redisClient, err := redisconn.Connect(ctx, redisCfg)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisClient.Close()

		deferralQueue = billing.NewRedisDeferralQueue(redisClient, log)
		opts = append(opts,
			billing.WithDeferrer(deferralQueue),
			billing.WithGateCache(billing.NewGateCache(redisClient, cfg.GateCacheTTL)))
		readiness = append(readiness, redisconn.Healthcheck(redisClient))
	}

	if cfg.Email.Enabled() {
		sender, err := email.NewPostmarkSender(cfg.Email)
		if err != nil {
			return fmt.Errorf("create email sender: %w", err)
		}
		opts = append(opts, billing.WithNotifier(
			billing.NewEmailNotifier(sender, cfg.Email.BillingOpsEmail)))
	}

	svc, err := billing.NewService(ctx,
		billing.FileCatalog{Path: cfg.PlansPath}, provider, store, opts...)
	if err != nil {
		return fmt.Errorf("create billing service: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/health", httpserver.HealthCheckHandler(log, readiness...))
	r.Mount("/billing", billingmod.Router(billingmod.RouterOptions{
		Service:         svc,
		Logger:          log,
		SignatureHeader: sigHeader,
	}))

	g, ctx := errgroup.WithContext(ctx)
	if deferralQueue != nil {
		g.Go(func() error {
			err := deferralQueue.Run(ctx, svc.ProcessEvent, cfg.DeferralPoll)
			if err != nil && ctx.Err() == nil {
				return fmt.Errorf("deferral worker: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		return httpserver.NewFromConfig(cfg.Server, httpserver.WithLogger(log)).Run(ctx, r)
	})

	log.InfoContext(ctx, "billing service starting",
		slog.String("provider", cfg.Provider),
		slog.String("store", cfg.StoreDriver))
	return g.Wait()
}

// newStore builds the configured record store together with its readiness
// checks. The memory driver is for local development; it loses all state on
// restart.
func newStore(ctx context.Context, cfg appConfig, log *slog.Logger) (billing.Store, []func(context.Context) error, error) {
	switch strings.ToLower(cfg.StoreDriver) {
	case "postgres":
		var pgCfg pg.Config
		if err := config.Load(&pgCfg); err != nil {
			return nil, nil, fmt.Errorf("load postgres configuration: %w", err)
		}
		pool, err := pg.Connect(ctx, pgCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pg.Migrate(ctx, pool, pgCfg, migrations.FS, log); err != nil {
			return nil, nil, fmt.Errorf("apply migrations: %w", err)
		}
		return billing.NewPGStore(pool), []func(context.Context) error{pg.Healthcheck(pool)}, nil

	case "mongo":
		var mongoCfg mongo.Config
		if err := config.Load(&mongoCfg); err != nil {
			return nil, nil, fmt.Errorf("load mongo configuration: %w", err)
		}
		db, err := mongo.NewWithDatabase(ctx, mongoCfg, mongoCfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		store := billing.NewMongoStore(db)
		if err := store.EnsureIndexes(ctx); err != nil {
			return nil, nil, fmt.Errorf("ensure mongo indexes: %w", err)
		}
		return store, []func(context.Context) error{mongo.Healthcheck(db.Client())}, nil

	case "memory":
		log.WarnContext(ctx, "using in-memory store, records will not survive restarts")
		return billing.NewMemoryStore(), nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func newProvider(cfg appConfig) (billing.Provider, string, error) {
	switch strings.ToLower(cfg.Provider) {
	case "stripe":
		var stripeCfg billing.StripeConfig
		if err := config.Load(&stripeCfg); err != nil {
			return nil, "", fmt.Errorf("load stripe configuration: %w", err)
		}
		p, err := billing.NewStripeProvider(stripeCfg)
		if err != nil {
			return nil, "", fmt.Errorf("create stripe provider: %w", err)
		}
		return p, "Stripe-Signature", nil

	case "paddle":
		var paddleCfg billing.PaddleConfig
		if err := config.Load(&paddleCfg); err != nil {
			return nil, "", fmt.Errorf("load paddle configuration: %w", err)
		}
		p, err := billing.NewPaddleProvider(paddleCfg)
		if err != nil {
			return nil, "", fmt.Errorf("create paddle provider: %w", err)
		}
		return p, "Paddle-Signature", nil

	default:
		return nil, "", fmt.Errorf("unknown billing provider %q", cfg.Provider)
	}
}
