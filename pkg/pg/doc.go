// Package pg bootstraps the PostgreSQL layer for the billing service: a
// pgx/v5 connection pool with startup retries, goose migrations applied from
// an embedded filesystem, a readiness probe, and small error helpers.
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil { ... }
//	if err := pg.Migrate(ctx, pool, cfg, migrations.FS, log); err != nil { ... }
package pg
