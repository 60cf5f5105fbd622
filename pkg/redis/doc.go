// Package redis connects the billing service to Redis, which backs the
// deferred-event queue and the cached entitlement gate. It wraps the
// go-redis client with retrying connection setup and a readiness probe.
package redis
