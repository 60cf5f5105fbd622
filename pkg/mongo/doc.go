// Package mongo connects the billing service to MongoDB, the alternate
// backend for the entitlement store. It wraps the official driver with
// retrying connection setup and a readiness probe.
package mongo
