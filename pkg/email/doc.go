// Package email sends transactional email through Postmark. The billing
// service uses it for ops notifications on entitlement transitions; when no
// provider tokens are configured the noop sender is used instead.
package email
