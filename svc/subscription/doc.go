// Package subscription reconciles a billing platform's catalog and
// ownership data into a local plan model and exposes it to a UI layer.
//
// Service owns the retry policy around billing queries, the mock-catalog
// fallback, the product-details cache required for purchase initiation,
// proration-mode selection for plan switches and the pending-selection
// bookkeeping that records a completed purchase durably. StateHolder sits
// on top of Service and maintains an immutable presentation snapshot with
// user-intent entry points.
//
// The package talks to the platform through the Gateway interface, which
// svc/billing.Client implements.
package subscription
