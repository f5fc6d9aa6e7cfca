// Package billing wraps a billing platform's asynchronous callback SDK
// behind a synchronous client.
//
// The platform integration is expressed as a Driver: a callback-style
// contract mirroring the SDKs app stores ship, where every query registers
// a completion callback and purchase completion arrives through an
// unsolicited update listener. Client converts each driver operation into
// a single-shot awaitable result, republishes purchase updates on a hot
// latest-wins feed, and acknowledges fresh purchases in the background so
// the platform does not auto-refund them.
//
//	driver := billing.NewSandboxDriver(billing.WithSandboxCatalog(entries...))
//	client := billing.NewClient(driver)
//	if err := client.StartConnection(ctx); err != nil { ... }
//
//	sub := client.ObserveOwnershipUpdates(ctx)
//	for result := range sub.Events() { ... }
//
// Two drivers are included: SandboxDriver, an in-memory scriptable driver
// for demos and tests, and PaddleDriver, which maps the contract onto the
// Paddle billing API with webhook-driven purchase completion.
//
// Query operations on an unestablished connection fail immediately with
// ErrNotReady so callers can distinguish the retryable case.
package billing
