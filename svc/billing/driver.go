package billing

// ConnectionCallbacks receive connection lifecycle notifications from a driver.
// Each callback may be invoked from an arbitrary goroutine.
type ConnectionCallbacks struct {
	// OnReady fires when the billing service reports the connection usable.
	OnReady func()
	// OnSetupFailed fires when the service rejects the connection attempt.
	OnSetupFailed func(err error)
	// OnDisconnected fires when an established connection drops.
	OnDisconnected func()
}

// ResponseCode is the coarse response code a driver reports for a
// purchase-flow launch.
type ResponseCode string

const (
	CodeOK                 ResponseCode = "ok"
	CodeUserCancelled      ResponseCode = "user_cancelled"
	CodeServiceUnavailable ResponseCode = "service_unavailable"
	CodeItemAlreadyOwned   ResponseCode = "item_already_owned"
	CodeDeveloperError     ResponseCode = "developer_error"
	CodeError              ResponseCode = "error"
)

// LaunchResult is the immediate outcome of a purchase-flow launch call,
// based only on the launch response, never on the eventual purchase.
type LaunchResult struct {
	Code        ResponseCode
	Message     string
	RedirectURL string // hosted checkout URL, when the driver uses one
}

// PurchaseUpdate is an unsolicited purchase-state notification from the
// billing platform, delivered outside any specific request.
type PurchaseUpdate struct {
	Code    ResponseCode
	Message string
	Records []OwnershipRecord
}

// UpdateListener receives unsolicited purchase updates.
// Called from driver-owned goroutines; implementations must not block.
type UpdateListener func(PurchaseUpdate)

// Driver is the callback-style contract a billing platform integration
// implements. It mirrors the asynchronous SDKs these platforms ship:
// every query registers exactly one completion callback, and purchase
// completion is reported through the update listener rather than the
// launch call's return value.
type Driver interface {
	// Connect establishes the platform connection and reports the outcome
	// through the callbacks. Drivers must invoke exactly one of OnReady or
	// OnSetupFailed per call, and may invoke OnDisconnected at any later time.
	Connect(cb ConnectionCallbacks)

	// Disconnect releases the platform connection. Safe when not connected.
	Disconnect()

	// SetUpdateListener registers the unsolicited purchase-update listener.
	// At most one listener is supported; drivers overwrite any previous one.
	SetUpdateListener(fn UpdateListener)

	// QueryCatalog fetches catalog entries for the given product ids.
	QueryCatalog(productIDs []string, fn func([]CatalogEntry, error))

	// QueryOwnership fetches current active purchase records.
	QueryOwnership(fn func([]OwnershipRecord, error))

	// QueryHistory fetches historical purchase records, including lapsed ones.
	QueryHistory(fn func([]HistoryRecord, error))

	// Acknowledge confirms a purchase identified by its token.
	Acknowledge(purchaseToken string, fn func(error))

	// LaunchPurchaseFlow hands control to the platform's purchase UI and
	// returns the launch call's own response synchronously.
	LaunchPurchaseFlow(host Host, params LaunchParams) LaunchResult
}
