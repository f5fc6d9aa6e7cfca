package billing

import (
	"fmt"
	"time"
)

// Host is an opaque handle to the surface that hosts the billing platform's
// own purchase UI. Drivers that redirect to a hosted checkout ignore it.
type Host any

// PricingPhase describes one phase of an offer's pricing schedule.
type PricingPhase struct {
	PriceFormatted string // display string as issued by the platform
	PriceMicros    int64  // price in micro currency units
	CurrencyCode   string // ISO 4217
	BillingPeriod  string // ISO 8601 duration (P1M, P1Y, P1W)
}

// Offer is a purchasable base plan of a subscription product.
// OfferToken is the opaque handle the platform requires to purchase
// exactly this offer; it is only valid alongside the CatalogEntry it
// was returned with.
type Offer struct {
	BasePlanID string
	OfferToken string
	Phases     []PricingPhase
}

// LeadPhase returns the first pricing phase, which carries the price the
// user is charged at signup. Returns a zero phase for malformed offers.
func (o Offer) LeadPhase() PricingPhase {
	if len(o.Phases) == 0 {
		return PricingPhase{}
	}
	return o.Phases[0]
}

// CatalogEntry is a subscription product with its offers, as returned by a
// catalog query.
type CatalogEntry struct {
	ProductID   string
	Name        string
	Description string
	Offers      []Offer
}

// FindOffer returns the offer matching the base plan id.
func (e CatalogEntry) FindOffer(basePlanID string) (Offer, bool) {
	for _, o := range e.Offers {
		if o.BasePlanID == basePlanID {
			return o, true
		}
	}
	return Offer{}, false
}

// PurchaseState is the platform-reported state of an ownership record.
type PurchaseState string

const (
	PurchaseStatePurchased PurchaseState = "purchased"
	PurchaseStatePending   PurchaseState = "pending"
)

// OwnershipRecord is an active purchase record for the subscription
// product family.
type OwnershipRecord struct {
	OrderID       string
	ProductIDs    []string
	PurchaseToken string
	State         PurchaseState
	Acknowledged  bool
	AutoRenewing  bool
	PurchaseTime  time.Time
}

// HasProduct reports whether the record covers the given product.
func (r OwnershipRecord) HasProduct(productID string) bool {
	for _, id := range r.ProductIDs {
		if id == productID {
			return true
		}
	}
	return false
}

// HistoryRecord is a historical purchase record, including lapsed ones.
type HistoryRecord struct {
	ProductIDs    []string
	PurchaseToken string
	PurchaseTime  time.Time
}

// HasProduct reports whether the record covers the given product.
func (r HistoryRecord) HasProduct(productID string) bool {
	for _, id := range r.ProductIDs {
		if id == productID {
			return true
		}
	}
	return false
}

// ReplacementMode selects the platform's proration policy when a purchase
// replaces an existing subscription.
type ReplacementMode string

const (
	// ReplacementNone means the purchase is not replacing anything.
	ReplacementNone ReplacementMode = ""
	// ReplacementChargeProratedPrice charges the price difference immediately.
	ReplacementChargeProratedPrice ReplacementMode = "charge_prorated_price"
	// ReplacementDeferred applies the new plan at the next renewal.
	ReplacementDeferred ReplacementMode = "deferred"
	// ReplacementWithoutProration switches plans with no proration math.
	ReplacementWithoutProration ReplacementMode = "without_proration"
	// ReplacementChargeFullPrice charges the new plan's full price immediately.
	ReplacementChargeFullPrice ReplacementMode = "charge_full_price"
)

// LaunchParams describes a purchase-flow launch.
type LaunchParams struct {
	Entry            CatalogEntry
	OfferToken       string
	OldPurchaseToken string          // empty for fresh purchases
	ReplacementMode  ReplacementMode // ReplacementNone for fresh purchases
}

// ResultKind tags a PurchaseResult.
type ResultKind string

const (
	ResultSuccess       ResultKind = "success"
	ResultPending       ResultKind = "pending"
	ResultUserCancelled ResultKind = "user_cancelled"
	ResultError         ResultKind = "error"
)

// PurchaseResult is the outcome of a purchase attempt. Launch calls only
// ever produce Pending, UserCancelled or Error; Success arrives
// asynchronously on the update feed.
type PurchaseResult struct {
	Kind    ResultKind
	Message string // set for ResultError
	// RedirectURL is set when the flow requires visiting a hosted checkout
	// page instead of an in-process platform UI.
	RedirectURL string
}

func Success() PurchaseResult       { return PurchaseResult{Kind: ResultSuccess} }
func Pending() PurchaseResult       { return PurchaseResult{Kind: ResultPending} }
func UserCancelled() PurchaseResult { return PurchaseResult{Kind: ResultUserCancelled} }

// Errorf builds an error result with a human-readable message.
func Errorf(format string, args ...any) PurchaseResult {
	return PurchaseResult{Kind: ResultError, Message: fmt.Sprintf(format, args...)}
}

func (r PurchaseResult) IsTerminal() bool {
	return r.Kind != ResultPending
}
