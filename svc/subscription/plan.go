package subscription

import (
	"fmt"
	"strings"

	"github.com/dmitrymomot/storekit/svc/billing"
)

// BillingPeriod is the human-facing billing cadence of a plan.
type BillingPeriod string

const (
	PeriodMonthly BillingPeriod = "Monthly"
	PeriodYearly  BillingPeriod = "Yearly"
	PeriodWeekly  BillingPeriod = "Weekly"
)

// periodFromISO maps an ISO 8601 duration to a billing period. Unknown
// durations pass through verbatim so the UI can still render something.
func periodFromISO(iso string) BillingPeriod {
	switch iso {
	case "P1M":
		return PeriodMonthly
	case "P1Y":
		return PeriodYearly
	case "P1W":
		return PeriodWeekly
	default:
		return BillingPeriod(iso)
	}
}

// CatalogSource tells callers whether plan data came from the billing
// platform or from the canned fallback catalog. Callers that cannot
// tolerate placeholder data must check it.
type CatalogSource string

const (
	CatalogLive CatalogSource = "live"
	CatalogMock CatalogSource = "mock"
)

// Plan is a purchasable offer of a subscription product, unified with the
// caller's ownership state. Plans are rebuilt on every catalog query and
// never persisted wholesale.
type Plan struct {
	ProductID      string        `json:"product_id"`
	BasePlanID     string        `json:"base_plan_id"`
	OfferToken     string        `json:"-"`
	Name           string        `json:"name"`
	Description    string        `json:"description"`
	PriceFormatted string        `json:"price_formatted"`
	PriceMicros    int64         `json:"price_micros"`
	CurrencyCode   string        `json:"currency_code"`
	Period         BillingPeriod `json:"billing_period,omitempty"`
	Active         bool          `json:"active"`
	AutoRenewing   bool          `json:"auto_renewing"`
	Paused         bool          `json:"paused"`
	OnHold         bool          `json:"on_hold"`
	Mock           bool          `json:"mock,omitempty"`
}

// OfferID returns the composite identifier the purchase API accepts.
func (p Plan) OfferID() string {
	return p.ProductID + ":" + p.BasePlanID
}

// SplitOfferID decomposes a composite "productID:basePlanID" offer id.
func SplitOfferID(id string) (productID, basePlanID string, err error) {
	productID, basePlanID, ok := strings.Cut(id, ":")
	if !ok || productID == "" || basePlanID == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidOfferID, id)
	}
	return productID, basePlanID, nil
}

// planName returns the display name for a known base plan.
func planName(basePlanID string) string {
	switch basePlanID {
	case "first-monthly":
		return "First"
	case "second-monthly":
		return "Second"
	case "bundle-monthly":
		return "Bundle"
	default:
		return "Premium Access"
	}
}

// planDescription returns the display description for a known base plan.
func planDescription(basePlanID string) string {
	switch basePlanID {
	case "first-monthly":
		return "Basic subscription plan"
	case "second-monthly":
		return "Premium subscription plan"
	case "bundle-monthly":
		return "Complete bundle subscription"
	default:
		return ""
	}
}

// planFromOffer flattens one catalog offer into a Plan.
func planFromOffer(productID string, offer billing.Offer) Plan {
	phase := offer.LeadPhase()
	return Plan{
		ProductID:      productID,
		BasePlanID:     offer.BasePlanID,
		OfferToken:     offer.OfferToken,
		Name:           planName(offer.BasePlanID),
		Description:    planDescription(offer.BasePlanID),
		PriceFormatted: phase.PriceFormatted,
		PriceMicros:    phase.PriceMicros,
		CurrencyCode:   phase.CurrencyCode,
		Period:         periodFromISO(phase.BillingPeriod),
	}
}

// mockPlans is the canned catalog served after the live catalog query
// exhausts its retry budget. Keeps the UI usable offline; every entry is
// flagged so callers can tell placeholder data apart from real data.
func mockPlans(productID string) []Plan {
	plans := make([]Plan, 0, 3)
	for _, basePlanID := range []string{"first-monthly", "second-monthly", "bundle-monthly"} {
		var price string
		switch basePlanID {
		case "first-monthly":
			price = "$4.99"
		case "second-monthly":
			price = "$5.99"
		default:
			price = "$8.99"
		}
		plans = append(plans, Plan{
			ProductID:      productID,
			BasePlanID:     basePlanID,
			Name:           planName(basePlanID) + " (Mock)",
			Description:    planDescription(basePlanID) + " (Mock)",
			PriceFormatted: price,
			CurrencyCode:   "CAD",
			Period:         PeriodMonthly,
			Mock:           true,
		})
	}
	return plans
}
