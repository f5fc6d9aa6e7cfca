package subscription

import "errors"

var (
	// ErrInvalidOfferID is returned for composite offer ids that do not
	// decompose into a product id and a base plan id.
	ErrInvalidOfferID = errors.New("invalid offer id")

	// ErrProductNotFound is returned when the catalog query succeeds but
	// carries none of the configured products. Retried like any other
	// catalog failure.
	ErrProductNotFound = errors.New("product not found")

	// ErrRefreshPlansFirst is returned when a purchase is attempted with a
	// cold product-details cache. The caller must refresh plans first: the
	// launch API needs the offer token returned by the catalog query.
	ErrRefreshPlansFirst = errors.New("refresh plans first")

	// ErrPlanNotFound is returned when the cached product carries no offer
	// matching the requested base plan.
	ErrPlanNotFound = errors.New("plan not found")

	// ErrAlreadySubscribed is returned when the requested plan is already
	// the active one. Validation error, never retried.
	ErrAlreadySubscribed = errors.New("already subscribed to this plan")

	// ErrPurchaseInProgress is returned when a purchase flow is launched
	// while a previous one has not reached a terminal result yet.
	ErrPurchaseInProgress = errors.New("another purchase is in progress")

	// ErrManageURLUnavailable is returned when no subscription-management
	// page can be resolved.
	ErrManageURLUnavailable = errors.New("subscription management url unavailable")
)
