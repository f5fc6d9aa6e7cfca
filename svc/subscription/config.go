package subscription

import "time"

// Config holds the reconciler settings.
type Config struct {
	// ProductIDs is the subscription product family queried from the catalog.
	ProductIDs []string `env:"SUBSCRIPTION_PRODUCT_IDS" envSeparator:"," envDefault:"premium_access"`

	// ManageURL is the fallback subscription-management page used when the
	// billing driver has no hosted portal. A product id is appended as the
	// sku query parameter.
	ManageURL string `env:"SUBSCRIPTION_MANAGE_URL" envDefault:"https://play.google.com/store/account/subscriptions"`

	// RetryAttempts bounds the query retry loop.
	RetryAttempts int `env:"SUBSCRIPTION_RETRY_ATTEMPTS" envDefault:"3"`

	// RetryDelay is the pause between attempts after a not-ready failure.
	RetryDelay time.Duration `env:"SUBSCRIPTION_RETRY_DELAY" envDefault:"1s"`

	// HistoryLookback bounds how far back a lapsed purchase still counts
	// as a payment-on-hold subscription. Defaults to 45 days.
	HistoryLookback time.Duration `env:"SUBSCRIPTION_HISTORY_LOOKBACK" envDefault:"1080h"`
}

// normalize fills zero values with the documented defaults so a literal
// Config in tests behaves like an env-loaded one.
func (c Config) normalize() Config {
	if len(c.ProductIDs) == 0 {
		c.ProductIDs = []string{"premium_access"}
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	if c.HistoryLookback <= 0 {
		c.HistoryLookback = 45 * 24 * time.Hour
	}
	return c
}

// Preference keys for the persisted last-selected plan and demo flag.
const (
	keyLastProductID  = "last_product_id"
	keyLastBasePlanID = "last_plan_id"
	keySandboxMode    = "sandbox_demo_mode"
)
