package billing

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// SandboxDriver is an in-memory Driver for demos and tests. It serves a
// scripted catalog, records launched purchase flows as pending ownership,
// and (when AutoComplete is on) completes them asynchronously the way a
// real platform reports purchases through its update listener.
type SandboxDriver struct {
	mu        sync.Mutex
	catalog   []CatalogEntry
	ownership []OwnershipRecord
	history   []HistoryRecord
	listener  UpdateListener

	connectErr   error
	ready        bool
	autoComplete bool
}

// SandboxOption configures a SandboxDriver.
type SandboxOption func(*SandboxDriver)

// WithSandboxCatalog seeds the driver catalog.
func WithSandboxCatalog(entries ...CatalogEntry) SandboxOption {
	return func(d *SandboxDriver) {
		d.catalog = append(d.catalog, entries...)
	}
}

// WithSandboxOwnership seeds active ownership records.
func WithSandboxOwnership(records ...OwnershipRecord) SandboxOption {
	return func(d *SandboxDriver) {
		d.ownership = append(d.ownership, records...)
	}
}

// WithSandboxHistory seeds historical purchase records.
func WithSandboxHistory(records ...HistoryRecord) SandboxOption {
	return func(d *SandboxDriver) {
		d.history = append(d.history, records...)
	}
}

// WithSandboxConnectError makes every connection attempt fail with err.
func WithSandboxConnectError(err error) SandboxOption {
	return func(d *SandboxDriver) {
		d.connectErr = err
	}
}

// WithSandboxAutoComplete makes launched flows complete asynchronously
// with a successful purchase notification.
func WithSandboxAutoComplete() SandboxOption {
	return func(d *SandboxDriver) {
		d.autoComplete = true
	}
}

// NewSandboxDriver creates a sandbox driver.
func NewSandboxDriver(opts ...SandboxOption) *SandboxDriver {
	d := &SandboxDriver{}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *SandboxDriver) Connect(cb ConnectionCallbacks) {
	d.mu.Lock()
	err := d.connectErr
	if err == nil {
		d.ready = true
	}
	d.mu.Unlock()

	if err != nil {
		if cb.OnSetupFailed != nil {
			cb.OnSetupFailed(err)
		}
		return
	}
	if cb.OnReady != nil {
		cb.OnReady()
	}
}

func (d *SandboxDriver) Disconnect() {
	d.mu.Lock()
	d.ready = false
	d.mu.Unlock()
}

func (d *SandboxDriver) SetUpdateListener(fn UpdateListener) {
	d.mu.Lock()
	d.listener = fn
	d.mu.Unlock()
}

func (d *SandboxDriver) QueryCatalog(productIDs []string, fn func([]CatalogEntry, error)) {
	d.mu.Lock()
	var entries []CatalogEntry
	for _, e := range d.catalog {
		for _, id := range productIDs {
			if e.ProductID == id {
				entries = append(entries, e)
				break
			}
		}
	}
	d.mu.Unlock()

	go fn(entries, nil)
}

func (d *SandboxDriver) QueryOwnership(fn func([]OwnershipRecord, error)) {
	d.mu.Lock()
	records := make([]OwnershipRecord, len(d.ownership))
	copy(records, d.ownership)
	d.mu.Unlock()

	go fn(records, nil)
}

func (d *SandboxDriver) QueryHistory(fn func([]HistoryRecord, error)) {
	d.mu.Lock()
	records := make([]HistoryRecord, len(d.history))
	copy(records, d.history)
	d.mu.Unlock()

	go fn(records, nil)
}

func (d *SandboxDriver) Acknowledge(purchaseToken string, fn func(error)) {
	d.mu.Lock()
	for i := range d.ownership {
		if d.ownership[i].PurchaseToken == purchaseToken {
			d.ownership[i].Acknowledged = true
		}
	}
	d.mu.Unlock()

	go fn(nil)
}

func (d *SandboxDriver) LaunchPurchaseFlow(host Host, params LaunchParams) LaunchResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.ready {
		return LaunchResult{Code: CodeServiceUnavailable, Message: "sandbox not connected"}
	}
	if offerByToken(params.Entry, params.OfferToken) == "" {
		return LaunchResult{Code: CodeDeveloperError, Message: "unknown offer token"}
	}

	record := OwnershipRecord{
		OrderID:       uuid.NewString(),
		ProductIDs:    []string{params.Entry.ProductID},
		PurchaseToken: uuid.NewString(),
		State:         PurchaseStatePurchased,
		AutoRenewing:  true,
		PurchaseTime:  time.Now().UTC(),
	}

	if params.OldPurchaseToken != "" {
		d.removeOwnershipLocked(params.OldPurchaseToken)
	}
	d.ownership = append(d.ownership, record)
	d.history = append(d.history, HistoryRecord{
		ProductIDs:    record.ProductIDs,
		PurchaseToken: record.PurchaseToken,
		PurchaseTime:  record.PurchaseTime,
	})

	if d.autoComplete && d.listener != nil {
		listener := d.listener
		go listener(PurchaseUpdate{Code: CodeOK, Records: []OwnershipRecord{record}})
	}

	return LaunchResult{Code: CodeOK}
}

// EmitUpdate pushes a raw purchase update to the registered listener,
// simulating an unsolicited platform notification. No-op without a listener.
func (d *SandboxDriver) EmitUpdate(u PurchaseUpdate) {
	d.mu.Lock()
	listener := d.listener
	d.mu.Unlock()

	if listener != nil {
		listener(u)
	}
}

func (d *SandboxDriver) removeOwnershipLocked(purchaseToken string) {
	kept := d.ownership[:0]
	for _, r := range d.ownership {
		if r.PurchaseToken != purchaseToken {
			kept = append(kept, r)
		}
	}
	d.ownership = kept
}

// offerByToken resolves an offer token back to its base plan id within an
// entry. Returns an empty string when the token is unknown.
func offerByToken(entry CatalogEntry, token string) string {
	for _, o := range entry.Offers {
		if o.OfferToken == token {
			return o.BasePlanID
		}
	}
	return ""
}

// catalogFile is the YAML schema for LoadCatalogFile.
type catalogFile struct {
	Products []struct {
		ProductID   string `yaml:"product_id"`
		Name        string `yaml:"name"`
		Description string `yaml:"description"`
		Offers      []struct {
			BasePlanID     string `yaml:"base_plan_id"`
			OfferToken     string `yaml:"offer_token"`
			PriceFormatted string `yaml:"price_formatted"`
			PriceMicros    int64  `yaml:"price_micros"`
			CurrencyCode   string `yaml:"currency_code"`
			BillingPeriod  string `yaml:"billing_period"`
		} `yaml:"offers"`
	} `yaml:"products"`
}

// LoadCatalogFile reads a sandbox catalog from a YAML file.
func LoadCatalogFile(path string) ([]CatalogEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("billing: read catalog file: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("billing: parse catalog file: %w", err)
	}

	entries := make([]CatalogEntry, 0, len(file.Products))
	for _, p := range file.Products {
		entry := CatalogEntry{
			ProductID:   p.ProductID,
			Name:        p.Name,
			Description: p.Description,
		}
		for _, o := range p.Offers {
			entry.Offers = append(entry.Offers, Offer{
				BasePlanID: o.BasePlanID,
				OfferToken: o.OfferToken,
				Phases: []PricingPhase{{
					PriceFormatted: o.PriceFormatted,
					PriceMicros:    o.PriceMicros,
					CurrencyCode:   o.CurrencyCode,
					BillingPeriod:  o.BillingPeriod,
				}},
			})
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
