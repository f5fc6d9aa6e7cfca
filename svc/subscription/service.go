package subscription

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/dmitrymomot/storekit/pkg/prefs"
	"github.com/dmitrymomot/storekit/svc/billing"
)

// Gateway is the billing-gateway surface the reconciler consumes.
// *billing.Client satisfies it.
type Gateway interface {
	StartConnection(ctx context.Context) error
	IsReady() bool
	EndConnection()
	QueryCatalog(ctx context.Context, productIDs []string) ([]billing.CatalogEntry, error)
	QueryActiveOwnership(ctx context.Context) ([]billing.OwnershipRecord, error)
	QueryPurchaseHistory(ctx context.Context) ([]billing.HistoryRecord, error)
	LaunchPurchaseFlow(host billing.Host, entry billing.CatalogEntry, offerToken, oldPurchaseToken string, mode billing.ReplacementMode) billing.PurchaseResult
	ObserveOwnershipUpdates(ctx context.Context) *billing.FeedSub[billing.PurchaseResult]
}

// Portal resolves a hosted subscription-management page. Optional driver
// capability; billing.PaddleDriver satisfies it.
type Portal interface {
	ManageURL(ctx context.Context, subscriptionIDs ...string) (string, error)
}

// selection is the (product, base plan) pair held between purchase-flow
// launch and its terminal update event.
type selection struct {
	productID  string
	basePlanID string
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger. Nil loggers are ignored.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithPortal wires a hosted management portal resolver.
func WithPortal(p Portal) Option {
	return func(s *Service) {
		s.portal = p
	}
}

// WithClock overrides the time source used for the history lookback window.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service reconciles the billing platform's catalog and ownership state
// into the local Plan model. It owns the retry policy, the mock-catalog
// fallback, the product-details cache and the pending-selection bookkeeping
// around purchase flows.
type Service struct {
	gateway Gateway
	store   prefs.Store
	portal  Portal
	log     *slog.Logger
	cfg     Config

	// mu guards pending and cache: both are written from the purchase call
	// and read or cleared from the update-listener goroutine.
	mu      sync.Mutex
	pending *selection
	cache   map[string]billing.CatalogEntry

	attempt *attemptTracker
	feed    *billing.Feed[billing.PurchaseResult]
	stop    context.CancelFunc

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

// NewService creates the reconciler and starts consuming the gateway's
// update feed. Panics on nil dependencies to fail fast during initialization.
func NewService(gateway Gateway, store prefs.Store, cfg Config, opts ...Option) *Service {
	if gateway == nil {
		panic("subscription: gateway is required")
	}
	if store == nil {
		panic("subscription: prefs store is required")
	}

	s := &Service{
		gateway: gateway,
		store:   store,
		log:     slog.Default(),
		cfg:     cfg.normalize(),
		cache:   make(map[string]billing.CatalogEntry),
		attempt: newAttemptTracker(),
		feed:    billing.NewFeed[billing.PurchaseResult](),
		now:     time.Now,
		sleep:   sleepCtx,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Subscribe before returning: the feed does not replay, and events
	// must never slip past the bookkeeping loop.
	ctx, cancel := context.WithCancel(context.Background())
	s.stop = cancel
	sub := s.gateway.ObserveOwnershipUpdates(ctx)
	go s.run(ctx, sub)

	return s
}

// Close stops the update-feed consumer and closes the outward feed.
// The gateway connection is left to the caller.
func (s *Service) Close() {
	s.stop()
	s.feed.Close()
}

// StartConnection establishes the billing connection.
func (s *Service) StartConnection(ctx context.Context) error {
	return s.gateway.StartConnection(ctx)
}

// EndConnection releases the billing connection.
func (s *Service) EndConnection() {
	s.gateway.EndConnection()
}

// ObservePurchaseUpdates subscribes to the reconciled purchase-result feed.
// Events arrive after the pending-selection bookkeeping has been applied.
func (s *Service) ObservePurchaseUpdates(ctx context.Context) *billing.FeedSub[billing.PurchaseResult] {
	return s.feed.Subscribe(ctx)
}

// GetSubscriptionPlans returns the purchasable plans. The live catalog and
// current ownership are queried in parallel; the ownership half is best
// effort and only used to flag active plans. After the retry budget is
// exhausted the canned mock catalog is served instead of an error, with the
// source marked CatalogMock.
func (s *Service) GetSubscriptionPlans(ctx context.Context) ([]Plan, CatalogSource, error) {
	var plans []Plan
	err := s.withRetry(ctx, "query catalog", func() error {
		var err error
		plans, err = s.queryPlansOnce(ctx)
		return err
	})
	if err != nil {
		s.log.Warn("catalog query failed, serving mock catalog",
			slog.Any("error", err),
		)
		return mockPlans(s.cfg.ProductIDs[0]), CatalogMock, nil
	}
	return plans, CatalogLive, nil
}

func (s *Service) queryPlansOnce(ctx context.Context) ([]Plan, error) {
	var (
		entries []billing.CatalogEntry
		catErr  error
		records []billing.OwnershipRecord
	)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		entries, catErr = s.gateway.QueryCatalog(ctx, s.cfg.ProductIDs)
	}()
	go func() {
		defer wg.Done()
		recs, err := s.gateway.QueryActiveOwnership(ctx)
		if err != nil {
			// Best effort: plans are still useful without ownership flags.
			return
		}
		records = recs
	}()
	wg.Wait()

	if catErr != nil {
		return nil, catErr
	}
	if len(entries) == 0 {
		return nil, ErrProductNotFound
	}

	s.mu.Lock()
	for _, e := range entries {
		s.cache[e.ProductID] = e
	}
	s.mu.Unlock()

	savedBasePlan := s.lastBasePlan(ctx)

	var plans []Plan
	for _, entry := range entries {
		var owned *billing.OwnershipRecord
		for i := range records {
			if records[i].HasProduct(entry.ProductID) {
				owned = &records[i]
				break
			}
		}
		for _, offer := range entry.Offers {
			plan := planFromOffer(entry.ProductID, offer)
			if owned != nil && offer.BasePlanID == savedBasePlan {
				plan.Active = true
				plan.AutoRenewing = owned.AutoRenewing
			}
			plans = append(plans, plan)
		}
	}
	return plans, nil
}

// GetActiveSubscriptions returns the caller's active plans. When the
// ownership query comes back empty, recent purchase history is inspected:
// a matching record inside the lookback window surfaces as a single
// payment-on-hold pseudo-plan. Query failures propagate; there is no mock
// fallback here.
func (s *Service) GetActiveSubscriptions(ctx context.Context) ([]Plan, error) {
	var plans []Plan
	err := s.withRetry(ctx, "query ownership", func() error {
		records, err := s.gateway.QueryActiveOwnership(ctx)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			plans = s.plansFromHistory(ctx)
			return nil
		}

		plans = plans[:0]
		for _, r := range records {
			if plan, ok := s.planFromOwnership(ctx, r); ok {
				plans = append(plans, plan)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return plans, nil
}

// plansFromHistory surfaces a recently lapsed subscription as an on-hold
// pseudo-plan. History query failures read as no history.
func (s *Service) plansFromHistory(ctx context.Context) []Plan {
	history, err := s.gateway.QueryPurchaseHistory(ctx)
	if err != nil {
		s.log.Warn("purchase history query failed", slog.Any("error", err))
		return nil
	}

	for _, record := range history {
		for _, productID := range s.cfg.ProductIDs {
			if !record.HasProduct(productID) {
				continue
			}
			if s.now().Sub(record.PurchaseTime) >= s.cfg.HistoryLookback {
				return nil
			}
			name := "Premium Access"
			if saved := s.lastBasePlan(ctx); saved != "" {
				name = planName(saved)
			}
			return []Plan{{
				ProductID:      productID,
				Name:           name,
				Description:    "Payment issue or paused",
				PriceFormatted: "--",
				Active:         true,
				AutoRenewing:   true,
				OnHold:         true,
			}}
		}
	}
	return nil
}

// planFromOwnership maps an active ownership record onto the Plan model,
// recovering display data from the product cache and the last-saved base
// plan.
func (s *Service) planFromOwnership(ctx context.Context, record billing.OwnershipRecord) (Plan, bool) {
	if len(record.ProductIDs) == 0 {
		return Plan{}, false
	}
	productID := record.ProductIDs[0]

	s.mu.Lock()
	entry, cached := s.cache[productID]
	s.mu.Unlock()

	saved := s.lastBasePlan(ctx)

	var offer billing.Offer
	if cached {
		if o, ok := entry.FindOffer(saved); ok {
			offer = o
		} else if len(entry.Offers) > 0 {
			offer = entry.Offers[0]
		}
	}
	phase := offer.LeadPhase()

	name := "Premium Access"
	description := "Active Subscription"
	if saved != "" {
		name = planName(saved)
		description = "Active (" + planName(saved) + " Plan)"
	}

	return Plan{
		ProductID:      productID,
		BasePlanID:     offer.BasePlanID,
		Name:           name,
		Description:    description,
		PriceFormatted: phase.PriceFormatted,
		PriceMicros:    phase.PriceMicros,
		CurrencyCode:   phase.CurrencyCode,
		Period:         periodFromISO(phase.BillingPeriod),
		Active:         true,
		AutoRenewing:   record.AutoRenewing,
		OnHold:         record.State == billing.PurchaseStatePending,
	}, true
}

// PurchaseSubscription launches a purchase flow for the composite
// "productID:basePlanID" offer id. It requires a warm product cache from a
// previous GetSubscriptionPlans call, rejects re-purchasing the active
// plan without touching the launch API, and records the pending selection
// before handing control to the platform UI. The returned result never
// reports Success: a launched flow is Pending until its terminal event
// arrives on the update feed.
func (s *Service) PurchaseSubscription(ctx context.Context, host billing.Host, offerID string) (billing.PurchaseResult, error) {
	productID, basePlanID, err := SplitOfferID(offerID)
	if err != nil {
		return billing.PurchaseResult{}, err
	}

	s.mu.Lock()
	entry, warm := s.cache[productID]
	s.mu.Unlock()
	if !warm {
		return billing.PurchaseResult{}, ErrRefreshPlansFirst
	}

	offer, found := entry.FindOffer(basePlanID)
	if !found {
		return billing.PurchaseResult{}, ErrPlanNotFound
	}

	// Best effort: a failed ownership query degrades to a fresh purchase.
	var oldPurchaseToken string
	if records, err := s.gateway.QueryActiveOwnership(ctx); err == nil {
		for _, r := range records {
			if r.HasProduct(productID) {
				oldPurchaseToken = r.PurchaseToken
				break
			}
		}
	}

	saved := s.lastBasePlan(ctx)
	if oldPurchaseToken != "" && saved == basePlanID {
		return billing.PurchaseResult{}, ErrAlreadySubscribed
	}

	mode := billing.ReplacementNone
	if oldPurchaseToken != "" {
		mode = s.replacementMode(ctx, entry, saved, basePlanID)
	}

	if err := s.attempt.begin(); err != nil {
		return billing.PurchaseResult{}, err
	}

	s.mu.Lock()
	s.pending = &selection{productID: productID, basePlanID: basePlanID}
	s.mu.Unlock()

	res := s.gateway.LaunchPurchaseFlow(host, entry, offer.OfferToken, oldPurchaseToken, mode)
	if res.Kind == billing.ResultUserCancelled || res.Kind == billing.ResultError {
		s.clearPending()
		s.attempt.finish()
	}
	return res, nil
}

// replacementMode picks the proration policy for a plan switch by comparing
// the target offer's price against the currently saved one. Sandbox demo
// mode forces WithoutProration: real billing sandboxes reject proration
// math unreliably.
func (s *Service) replacementMode(ctx context.Context, entry billing.CatalogEntry, savedBasePlan, newBasePlan string) billing.ReplacementMode {
	if s.SandboxDemoMode(ctx) {
		return billing.ReplacementWithoutProration
	}
	if savedBasePlan == "" {
		return billing.ReplacementWithoutProration
	}

	currentOffer, haveCurrent := entry.FindOffer(savedBasePlan)
	newOffer, haveNew := entry.FindOffer(newBasePlan)
	if !haveCurrent || !haveNew {
		return billing.ReplacementWithoutProration
	}

	currentPrice := currentOffer.LeadPhase().PriceMicros
	newPrice := newOffer.LeadPhase().PriceMicros
	switch {
	case newPrice > currentPrice:
		return billing.ReplacementChargeProratedPrice
	case newPrice < currentPrice:
		return billing.ReplacementDeferred
	default:
		return billing.ReplacementWithoutProration
	}
}

// ManageSubscriptionURL resolves the subscription-management page. A hosted
// portal wins when wired; otherwise the configured deep link is returned,
// scoped by product id when one is given.
func (s *Service) ManageSubscriptionURL(ctx context.Context, productID string) (string, error) {
	if s.portal != nil {
		u, err := s.portal.ManageURL(ctx)
		if err == nil {
			return u, nil
		}
		s.log.Warn("portal url resolution failed, falling back to deep link",
			slog.Any("error", err),
		)
	}

	if s.cfg.ManageURL == "" {
		return "", ErrManageURLUnavailable
	}
	u, err := url.Parse(s.cfg.ManageURL)
	if err != nil {
		return "", errors.Join(ErrManageURLUnavailable, err)
	}
	if productID != "" {
		q := u.Query()
		q.Set("sku", productID)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// SaveLastSelectedPlan persists the plan the user last subscribed to.
func (s *Service) SaveLastSelectedPlan(ctx context.Context, productID, basePlanID string) error {
	if err := s.store.Set(ctx, keyLastProductID, productID); err != nil {
		return err
	}
	return s.store.Set(ctx, keyLastBasePlanID, basePlanID)
}

// SandboxDemoMode reports whether the sandbox demo flag is set.
func (s *Service) SandboxDemoMode(ctx context.Context) bool {
	return prefs.GetBool(ctx, s.store, keySandboxMode, false)
}

// SetSandboxDemoMode persists the sandbox demo flag.
func (s *Service) SetSandboxDemoMode(ctx context.Context, enabled bool) error {
	return prefs.SetBool(ctx, s.store, keySandboxMode, enabled)
}

// run consumes the gateway update feed, applies the pending-selection
// bookkeeping and republishes every event on the outward feed. A success
// commits the pending selection to the prefs store before republishing, so
// a reload racing the event observes the updated last-selected plan.
func (s *Service) run(ctx context.Context, sub *billing.FeedSub[billing.PurchaseResult]) {
	for {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-sub.Events():
			if !ok {
				return
			}
			s.handleResult(ctx, res)
		}
	}
}

func (s *Service) handleResult(ctx context.Context, res billing.PurchaseResult) {
	switch res.Kind {
	case billing.ResultSuccess:
		s.commitPending(ctx)
		s.attempt.finish()
	case billing.ResultUserCancelled, billing.ResultError:
		s.clearPending()
		s.attempt.finish()
	}
	s.feed.Publish(res)
}

// commitPending persists the pending selection as the last selected plan
// and clears it. No-op when nothing is pending.
func (s *Service) commitPending(ctx context.Context) {
	s.mu.Lock()
	sel := s.pending
	s.pending = nil
	s.mu.Unlock()

	if sel == nil {
		return
	}
	if err := s.SaveLastSelectedPlan(ctx, sel.productID, sel.basePlanID); err != nil {
		s.log.Error("failed to persist last selected plan",
			slog.String("product_id", sel.productID),
			slog.String("base_plan_id", sel.basePlanID),
			slog.Any("error", err),
		)
	}
}

func (s *Service) clearPending() {
	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()
}

// lastBasePlan reads the saved base-plan id; absent reads as empty.
func (s *Service) lastBasePlan(ctx context.Context) string {
	v, err := s.store.Get(ctx, keyLastBasePlanID)
	if err != nil {
		return ""
	}
	return v
}

// withRetry runs fn up to the configured attempt budget, reconnecting the
// gateway before each attempt when the connection is not ready and pausing
// between attempts after a not-ready failure.
func (s *Service) withRetry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.RetryAttempts; attempt++ {
		if !s.gateway.IsReady() {
			if err := s.gateway.StartConnection(ctx); err != nil {
				s.log.Warn("billing reconnect failed",
					slog.String("op", op),
					slog.Int("attempt", attempt),
					slog.Any("error", err),
				)
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		s.log.Warn("billing operation failed",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.Any("error", lastErr),
		)

		if attempt < s.cfg.RetryAttempts && errors.Is(lastErr, billing.ErrNotReady) {
			s.sleep(ctx, s.cfg.RetryDelay)
		}
	}
	return lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
