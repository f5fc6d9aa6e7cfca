package subscription

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dmitrymomot/storekit/svc/billing"
)

// State is the immutable UI-facing snapshot. Every intent produces a whole
// new snapshot; observers never see a partially applied update.
type State struct {
	Loading             bool                    `json:"loading"`
	Plans               []Plan                  `json:"plans"`
	CatalogSource       CatalogSource           `json:"catalog_source,omitempty"`
	ActiveSubscriptions []Plan                  `json:"active_subscriptions"`
	ErrorMessage        string                  `json:"error_message,omitempty"`
	PurchaseInProgress  bool                    `json:"purchase_in_progress"`
	LastResult          *billing.PurchaseResult `json:"last_result,omitempty"`
	HorizontalLayout    bool                    `json:"horizontal_layout"`
	Refreshing          bool                    `json:"refreshing"`
	SandboxDemoMode     bool                    `json:"sandbox_demo_mode"`
}

// HolderOption configures a StateHolder.
type HolderOption func(*StateHolder)

// WithHolderLogger sets the state-holder logger. Nil loggers are ignored.
func WithHolderLogger(log *slog.Logger) HolderOption {
	return func(h *StateHolder) {
		if log != nil {
			h.log = log
		}
	}
}

// StateHolder owns the presentation state over a reconciler. The
// constructor kicks off a plan load, an active-subscription load and the
// purchase-update subscription; user intents mutate the snapshot through
// the same single writer lock.
type StateHolder struct {
	svc *Service
	log *slog.Logger

	mu      sync.RWMutex
	state   State
	updates chan struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewStateHolder creates the holder and starts its initial loads.
func NewStateHolder(svc *Service, opts ...HolderOption) *StateHolder {
	if svc == nil {
		panic("subscription: service is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &StateHolder{
		svc:     svc,
		log:     slog.Default(),
		updates: make(chan struct{}, 1),
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.state = State{SandboxDemoMode: svc.SandboxDemoMode(ctx)}

	// Subscribe before returning so no purchase event can slip past the
	// holder between construction and the observe loop starting up.
	sub := svc.ObservePurchaseUpdates(ctx)

	h.wg.Add(3)
	go func() {
		defer h.wg.Done()
		h.LoadPlans(ctx)
	}()
	go func() {
		defer h.wg.Done()
		h.LoadActiveSubscriptions(ctx)
	}()
	go func() {
		defer h.wg.Done()
		h.observe(ctx, sub)
	}()

	return h
}

// Close stops the update subscription and waits for in-flight loads.
func (h *StateHolder) Close() {
	h.cancel()
	h.wg.Wait()
}

// State returns the current snapshot.
func (h *StateHolder) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Updates returns a coalescing change-notification channel: at most one
// pending signal, read the snapshot with State after each one.
func (h *StateHolder) Updates() <-chan struct{} {
	return h.updates
}

// update swaps in a new snapshot and signals observers.
func (h *StateHolder) update(fn func(State) State) {
	h.mu.Lock()
	h.state = fn(h.state)
	h.mu.Unlock()

	select {
	case h.updates <- struct{}{}:
	default:
	}
}

// LoadPlans refreshes the purchasable plans. Failures land in the error
// message; the previous plan list is kept.
func (h *StateHolder) LoadPlans(ctx context.Context) {
	h.update(func(s State) State {
		s.Loading = true
		s.ErrorMessage = ""
		return s
	})

	plans, source, err := h.svc.GetSubscriptionPlans(ctx)
	if err != nil {
		h.update(func(s State) State {
			s.Loading = false
			s.ErrorMessage = err.Error()
			return s
		})
		return
	}

	h.update(func(s State) State {
		s.Loading = false
		s.Plans = plans
		s.CatalogSource = source
		return s
	})
}

// LoadActiveSubscriptions refreshes the active-subscription list. Failures
// clear the list rather than surfacing an error.
func (h *StateHolder) LoadActiveSubscriptions(ctx context.Context) {
	plans, err := h.svc.GetActiveSubscriptions(ctx)
	if err != nil {
		h.log.Warn("failed to load active subscriptions", slog.Any("error", err))
		plans = nil
	}
	h.update(func(s State) State {
		s.ActiveSubscriptions = plans
		return s
	})
}

// Purchase launches a purchase flow for the composite offer id. The launch
// outcome lands in LastResult; the terminal outcome arrives later through
// the update subscription.
func (h *StateHolder) Purchase(ctx context.Context, host billing.Host, offerID string) {
	h.update(func(s State) State {
		s.PurchaseInProgress = true
		s.ErrorMessage = ""
		s.LastResult = nil
		return s
	})

	res, err := h.svc.PurchaseSubscription(ctx, host, offerID)
	if err != nil {
		failed := billing.Errorf("%s", err.Error())
		h.update(func(s State) State {
			s.PurchaseInProgress = false
			s.ErrorMessage = err.Error()
			s.LastResult = &failed
			return s
		})
		return
	}

	h.update(func(s State) State {
		s.PurchaseInProgress = false
		s.LastResult = &res
		if res.Kind == billing.ResultError {
			s.ErrorMessage = res.Message
		}
		return s
	})
}

// Refresh reloads plans and active subscriptions in parallel.
func (h *StateHolder) Refresh(ctx context.Context) {
	h.update(func(s State) State {
		s.Refreshing = true
		s.ErrorMessage = ""
		return s
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		h.LoadPlans(ctx)
	}()
	go func() {
		defer wg.Done()
		h.LoadActiveSubscriptions(ctx)
	}()
	wg.Wait()

	h.update(func(s State) State {
		s.Refreshing = false
		return s
	})
}

// ClearError drops the error message.
func (h *StateHolder) ClearError() {
	h.update(func(s State) State {
		s.ErrorMessage = ""
		return s
	})
}

// ClearLastResult drops the last purchase result.
func (h *StateHolder) ClearLastResult() {
	h.update(func(s State) State {
		s.LastResult = nil
		return s
	})
}

// ToggleLayout flips the layout orientation flag.
func (h *StateHolder) ToggleLayout() {
	h.update(func(s State) State {
		s.HorizontalLayout = !s.HorizontalLayout
		return s
	})
}

// ToggleSandboxMode persists and reflects the sandbox demo flag.
func (h *StateHolder) ToggleSandboxMode(ctx context.Context, enabled bool) {
	if err := h.svc.SetSandboxDemoMode(ctx, enabled); err != nil {
		h.log.Error("failed to persist sandbox demo mode", slog.Any("error", err))
	}
	h.update(func(s State) State {
		s.SandboxDemoMode = enabled
		return s
	})
}

// ManageSubscription resolves the subscription-management page URL.
func (h *StateHolder) ManageSubscription(ctx context.Context, productID string) (string, error) {
	return h.svc.ManageSubscriptionURL(ctx, productID)
}

// observe consumes the reconciled purchase-result feed. Each event updates
// the in-progress flag and the last result; a success triggers both reloads.
func (h *StateHolder) observe(ctx context.Context, sub *billing.FeedSub[billing.PurchaseResult]) {
	for {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-sub.Events():
			if !ok {
				return
			}
			h.update(func(s State) State {
				s.PurchaseInProgress = res.Kind == billing.ResultPending
				s.LastResult = &res
				return s
			})
			if res.Kind == billing.ResultSuccess {
				h.LoadPlans(ctx)
				h.LoadActiveSubscriptions(ctx)
			}
		}
	}
}
