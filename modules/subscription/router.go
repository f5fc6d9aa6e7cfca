package subscription

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/storekit/core"
	"github.com/dmitrymomot/storekit/pkg/binder"
	subsvc "github.com/dmitrymomot/storekit/svc/subscription"
)

// RouterOptions configures the subscription module router.
type RouterOptions struct {
	Holder *subsvc.StateHolder
}

type handlers struct {
	holder *subsvc.StateHolder
}

// Router exposes a state holder's snapshot and intents as a JSON API.
// Every mutating endpoint responds with the fresh state snapshot so
// clients never need a follow-up read.
func Router(opts RouterOptions) chi.Router {
	if opts.Holder == nil {
		panic("subscription module: state holder is required")
	}
	h := handlers{holder: opts.Holder}

	r := chi.NewRouter()
	r.Get("/state", h.state)
	r.Post("/plans/refresh", h.refresh)
	r.Post("/purchase", h.purchase)
	r.Post("/sandbox-mode", h.sandboxMode)
	r.Post("/layout/toggle", h.toggleLayout)
	r.Get("/manage-url", h.manageURL)
	r.Delete("/error", h.clearError)
	r.Delete("/last-result", h.clearLastResult)
	return r
}

func (h handlers) renderState(w http.ResponseWriter, r *http.Request) {
	core.Render(w, r, core.JSON("state", h.holder.State()))
}

func (h handlers) state(w http.ResponseWriter, r *http.Request) {
	h.renderState(w, r)
}

func (h handlers) refresh(w http.ResponseWriter, r *http.Request) {
	h.holder.Refresh(r.Context())
	h.renderState(w, r)
}

type purchaseRequest struct {
	// OfferID is the composite "productID:basePlanID" identifier.
	OfferID string `json:"offer_id"`
	// Host is an opaque handle for the platform's purchase UI surface.
	Host string `json:"host,omitempty"`
}

func (h handlers) purchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := binder.JSON(r, &req); err != nil {
		core.Render(w, r, core.JSONError(errors.Join(core.ErrBadRequest, err)))
		return
	}
	if req.OfferID == "" {
		core.Render(w, r, core.JSONError(errors.Join(core.ErrUnprocessableEntity, errors.New("offer_id is required"))))
		return
	}

	h.holder.Purchase(r.Context(), req.Host, req.OfferID)
	h.renderState(w, r)
}

type sandboxModeRequest struct {
	Enabled bool `json:"enabled"`
}

func (h handlers) sandboxMode(w http.ResponseWriter, r *http.Request) {
	var req sandboxModeRequest
	if err := binder.JSON(r, &req); err != nil {
		core.Render(w, r, core.JSONError(errors.Join(core.ErrBadRequest, err)))
		return
	}

	h.holder.ToggleSandboxMode(r.Context(), req.Enabled)
	h.renderState(w, r)
}

func (h handlers) toggleLayout(w http.ResponseWriter, r *http.Request) {
	h.holder.ToggleLayout()
	h.renderState(w, r)
}

type manageURLResponse struct {
	URL string `json:"url"`
}

func (h handlers) manageURL(w http.ResponseWriter, r *http.Request) {
	u, err := h.holder.ManageSubscription(r.Context(), r.URL.Query().Get("product_id"))
	if err != nil {
		core.Render(w, r, core.JSONError(errors.Join(core.ErrServiceUnavailable, err)))
		return
	}
	core.Render(w, r, core.JSON("manage_url", manageURLResponse{URL: u}))
}

func (h handlers) clearError(w http.ResponseWriter, r *http.Request) {
	h.holder.ClearError()
	h.renderState(w, r)
}

func (h handlers) clearLastResult(w http.ResponseWriter, r *http.Request) {
	h.holder.ClearLastResult()
	h.renderState(w, r)
}
