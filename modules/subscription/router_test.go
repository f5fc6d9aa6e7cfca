package subscription_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	module "github.com/dmitrymomot/storekit/modules/subscription"
	"github.com/dmitrymomot/storekit/pkg/prefs"
	"github.com/dmitrymomot/storekit/svc/billing"
	subsvc "github.com/dmitrymomot/storekit/svc/subscription"
)

// newTestRouter wires a sandbox-backed stack: driver, gateway client,
// reconciler, state holder, router.
func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	driver := billing.NewSandboxDriver(billing.WithSandboxCatalog(billing.CatalogEntry{
		ProductID:   "premium_access",
		Name:        "Premium Access",
		Description: "Premium subscription",
		Offers: []billing.Offer{{
			BasePlanID: "first-monthly",
			OfferToken: "tok-first",
			Phases: []billing.PricingPhase{{
				PriceFormatted: "$4.99",
				PriceMicros:    4_990_000,
				CurrencyCode:   "CAD",
				BillingPeriod:  "P1M",
			}},
		}},
	}))
	client := billing.NewClient(driver)
	t.Cleanup(client.Shutdown)

	svc := subsvc.NewService(client, prefs.NewMemoryStore(), subsvc.Config{
		ProductIDs: []string{"premium_access"},
		ManageURL:  "https://play.google.com/store/account/subscriptions",
		RetryDelay: time.Millisecond,
	})
	t.Cleanup(svc.Close)

	holder := subsvc.NewStateHolder(svc)
	t.Cleanup(holder.Close)

	return module.Router(module.RouterOptions{Holder: holder})
}

type stateEnvelope struct {
	Code string       `json:"code"`
	Data subsvc.State `json:"data"`
}

func getState(t *testing.T, router http.Handler, method, path string, body string) (int, stateEnvelope) {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var env stateEnvelope
	if rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec.Code, env
}

func TestRouterState(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t)

	// The initial loads run asynchronously; poll until the live catalog
	// is reflected.
	require.Eventually(t, func() bool {
		code, env := getState(t, router, http.MethodGet, "/state", "")
		return code == http.StatusOK && len(env.Data.Plans) == 1 && !env.Data.Loading
	}, 2*time.Second, 20*time.Millisecond)

	code, env := getState(t, router, http.MethodGet, "/state", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "state", env.Code)
	assert.Equal(t, subsvc.CatalogLive, env.Data.CatalogSource)
	assert.Equal(t, "premium_access", env.Data.Plans[0].ProductID)
}

func TestRouterRefresh(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t)

	code, env := getState(t, router, http.MethodPost, "/plans/refresh", "")
	require.Equal(t, http.StatusOK, code)
	assert.False(t, env.Data.Refreshing)
	assert.Len(t, env.Data.Plans, 1)
}

func TestRouterPurchase(t *testing.T) {
	t.Parallel()

	t.Run("rejects malformed body", func(t *testing.T) {
		t.Parallel()

		router := newTestRouter(t)
		code, _ := getState(t, router, http.MethodPost, "/purchase", "{not json")
		assert.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("requires offer id", func(t *testing.T) {
		t.Parallel()

		router := newTestRouter(t)
		code, _ := getState(t, router, http.MethodPost, "/purchase", `{"offer_id":""}`)
		assert.Equal(t, http.StatusUnprocessableEntity, code)
	})

	t.Run("launches a purchase and reflects it in state", func(t *testing.T) {
		t.Parallel()

		router := newTestRouter(t)
		require.Eventually(t, func() bool {
			_, env := getState(t, router, http.MethodGet, "/state", "")
			return len(env.Data.Plans) == 1 && env.Data.CatalogSource == subsvc.CatalogLive
		}, 2*time.Second, 20*time.Millisecond)

		code, env := getState(t, router, http.MethodPost, "/purchase", `{"offer_id":"premium_access:first-monthly"}`)
		require.Equal(t, http.StatusOK, code)
		require.NotNil(t, env.Data.LastResult)
		assert.Equal(t, billing.ResultPending, env.Data.LastResult.Kind)
	})

	t.Run("surfaces validation failures in state", func(t *testing.T) {
		t.Parallel()

		router := newTestRouter(t)
		require.Eventually(t, func() bool {
			_, env := getState(t, router, http.MethodGet, "/state", "")
			return len(env.Data.Plans) == 1
		}, 2*time.Second, 20*time.Millisecond)

		code, env := getState(t, router, http.MethodPost, "/purchase", `{"offer_id":"premium_access:no-such-plan"}`)
		require.Equal(t, http.StatusOK, code)
		assert.Contains(t, env.Data.ErrorMessage, "plan not found")
	})
}

func TestRouterSandboxMode(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t)

	code, env := getState(t, router, http.MethodPost, "/sandbox-mode", `{"enabled":true}`)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, env.Data.SandboxDemoMode)

	code, env = getState(t, router, http.MethodPost, "/sandbox-mode", `{"enabled":false}`)
	require.Equal(t, http.StatusOK, code)
	assert.False(t, env.Data.SandboxDemoMode)
}

func TestRouterLayoutToggle(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t)

	code, env := getState(t, router, http.MethodPost, "/layout/toggle", "")
	require.Equal(t, http.StatusOK, code)
	assert.True(t, env.Data.HorizontalLayout)

	code, env = getState(t, router, http.MethodPost, "/layout/toggle", "")
	require.Equal(t, http.StatusOK, code)
	assert.False(t, env.Data.HorizontalLayout)
}

func TestRouterManageURL(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/manage-url?product_id=premium_access", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var env struct {
		Code string `json:"code"`
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "manage_url", env.Code)
	assert.Contains(t, env.Data.URL, "sku=premium_access")
}

func TestRouterClearEndpoints(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t)

	// Provoke an error and a last result with a cold-cache purchase of an
	// unknown product.
	code, env := getState(t, router, http.MethodPost, "/purchase", `{"offer_id":"other_product:plan"}`)
	require.Equal(t, http.StatusOK, code)
	require.NotEmpty(t, env.Data.ErrorMessage)
	require.NotNil(t, env.Data.LastResult)

	code, env = getState(t, router, http.MethodDelete, "/error", "")
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, env.Data.ErrorMessage)
	assert.NotNil(t, env.Data.LastResult)

	code, env = getState(t, router, http.MethodDelete, "/last-result", "")
	require.Equal(t, http.StatusOK, code)
	assert.Nil(t, env.Data.LastResult)
}
