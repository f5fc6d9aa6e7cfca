package subscription_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/storekit/pkg/prefs"
	"github.com/dmitrymomot/storekit/svc/billing"
	"github.com/dmitrymomot/storekit/svc/subscription"
)

func newTestHolder(t *testing.T, gw *fakeGateway) *subscription.StateHolder {
	t.Helper()

	svc, _ := newTestService(t, gw)
	holder := subscription.NewStateHolder(svc)
	t.Cleanup(holder.Close)
	return holder
}

func waitState(t *testing.T, holder *subscription.StateHolder, cond func(subscription.State) bool) subscription.State {
	t.Helper()

	var last subscription.State
	require.Eventually(t, func() bool {
		last = holder.State()
		return cond(last)
	}, 2*time.Second, 10*time.Millisecond, "state condition never met; last state: %+v", last)
	return last
}

func TestStateHolderInitialLoad(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway()
	gw.entries = []billing.CatalogEntry{liveEntry()}
	gw.records = []billing.OwnershipRecord{{
		ProductIDs:    []string{"premium_access"},
		PurchaseToken: "tok-owned",
		State:         billing.PurchaseStatePurchased,
		Acknowledged:  true,
		AutoRenewing:  true,
	}}
	holder := newTestHolder(t, gw)

	state := waitState(t, holder, func(s subscription.State) bool {
		return len(s.Plans) == 3 && len(s.ActiveSubscriptions) == 1 && !s.Loading
	})
	assert.Equal(t, subscription.CatalogLive, state.CatalogSource)
	assert.Empty(t, state.ErrorMessage)
	assert.False(t, state.PurchaseInProgress)
}

func TestStateHolderMockFallback(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway()
	gw.catalogErr = assert.AnError
	holder := newTestHolder(t, gw)

	state := waitState(t, holder, func(s subscription.State) bool {
		return len(s.Plans) == 3 && !s.Loading
	})
	assert.Equal(t, subscription.CatalogMock, state.CatalogSource)
	for _, p := range state.Plans {
		assert.True(t, p.Mock)
	}
}

func TestStateHolderPurchase(t *testing.T) {
	t.Parallel()

	t.Run("validation failure surfaces as error message", func(t *testing.T) {
		t.Parallel()

		gw := newFakeGateway()
		holder := newTestHolder(t, gw)
		waitState(t, holder, func(s subscription.State) bool { return !s.Loading })

		// Cold cache: the catalog query above served mock data only.
		holder.Purchase(context.Background(), nil, "premium_access:first-monthly")

		state := holder.State()
		assert.Contains(t, state.ErrorMessage, "refresh plans first")
		require.NotNil(t, state.LastResult)
		assert.Equal(t, billing.ResultError, state.LastResult.Kind)
		assert.False(t, state.PurchaseInProgress)
	})

	t.Run("launch result lands in last result", func(t *testing.T) {
		t.Parallel()

		gw := newFakeGateway()
		gw.entries = []billing.CatalogEntry{liveEntry()}
		holder := newTestHolder(t, gw)
		waitState(t, holder, func(s subscription.State) bool {
			return len(s.Plans) == 3 && !s.Loading
		})

		holder.Purchase(context.Background(), nil, "premium_access:first-monthly")

		state := holder.State()
		require.NotNil(t, state.LastResult)
		assert.Equal(t, billing.ResultPending, state.LastResult.Kind)
		assert.Empty(t, state.ErrorMessage)
	})

	t.Run("success event triggers reloads", func(t *testing.T) {
		t.Parallel()

		gw := newFakeGateway()
		gw.entries = []billing.CatalogEntry{liveEntry()}
		holder := newTestHolder(t, gw)
		waitState(t, holder, func(s subscription.State) bool {
			return len(s.Plans) == 3 && !s.Loading
		})
		before := gw.catalogQueries()

		holder.Purchase(context.Background(), nil, "premium_access:first-monthly")
		gw.emit(billing.Success())

		state := waitState(t, holder, func(s subscription.State) bool {
			return s.LastResult != nil && s.LastResult.Kind == billing.ResultSuccess
		})
		assert.False(t, state.PurchaseInProgress)

		// The success reload queries the catalog again.
		waitState(t, holder, func(subscription.State) bool {
			return gw.catalogQueries() > before
		})
	})

	t.Run("pending event flags purchase in progress", func(t *testing.T) {
		t.Parallel()

		gw := newFakeGateway()
		holder := newTestHolder(t, gw)
		waitState(t, holder, func(s subscription.State) bool { return !s.Loading })

		gw.emit(billing.Pending())
		state := waitState(t, holder, func(s subscription.State) bool {
			return s.LastResult != nil && s.LastResult.Kind == billing.ResultPending
		})
		assert.True(t, state.PurchaseInProgress)

		gw.emit(billing.UserCancelled())
		state = waitState(t, holder, func(s subscription.State) bool {
			return s.LastResult != nil && s.LastResult.Kind == billing.ResultUserCancelled
		})
		assert.False(t, state.PurchaseInProgress)
	})
}

func TestStateHolderIntents(t *testing.T) {
	t.Parallel()

	t.Run("toggle layout", func(t *testing.T) {
		t.Parallel()

		holder := newTestHolder(t, newFakeGateway())
		require.False(t, holder.State().HorizontalLayout)

		holder.ToggleLayout()
		assert.True(t, holder.State().HorizontalLayout)
		holder.ToggleLayout()
		assert.False(t, holder.State().HorizontalLayout)
	})

	t.Run("clear error and last result", func(t *testing.T) {
		t.Parallel()

		gw := newFakeGateway()
		holder := newTestHolder(t, gw)
		waitState(t, holder, func(s subscription.State) bool { return !s.Loading })

		holder.Purchase(context.Background(), nil, "malformed")
		require.NotEmpty(t, holder.State().ErrorMessage)
		require.NotNil(t, holder.State().LastResult)

		holder.ClearError()
		assert.Empty(t, holder.State().ErrorMessage)

		holder.ClearLastResult()
		assert.Nil(t, holder.State().LastResult)
	})

	t.Run("toggle sandbox mode persists", func(t *testing.T) {
		t.Parallel()

		gw := newFakeGateway()
		svc, _ := newTestService(t, gw)
		holder := subscription.NewStateHolder(svc)
		t.Cleanup(holder.Close)

		holder.ToggleSandboxMode(context.Background(), true)
		assert.True(t, holder.State().SandboxDemoMode)
		assert.True(t, svc.SandboxDemoMode(context.Background()))

		holder.ToggleSandboxMode(context.Background(), false)
		assert.False(t, holder.State().SandboxDemoMode)
	})

	t.Run("refresh reloads both lists", func(t *testing.T) {
		t.Parallel()

		gw := newFakeGateway()
		gw.entries = []billing.CatalogEntry{liveEntry()}
		holder := newTestHolder(t, gw)
		waitState(t, holder, func(s subscription.State) bool {
			return len(s.Plans) == 3 && !s.Loading
		})
		before := gw.catalogQueries()

		holder.Refresh(context.Background())

		state := holder.State()
		assert.False(t, state.Refreshing)
		assert.Greater(t, gw.catalogQueries(), before)
	})

	t.Run("manage subscription resolves the deep link", func(t *testing.T) {
		t.Parallel()

		svc := subscription.NewService(newFakeGateway(), prefs.NewMemoryStore(), subscription.Config{
			ManageURL: "https://play.google.com/store/account/subscriptions",
		})
		t.Cleanup(svc.Close)
		holder := subscription.NewStateHolder(svc)
		t.Cleanup(holder.Close)

		u, err := holder.ManageSubscription(context.Background(), "premium_access")
		require.NoError(t, err)
		assert.Contains(t, u, "sku=premium_access")
	})
}

func TestStateHolderUpdates(t *testing.T) {
	t.Parallel()

	holder := newTestHolder(t, newFakeGateway())

	// Drain any pending signal from the initial loads.
	waitState(t, holder, func(s subscription.State) bool { return !s.Loading })
	select {
	case <-holder.Updates():
	default:
	}

	holder.ToggleLayout()

	select {
	case <-holder.Updates():
	case <-time.After(time.Second):
		t.Fatal("no update notification received")
	}
}
