package billing_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/storekit/svc/billing"
)

func readySandbox(t *testing.T, opts ...billing.SandboxOption) *billing.SandboxDriver {
	t.Helper()

	driver := billing.NewSandboxDriver(opts...)
	driver.Connect(billing.ConnectionCallbacks{})
	return driver
}

func TestSandboxDriverLaunch(t *testing.T) {
	t.Parallel()

	t.Run("rejects launch before connect", func(t *testing.T) {
		t.Parallel()

		driver := billing.NewSandboxDriver(billing.WithSandboxCatalog(testCatalogEntry()))
		res := driver.LaunchPurchaseFlow(nil, billing.LaunchParams{
			Entry:      testCatalogEntry(),
			OfferToken: "tok-monthly",
		})
		assert.Equal(t, billing.CodeServiceUnavailable, res.Code)
	})

	t.Run("rejects unknown offer token", func(t *testing.T) {
		t.Parallel()

		driver := readySandbox(t, billing.WithSandboxCatalog(testCatalogEntry()))
		res := driver.LaunchPurchaseFlow(nil, billing.LaunchParams{
			Entry:      testCatalogEntry(),
			OfferToken: "tok-unknown",
		})
		assert.Equal(t, billing.CodeDeveloperError, res.Code)
	})

	t.Run("launch records unacknowledged ownership", func(t *testing.T) {
		t.Parallel()

		driver := readySandbox(t, billing.WithSandboxCatalog(testCatalogEntry()))
		res := driver.LaunchPurchaseFlow(nil, billing.LaunchParams{
			Entry:      testCatalogEntry(),
			OfferToken: "tok-monthly",
		})
		require.Equal(t, billing.CodeOK, res.Code)

		done := make(chan []billing.OwnershipRecord, 1)
		driver.QueryOwnership(func(records []billing.OwnershipRecord, err error) {
			require.NoError(t, err)
			done <- records
		})

		records := <-done
		require.Len(t, records, 1)
		assert.True(t, records[0].HasProduct("premium"))
		assert.Equal(t, billing.PurchaseStatePurchased, records[0].State)
		assert.False(t, records[0].Acknowledged)
		assert.NotEmpty(t, records[0].PurchaseToken)
	})

	t.Run("replacement removes the old record", func(t *testing.T) {
		t.Parallel()

		driver := readySandbox(t,
			billing.WithSandboxCatalog(testCatalogEntry()),
			billing.WithSandboxOwnership(billing.OwnershipRecord{
				OrderID:       "order-old",
				ProductIDs:    []string{"basic"},
				PurchaseToken: "tok-old",
				State:         billing.PurchaseStatePurchased,
				Acknowledged:  true,
			}),
		)

		res := driver.LaunchPurchaseFlow(nil, billing.LaunchParams{
			Entry:            testCatalogEntry(),
			OfferToken:       "tok-monthly",
			OldPurchaseToken: "tok-old",
			ReplacementMode:  billing.ReplacementChargeProratedPrice,
		})
		require.Equal(t, billing.CodeOK, res.Code)

		done := make(chan []billing.OwnershipRecord, 1)
		driver.QueryOwnership(func(records []billing.OwnershipRecord, err error) {
			require.NoError(t, err)
			done <- records
		})

		records := <-done
		require.Len(t, records, 1)
		assert.True(t, records[0].HasProduct("premium"))
		assert.NotEqual(t, "tok-old", records[0].PurchaseToken)
	})

	t.Run("auto complete notifies the listener", func(t *testing.T) {
		t.Parallel()

		driver := readySandbox(t,
			billing.WithSandboxCatalog(testCatalogEntry()),
			billing.WithSandboxAutoComplete(),
		)

		updates := make(chan billing.PurchaseUpdate, 1)
		driver.SetUpdateListener(func(u billing.PurchaseUpdate) {
			updates <- u
		})

		res := driver.LaunchPurchaseFlow(nil, billing.LaunchParams{
			Entry:      testCatalogEntry(),
			OfferToken: "tok-monthly",
		})
		require.Equal(t, billing.CodeOK, res.Code)

		select {
		case u := <-updates:
			assert.Equal(t, billing.CodeOK, u.Code)
			require.Len(t, u.Records, 1)
			assert.True(t, u.Records[0].HasProduct("premium"))
		case <-time.After(time.Second):
			t.Fatal("no update received")
		}
	})
}

func TestLoadCatalogFile(t *testing.T) {
	t.Parallel()

	t.Run("parses a catalog file", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "catalog.yml")
		data := `products:
  - product_id: premium
    name: Premium
    description: Premium subscription
    offers:
      - base_plan_id: monthly
        offer_token: tok-monthly
        price_formatted: "$4.99"
        price_micros: 4990000
        currency_code: USD
        billing_period: P1M
      - base_plan_id: yearly
        offer_token: tok-yearly
        price_formatted: "$49.99"
        price_micros: 49990000
        currency_code: USD
        billing_period: P1Y
`
		require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

		entries, err := billing.LoadCatalogFile(path)
		require.NoError(t, err)
		require.Len(t, entries, 1)

		entry := entries[0]
		assert.Equal(t, "premium", entry.ProductID)
		require.Len(t, entry.Offers, 2)

		offer, ok := entry.FindOffer("yearly")
		require.True(t, ok)
		assert.Equal(t, "tok-yearly", offer.OfferToken)
		assert.Equal(t, int64(49_990_000), offer.LeadPhase().PriceMicros)
		assert.Equal(t, "P1Y", offer.LeadPhase().BillingPeriod)
	})

	t.Run("fails on a missing file", func(t *testing.T) {
		t.Parallel()

		_, err := billing.LoadCatalogFile(filepath.Join(t.TempDir(), "nope.yml"))
		assert.Error(t, err)
	})

	t.Run("fails on malformed yaml", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "broken.yml")
		require.NoError(t, os.WriteFile(path, []byte("products: {"), 0o600))

		_, err := billing.LoadCatalogFile(path)
		assert.Error(t, err)
	})
}
