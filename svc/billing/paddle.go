package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
)

// PaddleConfig holds configuration for the Paddle-backed driver.
type PaddleConfig struct {
	APIKey        string `env:"PADDLE_API_KEY,required"`
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET,required"`
	Environment   string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
	// CustomerID is the Paddle customer (ctm_xxx) this client acts for.
	CustomerID string `env:"PADDLE_CUSTOMER_ID"`
	// CheckoutSuccessURL is where the hosted checkout redirects after payment.
	CheckoutSuccessURL string `env:"PADDLE_CHECKOUT_SUCCESS_URL"`
}

// PaddleDriver implements Driver on top of the Paddle billing API.
//
// Paddle has no persistent device connection and no purchase UI of its own:
// a purchase-flow launch creates a transaction and reports its hosted
// checkout URL, and asynchronous purchase completion arrives as webhooks.
// HandleWebhook feeds verified webhook payloads into the driver, which
// maintains the ownership/history tables the gateway queries and fires the
// update listener the way an on-device SDK would.
//
// Offer tokens are Paddle price ids, so the catalog supplied at
// construction must use price ids as tokens.
type PaddleDriver struct {
	config  PaddleConfig
	catalog []CatalogEntry

	mu        sync.Mutex
	client    *paddle.SDK
	verifier  *paddle.WebhookVerifier
	listener  UpdateListener
	ownership []OwnershipRecord
	history   []HistoryRecord
}

// NewPaddleDriver creates a Paddle-backed driver serving the given catalog.
func NewPaddleDriver(config PaddleConfig, catalog []CatalogEntry) (*PaddleDriver, error) {
	if config.APIKey == "" {
		return nil, errors.New("paddle API key is required")
	}
	if config.WebhookSecret == "" {
		return nil, errors.New("paddle webhook secret is required")
	}
	if len(catalog) == 0 {
		return nil, errors.New("paddle catalog is required")
	}

	return &PaddleDriver{
		config:  config,
		catalog: catalog,
	}, nil
}

// Connect builds the SDK client for the configured environment.
func (d *PaddleDriver) Connect(cb ConnectionCallbacks) {
	var client *paddle.SDK
	var err error

	switch strings.ToLower(d.config.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(d.config.APIKey)
	case "production", "":
		client, err = paddle.New(d.config.APIKey)
	default:
		err = fmt.Errorf("invalid paddle environment: %s", d.config.Environment)
	}

	if err != nil {
		if cb.OnSetupFailed != nil {
			cb.OnSetupFailed(err)
		}
		return
	}

	d.mu.Lock()
	d.client = client
	d.verifier = paddle.NewWebhookVerifier(d.config.WebhookSecret)
	d.mu.Unlock()

	if cb.OnReady != nil {
		cb.OnReady()
	}
}

func (d *PaddleDriver) Disconnect() {
	d.mu.Lock()
	d.client = nil
	d.verifier = nil
	d.mu.Unlock()
}

func (d *PaddleDriver) SetUpdateListener(fn UpdateListener) {
	d.mu.Lock()
	d.listener = fn
	d.mu.Unlock()
}

func (d *PaddleDriver) QueryCatalog(productIDs []string, fn func([]CatalogEntry, error)) {
	var entries []CatalogEntry
	for _, e := range d.catalog {
		for _, id := range productIDs {
			if e.ProductID == id {
				entries = append(entries, e)
				break
			}
		}
	}
	go fn(entries, nil)
}

func (d *PaddleDriver) QueryOwnership(fn func([]OwnershipRecord, error)) {
	d.mu.Lock()
	records := make([]OwnershipRecord, len(d.ownership))
	copy(records, d.ownership)
	d.mu.Unlock()

	go fn(records, nil)
}

func (d *PaddleDriver) QueryHistory(fn func([]HistoryRecord, error)) {
	d.mu.Lock()
	records := make([]HistoryRecord, len(d.history))
	copy(records, d.history)
	d.mu.Unlock()

	go fn(records, nil)
}

// Acknowledge marks the record acknowledged locally. Paddle has no
// acknowledgement call; the flag only serves the gateway contract.
func (d *PaddleDriver) Acknowledge(purchaseToken string, fn func(error)) {
	d.mu.Lock()
	for i := range d.ownership {
		if d.ownership[i].PurchaseToken == purchaseToken {
			d.ownership[i].Acknowledged = true
		}
	}
	d.mu.Unlock()

	go fn(nil)
}

// LaunchPurchaseFlow creates a Paddle transaction for the offer's price id
// and reports the hosted checkout URL. The purchase completes later, via
// webhook.
func (d *PaddleDriver) LaunchPurchaseFlow(host Host, params LaunchParams) LaunchResult {
	d.mu.Lock()
	client := d.client
	d.mu.Unlock()

	if client == nil {
		return LaunchResult{Code: CodeServiceUnavailable, Message: "paddle client not connected"}
	}
	if params.OfferToken == "" {
		return LaunchResult{Code: CodeDeveloperError, Message: "offer token is required"}
	}

	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  params.OfferToken,
		Quantity: 1,
	})

	req := &paddle.CreateTransactionRequest{
		Items: []paddle.CreateTransactionItems{*item},
		CustomData: paddle.CustomData{
			"product_id":         params.Entry.ProductID,
			"replacement_mode":   string(params.ReplacementMode),
			"old_purchase_token": params.OldPurchaseToken,
		},
	}
	if d.config.CheckoutSuccessURL != "" {
		req.Checkout = &paddle.TransactionCheckout{
			URL: paddle.PtrTo(d.config.CheckoutSuccessURL),
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	transaction, err := client.TransactionsClient.CreateTransaction(ctx, req)
	if err != nil {
		return LaunchResult{Code: CodeError, Message: fmt.Sprintf("failed to create paddle transaction: %v", err)}
	}

	var checkoutURL string
	if transaction.Checkout != nil && transaction.Checkout.URL != nil {
		checkoutURL = *transaction.Checkout.URL
	}
	if checkoutURL == "" {
		return LaunchResult{Code: CodeError, Message: "no checkout URL returned from paddle"}
	}

	return LaunchResult{Code: CodeOK, RedirectURL: checkoutURL}
}

// ManageURL returns a pre-authenticated customer portal link, scoped to the
// given subscription ids when provided.
func (d *PaddleDriver) ManageURL(ctx context.Context, subscriptionIDs ...string) (string, error) {
	d.mu.Lock()
	client := d.client
	d.mu.Unlock()

	if client == nil {
		return "", ErrNotReady
	}
	if d.config.CustomerID == "" {
		return "", errors.New("paddle customer ID is required for the customer portal")
	}

	session, err := client.CustomerPortalSessionsClient.CreateCustomerPortalSession(ctx, &paddle.CreateCustomerPortalSessionRequest{
		CustomerID:      d.config.CustomerID,
		SubscriptionIDs: subscriptionIDs,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create paddle customer portal session: %w", err)
	}
	if session.URLs.General.Overview == "" {
		return "", errors.New("no portal URL returned from paddle")
	}
	return session.URLs.General.Overview, nil
}

// HandleWebhook verifies and applies a Paddle webhook payload, updating the
// ownership tables and firing the update listener. This is the asynchronous
// purchase-completion path.
func (d *PaddleDriver) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	d.mu.Lock()
	verifier := d.verifier
	d.mu.Unlock()

	if verifier == nil {
		return ErrNotReady
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/webhook", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request for verification: %w", err)
	}
	req.Header.Set("Paddle-Signature", signature)

	valid, err := verifier.Verify(req)
	if err != nil {
		return fmt.Errorf("webhook verification error: %w", err)
	}
	if !valid {
		return errors.New("webhook signature verification failed")
	}

	var event struct {
		EventType string         `json:"event_type"`
		Data      map[string]any `json:"data"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("failed to parse webhook payload: %w", err)
	}

	d.applyEvent(event.EventType, event.Data)
	return nil
}

func (d *PaddleDriver) applyEvent(eventType string, data map[string]any) {
	switch eventType {
	case "transaction.completed", "transaction.payment_succeeded":
		record := d.recordFromEvent(data)
		d.mu.Lock()
		d.ownership = append(d.ownership, record)
		d.history = append(d.history, HistoryRecord{
			ProductIDs:    record.ProductIDs,
			PurchaseToken: record.PurchaseToken,
			PurchaseTime:  record.PurchaseTime,
		})
		listener := d.listener
		d.mu.Unlock()

		if listener != nil {
			listener(PurchaseUpdate{Code: CodeOK, Records: []OwnershipRecord{record}})
		}

	case "transaction.payment_failed":
		d.mu.Lock()
		listener := d.listener
		d.mu.Unlock()

		if listener != nil {
			listener(PurchaseUpdate{Code: CodeError, Message: "payment failed"})
		}

	case "subscription.canceled":
		subID, _ := data["id"].(string)
		d.mu.Lock()
		kept := d.ownership[:0]
		for _, r := range d.ownership {
			if r.PurchaseToken != subID {
				kept = append(kept, r)
			}
		}
		d.ownership = kept
		d.mu.Unlock()
	}
}

// recordFromEvent maps a transaction event body to an ownership record.
// The purchase token is the Paddle subscription id when present, falling
// back to the transaction id.
func (d *PaddleDriver) recordFromEvent(data map[string]any) OwnershipRecord {
	record := OwnershipRecord{
		State:        PurchaseStatePurchased,
		AutoRenewing: true,
		PurchaseTime: time.Now().UTC(),
	}

	if txnID, ok := data["id"].(string); ok {
		record.OrderID = txnID
		record.PurchaseToken = txnID
	}
	if subID, ok := data["subscription_id"].(string); ok && subID != "" {
		record.PurchaseToken = subID
	}
	if customData, ok := data["custom_data"].(map[string]any); ok {
		if productID, ok := customData["product_id"].(string); ok && productID != "" {
			record.ProductIDs = []string{productID}
		}
	}
	if len(record.ProductIDs) == 0 {
		// Fall back to resolving the price id against the catalog.
		if items, ok := data["items"].([]any); ok && len(items) > 0 {
			if item, ok := items[0].(map[string]any); ok {
				if priceID, ok := item["price_id"].(string); ok {
					if productID := d.productByPriceID(priceID); productID != "" {
						record.ProductIDs = []string{productID}
					}
				}
			}
		}
	}
	return record
}

func (d *PaddleDriver) productByPriceID(priceID string) string {
	for _, e := range d.catalog {
		for _, o := range e.Offers {
			if o.OfferToken == priceID {
				return e.ProductID
			}
		}
	}
	return ""
}
