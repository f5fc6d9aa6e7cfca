package billing

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the client logger. Nil loggers are ignored.
func WithLogger(log *slog.Logger) ClientOption {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// Client owns the single connection handle to the billing platform and
// presents every driver operation as a single-shot result instead of a
// callback. Unsolicited purchase notifications are republished on a hot
// update feed.
type Client struct {
	driver Driver
	log    *slog.Logger

	mu        sync.Mutex
	connected bool
	ready     bool

	feed *Feed[PurchaseResult]

	// ackWG tracks background acknowledgement goroutines so tests and
	// shutdown can wait for them.
	ackWG sync.WaitGroup
}

// NewClient wraps a driver. Panics on a nil driver to fail fast during
// initialization.
func NewClient(driver Driver, opts ...ClientOption) *Client {
	if driver == nil {
		panic("billing: driver is required")
	}

	c := &Client{
		driver: driver,
		log:    slog.Default(),
		feed:   NewFeed[PurchaseResult](),
	}
	for _, opt := range opts {
		opt(c)
	}

	driver.SetUpdateListener(c.handleUpdate)
	return c
}

// StartConnection establishes the platform connection. It resolves when the
// service reports ready, or fails with a described error, including on
// unexpected disconnection during setup. Calling it while already connected
// is a cheap no-op, which makes it usable as a reconnect strategy.
func (c *Client) StartConnection(ctx context.Context) error {
	c.mu.Lock()
	if c.ready {
		c.mu.Unlock()
		return nil
	}
	c.connected = true
	c.mu.Unlock()

	d := newDeferred[struct{}]()
	c.driver.Connect(ConnectionCallbacks{
		OnReady: func() {
			c.mu.Lock()
			c.ready = true
			c.mu.Unlock()
			d.resolve(struct{}{}, nil)
		},
		OnSetupFailed: func(err error) {
			d.resolve(struct{}{}, errors.Join(ErrSetupFailed, err))
		},
		OnDisconnected: func() {
			c.mu.Lock()
			c.ready = false
			c.mu.Unlock()
			// Resolves the in-flight connect if setup never finished;
			// no-op for later disconnections.
			d.resolve(struct{}{}, ErrDisconnected)
		},
	})

	_, err := d.await(ctx)
	return err
}

// IsReady reports whether the connection is usable. No side effects.
func (c *Client) IsReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// EndConnection releases the connection handle. Safe to call when already
// disconnected.
func (c *Client) EndConnection() {
	c.mu.Lock()
	wasConnected := c.connected
	c.connected = false
	c.ready = false
	c.mu.Unlock()

	if wasConnected {
		c.driver.Disconnect()
	}
}

// Shutdown ends the connection, waits for background acknowledgements and
// closes the update feed.
func (c *Client) Shutdown() {
	c.EndConnection()
	c.ackWG.Wait()
	c.feed.Close()
}

// QueryCatalog returns the catalog entries matching the given product ids.
// Fails immediately with ErrNotReady if the connection is not established.
func (c *Client) QueryCatalog(ctx context.Context, productIDs []string) ([]CatalogEntry, error) {
	if !c.IsReady() {
		return nil, ErrNotReady
	}

	d := newDeferred[[]CatalogEntry]()
	c.driver.QueryCatalog(productIDs, func(entries []CatalogEntry, err error) {
		if err != nil {
			d.resolve(nil, errors.Join(ErrQueryFailed, err))
			return
		}
		d.resolve(entries, nil)
	})
	return d.await(ctx)
}

// QueryActiveOwnership returns current active purchase records. Any record
// still awaiting acknowledgement is acknowledged on a background goroutine:
// unacknowledged purchases are auto-refunded by the platform after a grace
// period, and acknowledgement failures must not fail the read.
func (c *Client) QueryActiveOwnership(ctx context.Context) ([]OwnershipRecord, error) {
	if !c.IsReady() {
		return nil, ErrNotReady
	}

	d := newDeferred[[]OwnershipRecord]()
	c.driver.QueryOwnership(func(records []OwnershipRecord, err error) {
		if err != nil {
			d.resolve(nil, errors.Join(ErrQueryFailed, err))
			return
		}
		d.resolve(records, nil)
	})

	records, err := d.await(ctx)
	if err != nil {
		return nil, err
	}

	for _, r := range records {
		if r.State == PurchaseStatePurchased && !r.Acknowledged {
			c.acknowledgeAsync(r)
		}
	}
	return records, nil
}

// QueryPurchaseHistory returns historical purchase records, including
// lapsed ones.
func (c *Client) QueryPurchaseHistory(ctx context.Context) ([]HistoryRecord, error) {
	if !c.IsReady() {
		return nil, ErrNotReady
	}

	d := newDeferred[[]HistoryRecord]()
	c.driver.QueryHistory(func(records []HistoryRecord, err error) {
		if err != nil {
			d.resolve(nil, errors.Join(ErrQueryFailed, err))
			return
		}
		d.resolve(records, nil)
	})
	return d.await(ctx)
}

// AcknowledgePurchase confirms a purchase. A record that is already
// acknowledged, or not in the purchased state, is a no-op success.
func (c *Client) AcknowledgePurchase(ctx context.Context, record OwnershipRecord) error {
	if record.State != PurchaseStatePurchased || record.Acknowledged {
		return nil
	}
	if !c.IsReady() {
		return ErrNotReady
	}

	d := newDeferred[struct{}]()
	c.driver.Acknowledge(record.PurchaseToken, func(err error) {
		if err != nil {
			d.resolve(struct{}{}, errors.Join(ErrAcknowledgeFailed, err))
			return
		}
		d.resolve(struct{}{}, nil)
	})
	_, err := d.await(ctx)
	return err
}

// LaunchPurchaseFlow hands control to the platform's purchase UI. The
// returned result reflects only the launch call's own response code: a
// launched flow reports Pending, and Success is only ever observed on the
// update feed.
func (c *Client) LaunchPurchaseFlow(host Host, entry CatalogEntry, offerToken, oldPurchaseToken string, mode ReplacementMode) PurchaseResult {
	if !c.IsReady() {
		return Errorf("billing client not ready")
	}

	res := c.driver.LaunchPurchaseFlow(host, LaunchParams{
		Entry:            entry,
		OfferToken:       offerToken,
		OldPurchaseToken: oldPurchaseToken,
		ReplacementMode:  mode,
	})

	c.log.Debug("purchase flow launched",
		slog.String("product_id", entry.ProductID),
		slog.String("code", string(res.Code)),
	)

	switch res.Code {
	case CodeOK:
		r := Pending()
		r.RedirectURL = res.RedirectURL
		return r
	case CodeUserCancelled:
		return UserCancelled()
	default:
		c.log.Error("purchase flow launch failed",
			slog.String("code", string(res.Code)),
			slog.String("message", res.Message),
		)
		return Errorf("%s", res.Message)
	}
}

// ObserveOwnershipUpdates subscribes to the unsolicited purchase-update
// feed. The subscription lives until the context is cancelled or the
// subscriber is closed; events published before subscribing are not replayed.
func (c *Client) ObserveOwnershipUpdates(ctx context.Context) *FeedSub[PurchaseResult] {
	return c.feed.Subscribe(ctx)
}

// handleUpdate maps raw driver notifications onto the update feed.
// Purchased-but-unacknowledged records are acknowledged first, then
// reported as Success; pending records are reported as Pending.
func (c *Client) handleUpdate(u PurchaseUpdate) {
	switch u.Code {
	case CodeOK:
		for _, r := range u.Records {
			switch {
			case r.State == PurchaseStatePurchased && !r.Acknowledged:
				c.ackWG.Add(1)
				go func(rec OwnershipRecord) {
					defer c.ackWG.Done()
					if err := c.AcknowledgePurchase(context.Background(), rec); err != nil {
						c.log.Error("failed to acknowledge purchase",
							slog.String("order_id", rec.OrderID),
							slog.Any("error", err),
						)
					}
					c.feed.Publish(Success())
				}(r)
			case r.State == PurchaseStatePending:
				c.feed.Publish(Pending())
			}
		}
	case CodeUserCancelled:
		c.feed.Publish(UserCancelled())
	default:
		c.log.Error("purchase update error",
			slog.String("code", string(u.Code)),
			slog.String("message", u.Message),
		)
		c.feed.Publish(Errorf("%s", u.Message))
	}
}

// acknowledgeAsync acknowledges a record without blocking the caller.
func (c *Client) acknowledgeAsync(record OwnershipRecord) {
	c.ackWG.Add(1)
	go func() {
		defer c.ackWG.Done()
		if err := c.AcknowledgePurchase(context.Background(), record); err != nil {
			c.log.Error("failed to acknowledge purchase",
				slog.String("order_id", record.OrderID),
				slog.Any("error", err),
			)
		}
	}()
}
