package billing

import "errors"

var (
	// ErrNotReady indicates the billing connection is not established.
	// Retryable: callers reconnect and try again.
	ErrNotReady = errors.New("billing client not ready")

	// ErrNotConnected indicates no connection attempt has been made yet.
	ErrNotConnected = errors.New("billing client not connected")

	// ErrDisconnected indicates the billing service dropped the connection
	// while an operation was in flight.
	ErrDisconnected = errors.New("billing service disconnected")

	// ErrSetupFailed indicates the billing service rejected the connection.
	ErrSetupFailed = errors.New("billing setup failed")

	// ErrQueryFailed indicates a service-reported query failure.
	ErrQueryFailed = errors.New("billing query failed")

	// ErrAcknowledgeFailed indicates the acknowledgement call failed.
	ErrAcknowledgeFailed = errors.New("purchase acknowledgement failed")

	// ErrFeedClosed is returned when subscribing to a closed update feed.
	ErrFeedClosed = errors.New("update feed closed")
)
