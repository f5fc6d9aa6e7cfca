package subscription

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttemptTracker(t *testing.T) {
	t.Parallel()

	t.Run("single flow at a time", func(t *testing.T) {
		t.Parallel()

		tracker := newAttemptTracker()
		require.NoError(t, tracker.begin())
		assert.True(t, tracker.inFlight())

		assert.ErrorIs(t, tracker.begin(), ErrPurchaseInProgress)

		tracker.finish()
		assert.False(t, tracker.inFlight())
		assert.NoError(t, tracker.begin())
	})

	t.Run("finish when idle is a no-op", func(t *testing.T) {
		t.Parallel()

		tracker := newAttemptTracker()
		tracker.finish()
		tracker.finish()
		assert.NoError(t, tracker.begin())
	})

	t.Run("illegal events are rejected by the table", func(t *testing.T) {
		t.Parallel()

		tracker := newAttemptTracker()
		assert.False(t, tracker.fire(eventComplete))
		assert.True(t, tracker.fire(eventLaunch))
		assert.False(t, tracker.fire(eventLaunch))
	})
}
