package notify

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus(t *testing.T) {
	t.Run("show and dismiss", func(t *testing.T) {
		b := NewBus(WithClock(clockwork.NewFakeClock()))

		id := b.Success("Saved")
		b.Error("Boom")

		active := b.Active()
		require.Len(t, active, 2)
		assert.Equal(t, KindSuccess, active[0].Kind)
		assert.Equal(t, "Boom", active[1].Message)

		b.Dismiss(id)
		b.Dismiss("unknown")
		active = b.Active()
		require.Len(t, active, 1)
		assert.Equal(t, KindError, active[0].Kind)
	})

	t.Run("auto dismiss after ttl", func(t *testing.T) {
		clock := clockwork.NewFakeClock()
		b := NewBus(WithClock(clock))

		b.Info("New request: Midnight City")
		clock.Advance(3 * time.Second)
		assert.Len(t, b.Active(), 1)

		clock.Advance(time.Second)
		assert.Eventually(t, func() bool { return len(b.Active()) == 0 }, time.Second, 5*time.Millisecond)
	})

	t.Run("subscribers get latest snapshot", func(t *testing.T) {
		b := NewBus(WithClock(clockwork.NewFakeClock()))
		sub := b.Subscribe()
		defer sub.Close()

		initial := <-sub.Updates()
		assert.Empty(t, initial)

		b.Info("one")
		b.Info("two")

		latest := <-sub.Updates()
		require.Len(t, latest, 2)
		assert.Equal(t, "two", latest[1].Message)
	})

	t.Run("closed subscription is released", func(t *testing.T) {
		b := NewBus(WithClock(clockwork.NewFakeClock()))
		sub := b.Subscribe()
		<-sub.Updates()
		sub.Close()
		sub.Close()

		_, open := <-sub.Updates()
		assert.False(t, open)

		b.Info("after close")
		assert.Len(t, b.Active(), 1)
	})
}
