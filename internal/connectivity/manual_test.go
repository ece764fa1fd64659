package connectivity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManual_FetchReturnsInitialState(t *testing.T) {
	m := NewManual(false)

	connected, err := m.Fetch(context.Background())

	require.NoError(t, err)
	assert.False(t, connected)
}

func TestManual_SetNotifiesOnlyOnChange(t *testing.T) {
	m := NewManual(false)

	var events []bool
	m.Subscribe(func(connected bool) { events = append(events, connected) })

	assert.True(t, m.Set(true))
	assert.False(t, m.Set(true))
	assert.True(t, m.Set(false))

	assert.Equal(t, []bool{true, false}, events)
}

func TestManual_Unsubscribe(t *testing.T) {
	m := NewManual(false)

	calls := 0
	unsubscribe := m.Subscribe(func(bool) { calls++ })
	m.Set(true)
	unsubscribe()
	unsubscribe()
	m.Set(false)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, m.subs.len())
}

func TestManual_NotifiesInRegistrationOrder(t *testing.T) {
	m := NewManual(false)

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		m.Subscribe(func(bool) { order = append(order, i) })
	}
	m.Set(true)

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestManual_FetchHonoursCancelledContext(t *testing.T) {
	m := NewManual(true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Fetch(ctx)

	assert.ErrorIs(t, err, context.Canceled)
}
