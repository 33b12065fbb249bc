package observe_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blescope/blescope/internal/observe"
)

func TestRingChannelSendNeverBlocks(t *testing.T) {
	rc := observe.NewRingChannel[int](2)

	assert.False(t, rc.Send(1))
	assert.False(t, rc.Send(2))
	assert.True(t, rc.Send(3), "full buffer drops the oldest element")

	v, ok := rc.TryReceive()
	require.True(t, ok)
	assert.Equal(t, 2, v, "oldest element was discarded")

	v, ok = rc.TryReceive()
	require.True(t, ok)
	assert.Equal(t, 3, v)

	_, ok = rc.TryReceive()
	assert.False(t, ok)
}

func TestRingChannelTrySend(t *testing.T) {
	rc := observe.NewRingChannel[string](1)

	assert.True(t, rc.TrySend("a"))
	assert.False(t, rc.TrySend("b"), "TrySend refuses instead of dropping")
	assert.Equal(t, 1, rc.Len())
	assert.Equal(t, 1, rc.Cap())
}

func TestRingChannelClose(t *testing.T) {
	rc := observe.NewRingChannel[int](4)
	rc.Send(7)
	rc.Close()

	v, ok := <-rc.C()
	assert.True(t, ok)
	assert.Equal(t, 7, v)

	_, ok = <-rc.C()
	assert.False(t, ok, "channel is closed after drain")
}

func TestRingChannelRejectsZeroCapacity(t *testing.T) {
	assert.Panics(t, func() { observe.NewRingChannel[int](0) })
}
