package observe_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blescope/blescope/internal/observe"
)

func recvTimeout[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for observation")
		var zero T
		return zero
	}
}

func TestValueGet(t *testing.T) {
	v := observe.NewValue[int]()

	_, ok := v.Get()
	assert.False(t, ok, "no value before the first Set")

	v.Set(42)
	got, ok := v.Get()
	require.True(t, ok)
	assert.Equal(t, 42, got)
}

func TestValueSubscribeReplaysCurrentValue(t *testing.T) {
	v := observe.NewValueOf("connected")

	sub := v.Subscribe(4)
	defer sub.Cancel()

	assert.Equal(t, "connected", recvTimeout(t, sub.C()),
		"late subscriber receives the current value first")
}

func TestValueSubscribersSeeIdenticalSequences(t *testing.T) {
	v := observe.NewValueOf(0)

	a := v.Subscribe(8)
	defer a.Cancel()
	b := v.Subscribe(8)
	defer b.Cancel()

	v.Set(1)
	v.Set(2)

	want := []int{0, 1, 2}
	for _, sub := range []*observe.Subscription[int]{a, b} {
		var got []int
		for range want {
			got = append(got, recvTimeout(t, sub.C()))
		}
		assert.Equal(t, want, got)
	}
}

func TestValueSlowSubscriberConvergesOnLatest(t *testing.T) {
	v := observe.NewValue[int]()
	sub := v.Subscribe(1)
	defer sub.Cancel()

	for i := 1; i <= 100; i++ {
		v.Set(i)
	}

	assert.Equal(t, 100, recvTimeout(t, sub.C()),
		"overwrite-oldest keeps only the latest value in a full buffer")
}

func TestValueUpdate(t *testing.T) {
	v := observe.NewValueOf(10)
	v.Update(func(cur int) int { return cur + 5 })

	got, ok := v.Get()
	require.True(t, ok)
	assert.Equal(t, 15, got)
}

func TestSubscriptionCancel(t *testing.T) {
	v := observe.NewValueOf(1)
	sub := v.Subscribe(4)

	sub.Cancel()
	sub.Cancel() // idempotent

	// Publishing after cancel must not panic and must not reach the
	// cancelled subscriber.
	v.Set(2)

	for range sub.C() {
	}
}

func TestValueClose(t *testing.T) {
	v := observe.NewValueOf(1)
	sub := v.Subscribe(4)

	v.Close()
	v.Set(2)

	var last int
	for obs := range sub.C() {
		last = obs
	}
	assert.Equal(t, 1, last, "no observations delivered after Close")

	sub.Cancel() // safe after Close
}
