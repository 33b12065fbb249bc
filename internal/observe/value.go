package observe

import "sync"

// Value is an observable holding the last published value. New subscribers
// immediately receive the current value as their first observation; later
// observations arrive in publish order, identical for every subscriber.
//
// Publishing is serialized by an internal mutex, so readers never see a torn
// update. Delivery uses overwrite-oldest buffers, so a slow subscriber can
// lose intermediate values but always converges on the latest one.
type Value[T any] struct {
	mu     sync.Mutex
	cur    T
	set    bool
	subs   map[int]*RingChannel[T]
	nextID int
}

// NewValue creates an observable with no current value. Subscribers attached
// before the first Set receive nothing until it happens.
func NewValue[T any]() *Value[T] {
	return &Value[T]{subs: make(map[int]*RingChannel[T])}
}

// NewValueOf creates an observable seeded with an initial value.
func NewValueOf[T any](initial T) *Value[T] {
	v := NewValue[T]()
	v.cur = initial
	v.set = true
	return v
}

// Get returns the current value; ok is false before the first Set.
func (v *Value[T]) Get() (T, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cur, v.set
}

// Set publishes a new value to all subscribers and stores it for replay.
func (v *Value[T]) Set(val T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cur = val
	v.set = true
	for _, rc := range v.subs {
		rc.Send(val)
	}
}

// Update applies fn to the current value under the publish lock and
// publishes the result. It avoids the read-modify-write race of Get+Set.
func (v *Value[T]) Update(fn func(T) T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cur = fn(v.cur)
	v.set = true
	for _, rc := range v.subs {
		rc.Send(v.cur)
	}
}

// Subscription is one observer's attachment to a Value.
type Subscription[T any] struct {
	rc     *RingChannel[T]
	cancel func()
	once   sync.Once
}

// C returns the channel observations are delivered on. It is closed by
// Cancel.
func (s *Subscription[T]) C() <-chan T {
	return s.rc.C()
}

// Cancel detaches the subscription and closes its channel. Safe to call more
// than once.
func (s *Subscription[T]) Cancel() {
	s.once.Do(s.cancel)
}

// Subscribe attaches a new observer with the given buffer capacity. If the
// observable has a current value it is delivered immediately as the first
// observation.
func (v *Value[T]) Subscribe(buffer int) *Subscription[T] {
	if buffer <= 0 {
		buffer = 16
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	id := v.nextID
	v.nextID++

	rc := NewRingChannel[T](buffer)
	v.subs[id] = rc
	if v.set {
		rc.Send(v.cur)
	}

	return &Subscription[T]{
		rc: rc,
		cancel: func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			if _, ok := v.subs[id]; ok {
				delete(v.subs, id)
				rc.Close()
			}
		},
	}
}

// Close cancels every subscription. Further Set calls update the stored
// value but reach no observers.
func (v *Value[T]) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for id, rc := range v.subs {
		delete(v.subs, id)
		rc.Close()
	}
}
