package fsm

import (
	"context"
	"sync"
	"time"
)

// CachedObserver is an observer that caches the most recent notifications of
// the observed state machine.
type CachedObserver struct {
	lastNotification    Notification
	cachedNotifications *FixedSizeSlice[Notification]

	notificationCond *sync.Cond
	notificationMx   sync.Mutex
}

// NewCachedObserver creates a new cached observer with the given maximum
// number of cached notifications.
func NewCachedObserver(maxElements int) *CachedObserver {
	observer := &CachedObserver{
		cachedNotifications: NewFixedSizeSlice[Notification](
			maxElements,
		),
	}
	observer.notificationCond = sync.NewCond(&observer.notificationMx)

	return observer
}

// Notify implements the Observer interface.
func (c *CachedObserver) Notify(notification Notification) {
	c.notificationMx.Lock()
	defer c.notificationMx.Unlock()

	c.cachedNotifications.Add(notification)
	c.lastNotification = notification
	c.notificationCond.Broadcast()
}

// GetCachedNotifications returns a copy of the cached notifications.
func (c *CachedObserver) GetCachedNotifications() []Notification {
	c.notificationMx.Lock()
	defer c.notificationMx.Unlock()

	return c.cachedNotifications.Get()
}

// WaitForStateOption is an option that can be passed to WaitForState.
type WaitForStateOption func(*waitOptions)

type waitOptions struct {
	abortEarlyOnError bool
}

// WithAbortEarlyOnError makes WaitForState return the last action error as
// soon as the state machine processes an OnError event.
func WithAbortEarlyOnError() WaitForStateOption {
	return func(o *waitOptions) {
		o.abortEarlyOnError = true
	}
}

// WaitForState blocks until the observed state machine reaches the given
// state, the timeout expires or the context is canceled.
func (c *CachedObserver) WaitForState(ctx context.Context,
	timeout time.Duration, state StateType,
	opts ...WaitForStateOption) error {

	var options waitOptions
	for _, opt := range opts {
		opt(&options)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch := c.waitForStateAsync(timeoutCtx, state, options.abortEarlyOnError)

	select {
	case <-timeoutCtx.Done():
		return waitTimeoutError(state)

	case err := <-ch:
		return err
	}
}

// waitForStateAsync waits until the passed context is canceled or the
// expected state is reached. The returned channel receives nil once the state
// is reached.
func (c *CachedObserver) waitForStateAsync(ctx context.Context,
	state StateType, abortOnError bool) chan error {

	ch := make(chan error, 1)

	// Wake up the waiting goroutine once the context is done so it doesn't
	// block on the condition variable forever.
	stop := context.AfterFunc(ctx, func() {
		c.notificationMx.Lock()
		defer c.notificationMx.Unlock()

		c.notificationCond.Broadcast()
	})

	go func() {
		defer stop()

		c.notificationMx.Lock()
		defer c.notificationMx.Unlock()

		for {
			switch {
			case c.lastNotification.NextState == state:
				ch <- nil
				return

			case abortOnError && c.lastNotification.Event == OnError:
				ch <- c.lastNotification.LastActionError
				return

			case ctx.Err() != nil:
				ch <- waitTimeoutError(state)
				return
			}

			c.notificationCond.Wait()
		}
	}()

	return ch
}

// FixedSizeSlice is a slice with a fixed size.
type FixedSizeSlice[T any] struct {
	data   []T
	maxLen int

	sync.Mutex
}

// NewFixedSizeSlice initializes a new FixedSizeSlice with a given maximum
// length.
func NewFixedSizeSlice[T any](maxLen int) *FixedSizeSlice[T] {
	return &FixedSizeSlice[T]{
		data:   make([]T, 0, maxLen),
		maxLen: maxLen,
	}
}

// Add appends a new element to the slice. If the slice reaches its maximum
// length, the first element is removed.
func (fs *FixedSizeSlice[T]) Add(element T) {
	fs.Lock()
	defer fs.Unlock()

	if len(fs.data) == fs.maxLen {
		fs.data = fs.data[1:]
	}
	fs.data = append(fs.data, element)
}

// Get returns a copy of the slice.
func (fs *FixedSizeSlice[T]) Get() []T {
	fs.Lock()
	defer fs.Unlock()

	data := make([]T, len(fs.data))
	copy(data, fs.data)

	return data
}
