package test

import (
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
)

// Guard implements a test level timeout and checks for leaked goroutines
// when the returned function is called.
func Guard(t *testing.T) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-time.After(Timeout * 2):
			DumpGoroutines()

			panic("test timeout")
		case <-done:
		}
	}()

	fn := leaktest.Check(t)

	return func() {
		close(done)
		fn()
	}
}
