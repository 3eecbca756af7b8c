package client

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// loop is the reconnect-and-cancel skeleton shared by the
// watch and queue transports. A session is one connection
// or poll cycle; whenever it ends and the loop was not
// stopped, the loop waits a fixed delay and starts a new
// session. Transport failures never escape the loop: they
// only show up to the caller as delivery delay.
type loop struct {
	logger         *zap.Logger
	reconnectDelay time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	doneCh   chan struct{}

	// deregister detaches the loop from the client
	// registry when it stops
	deregister func()
}

func newLoop(logger *zap.Logger, reconnectDelay time.Duration) *loop {
	return &loop{
		logger:         logger,
		reconnectDelay: reconnectDelay,
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
		deregister:     func() {},
	}
}

// run drives sessions until the loop is stopped. It is the
// body of the loop's one background goroutine.
func (loop *loop) run(session func() error) {
	defer close(loop.doneCh)

	for {
		if loop.stopped() {
			return
		}

		err := session()

		if loop.stopped() {
			return
		}

		loop.logger.Debug("transport interrupted, reconnecting",
			zap.Duration("delay", loop.reconnectDelay),
			zap.Error(err),
		)

		if !loop.sleep(loop.reconnectDelay) {
			return
		}
	}
}

// stopped reports whether Stop was called. Sessions check
// it between network calls and before every callback.
func (loop *loop) stopped() bool {
	select {
	case <-loop.stopCh:
		return true
	default:
		return false
	}
}

// sleep waits for d or for Stop, whichever comes first. It
// returns false if the loop was stopped.
func (loop *loop) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-loop.stopCh:
		return false
	}
}

// Stop signals the loop to exit. It is idempotent and safe
// from any goroutine; a second call is a no-op. The loop
// lets an in-flight call finish but starts no new ones and
// invokes no callback after the signal is observed.
func (loop *loop) Stop() {
	loop.stopOnce.Do(func() {
		close(loop.stopCh)
		loop.deregister()
	})
}

// Done returns a channel closed when the background
// goroutine has fully exited
func (loop *loop) Done() <-chan struct{} {
	return loop.doneCh
}
