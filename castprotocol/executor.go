package castprotocol

import "context"

// Executor runs provider callbacks on the host's event loop. Post must
// preserve the order in which functions are posted.
type Executor interface {
	Post(fn func())
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(fn func())

// Post calls f(fn).
func (f ExecutorFunc) Post(fn func()) { f(fn) }

// InlineExecutor runs posted functions immediately on the caller's goroutine.
var InlineExecutor Executor = ExecutorFunc(func(fn func()) { fn() })

// SerialExecutor is a minimal event loop for hosts that have none of
// their own. Functions run one at a time on the goroutine calling Run.
type SerialExecutor struct {
	queue chan func()
}

// NewSerialExecutor returns an executor holding up to size pending
// functions; size <= 0 uses a default.
func NewSerialExecutor(size int) *SerialExecutor {
	if size <= 0 {
		size = 256
	}
	return &SerialExecutor{queue: make(chan func(), size)}
}

// Post queues fn, blocking while the queue is full.
func (e *SerialExecutor) Post(fn func()) {
	e.queue <- fn
}

// Run drains posted functions until ctx is canceled.
func (e *SerialExecutor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-e.queue:
			fn()
		}
	}
}
