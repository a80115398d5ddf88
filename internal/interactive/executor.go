package interactive

import (
	"sync"

	"github.com/gdamore/tcell/v2"
)

// ScreenExecutor runs posted functions on a tcell event loop. Functions
// are queued in order and the loop is woken with an EventInterrupt whose
// data is the executor; the loop must call Drain when it sees one.
type ScreenExecutor struct {
	screen tcell.Screen

	mu        sync.Mutex
	queue     []func()
	scheduled bool
}

// NewScreenExecutor returns an executor that wakes the event loop of s.
func NewScreenExecutor(s tcell.Screen) *ScreenExecutor {
	return &ScreenExecutor{screen: s}
}

// Post queues fn. It never blocks, including when called from the event
// loop itself. When the wakeup cannot be delivered, because the event
// queue is full or the screen is gone, fn stays queued and the next Post
// retries the wakeup.
func (e *ScreenExecutor) Post(fn func()) {
	e.mu.Lock()
	e.queue = append(e.queue, fn)
	wake := !e.scheduled
	e.scheduled = true
	e.mu.Unlock()

	if !wake {
		return
	}

	if err := e.screen.PostEvent(tcell.NewEventInterrupt(e)); err != nil {
		e.mu.Lock()
		e.scheduled = false
		e.mu.Unlock()
	}
}

// Drain runs everything queued so far.
func (e *ScreenExecutor) Drain() {
	e.mu.Lock()
	queue := e.queue
	e.queue = nil
	e.scheduled = false
	e.mu.Unlock()

	for _, fn := range queue {
		fn()
	}
}
