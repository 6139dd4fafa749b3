// Background worker - one request at a time.
//
// Information Hiding:
// - Goroutine lifecycle and request serialization hidden
// - Cancellation flag ownership hidden

package agent

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
)

// ErrBusy is returned by Submit while a request is still running.
// Callers that want to add input to the running request should queue it
// on the active step's config instead.
var ErrBusy = errors.New("a request is already running")

// ErrStopped is returned by Submit after Stop.
var ErrStopped = errors.New("the worker has been stopped")

// Worker runs agent requests on a background goroutine so the caller
// stays responsive and can cancel. Exactly one request runs at a time.
type Worker struct {
	agent     *Agent
	logger    *slog.Logger
	onOutcome func(Outcome, error)

	requests  chan string
	done      chan struct{}
	busy      atomic.Bool
	cancelled atomic.Bool
	stopped   atomic.Bool
}

// NewWorker starts the worker. The callback receives every request's
// outcome on the worker goroutine; a nil callback discards outcomes.
func NewWorker(agent *Agent, logger *slog.Logger, onOutcome func(Outcome, error)) *Worker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	w := &Worker{
		agent:     agent,
		logger:    logger,
		onOutcome: onOutcome,
		requests:  make(chan string, 1),
		done:      make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *Worker) loop() {
	defer close(w.done)
	for request := range w.requests {
		outcome, err := w.agent.RunRequest(context.Background(), request, w.cancelled.Load)
		w.busy.Store(false)
		if err != nil {
			w.logger.Error("request failed", "error", err)
		}
		if w.onOutcome != nil {
			w.onOutcome(outcome, err)
		}
	}
}

// Submit starts a new request. Returns ErrBusy if one is running and
// ErrStopped after Stop.
func (w *Worker) Submit(request string) error {
	if w.stopped.Load() {
		return ErrStopped
	}
	if !w.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	w.cancelled.Store(false)
	w.requests <- request
	return nil
}

// Busy reports whether a request is currently running.
func (w *Worker) Busy() bool {
	return w.busy.Load()
}

// Cancel requests cooperative cancellation of the running request.
// Idempotent; a second call has no further effect. The flag resets on
// the next Submit.
func (w *Worker) Cancel() {
	w.cancelled.Store(true)
}

// Stop shuts the worker down after the in-flight request (if any)
// finishes. The worker cannot be reused afterwards; later Submits
// return ErrStopped. Stop must be called at most once.
func (w *Worker) Stop() {
	w.stopped.Store(true)
	close(w.requests)
	<-w.done
}
