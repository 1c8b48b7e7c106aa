package minimum

import (
	"context"
	"errors"
	"fmt"
	"math"
	"minimum-discovery-simulation/impl/eventlogger"
	"minimum-discovery-simulation/impl/link"
	"minimum-discovery-simulation/impl/messages"
	"minimum-discovery-simulation/impl/sampling"
)

// Worker samples candidates and reports improvements to the coordinator. All
// of its state is private; it is ticked by one goroutine at a time.
type Worker struct {
	id int

	localMinimum   float64
	globalEstimate float64
	ticks          int
	retired        error

	updates    *link.Producer[messages.UpdateMessage]
	broadcasts *link.Link[messages.BroadcastMessage]
	sampler    sampling.Sampler

	observer Observer
	logger   *eventlogger.EventLogger
}

func NewWorker(
	id int,
	updates *link.Producer[messages.UpdateMessage],
	broadcasts *link.Link[messages.BroadcastMessage],
	sampler sampling.Sampler,
	observer Observer,
	logger *eventlogger.EventLogger,
) *Worker {
	w := new(Worker)
	w.id = id
	w.localMinimum = math.Inf(1)
	w.globalEstimate = math.Inf(1)
	w.updates = updates
	w.broadcasts = broadcasts
	w.sampler = sampler
	w.observer = observer
	w.logger = logger
	return w
}

func (w *Worker) ID() int {
	return w.id
}

func (w *Worker) LocalMinimum() float64 {
	return w.localMinimum
}

func (w *Worker) GlobalEstimate() float64 {
	return w.globalEstimate
}

func (w *Worker) Ticks() int {
	return w.ticks
}

func (w *Worker) Retired() bool {
	return w.retired != nil
}

// Tick runs one simulation round for the worker. Any returned error other
// than a context error means the worker has retired.
func (w *Worker) Tick(ctx context.Context) error {
	if w.retired != nil {
		return w.retired
	}
	w.ticks++

	if e := w.refresh(); e != nil {
		return w.Retire(e)
	}

	candidate := w.sampler.Sample()
	if candidate < w.localMinimum {
		w.localMinimum = candidate

		// Another worker may have beaten us while we were sampling.
		if e := w.refresh(); e != nil {
			return w.Retire(e)
		}
	}

	// A dropped update is retried here on the next tick.
	if w.localMinimum >= w.globalEstimate {
		return nil
	}

	return w.report(ctx)
}

// Retire closes the worker's producer handle and stops it for good.
func (w *Worker) Retire(cause error) error {
	if w.retired != nil {
		return w.retired
	}
	w.retired = cause
	w.updates.Close()
	w.observer.WorkerRetired(w.id, cause)
	return cause
}

// refresh folds the freshest pending broadcast into the estimate. Broadcasts
// never increase, and an optimistic estimate below them is still correct
// once the coordinator processes the update behind it.
func (w *Worker) refresh() error {
	pending, e := w.broadcasts.Drain()
	if e != nil {
		w.logger.LogLinkClosed(w.broadcasts.Name(), e)
		return fmt.Errorf("%w: %v", ErrCoordinatorGone, e)
	}
	if w.broadcasts.Cap() == 0 {
		// Take a broadcast the coordinator is holding out right now.
		v, ok, e := w.broadcasts.TryReceive()
		if e != nil {
			w.logger.LogLinkClosed(w.broadcasts.Name(), e)
			return fmt.Errorf("%w: %v", ErrCoordinatorGone, e)
		}
		if ok {
			pending = append(pending, v)
		}
	}
	if len(pending) == 0 {
		return nil
	}
	latest := pending[len(pending)-1].Value
	w.globalEstimate = math.Min(w.globalEstimate, latest)
	return nil
}

func (w *Worker) report(ctx context.Context) error {
	update := messages.UpdateMessage{Worker: w.id, Value: w.localMinimum}
	e := w.updates.Send(ctx, update)
	switch {
	case e == nil:
		w.globalEstimate = w.localMinimum
		w.observer.UpdateSent(w.id, w.localMinimum)
		return nil
	case link.IsDrop(e):
		w.observer.MessageDropped(w.updates.Link().Name(), w.localMinimum, e)
		return nil
	case errors.Is(e, link.ErrClosed):
		w.logger.LogLinkClosed(w.updates.Link().Name(), e)
		return w.Retire(fmt.Errorf("%w: %v", ErrCoordinatorGone, e))
	}
	return e
}
