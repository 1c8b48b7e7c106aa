package minimum

import (
	"context"
	"errors"
	"fmt"
	"gonum.org/v1/gonum/floats"
	"math"
	"minimum-discovery-simulation/impl/eventlogger"
	"minimum-discovery-simulation/impl/link"
	"minimum-discovery-simulation/impl/messages"
	"minimum-discovery-simulation/impl/parameters"
	"sync"
	"sync/atomic"
)

var (
	ErrInboundClosed   = errors.New("every worker has left the update link")
	ErrCoordinatorGone = errors.New("coordinator is gone")
	ErrAlreadyRunning  = errors.New("coordinator is already running")
)

type State int32

const (
	Listening State = iota
	Aggregating
	Broadcasting
	Stopped
)

func (s State) String() string {
	switch s {
	case Listening:
		return "listening"
	case Aggregating:
		return "aggregating"
	case Broadcasting:
		return "broadcasting"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Observer receives the diagnostic events of the protocol. It is not part of
// the protocol itself: nothing reads the minimum back from it.
type Observer interface {
	MinimumChanged(previous float64, current float64)
	UpdateSent(worker int, value float64)
	MessageDropped(linkName string, value float64, err error)
	WorkerRetired(worker int, err error)
}

type broadcastTarget struct {
	worker  int
	link    *link.Link[messages.BroadcastMessage]
	retired bool
}

// Coordinator is the only owner of the global minimum. Workers learn about it
// exclusively through their broadcast links.
type Coordinator struct {
	globalMinimum float64
	state         atomic.Int32
	running       atomic.Bool

	inbound  *link.Link[messages.UpdateMessage]
	outbound []*broadcastTarget

	broadcastCapacity int
	broadcastPolicy   link.Policy

	observer Observer
	logger   *eventlogger.EventLogger
}

func NewCoordinator(
	parameters *parameters.Parameters,
	observer Observer,
	logger *eventlogger.EventLogger,
) *Coordinator {
	c := new(Coordinator)
	c.globalMinimum = math.Inf(1)
	c.inbound = link.New[messages.UpdateMessage](
		"updates",
		parameters.UpdateLinkCapacity,
		parameters.UpdatePolicy(),
	)
	c.broadcastCapacity = parameters.BroadcastLinkCapacity
	c.broadcastPolicy = parameters.BroadcastPolicy()
	c.observer = observer
	c.logger = logger
	c.state.Store(int32(Listening))
	return c
}

// Attach allocates the link pair of a new worker: a producer handle on the
// shared update link and a dedicated broadcast link. It must be called before
// Run.
func (c *Coordinator) Attach(worker int) (
	*link.Producer[messages.UpdateMessage],
	*link.Link[messages.BroadcastMessage],
) {
	broadcasts := link.New[messages.BroadcastMessage](
		fmt.Sprintf("broadcast-%d", worker),
		c.broadcastCapacity,
		c.broadcastPolicy,
	)
	c.outbound = append(c.outbound, &broadcastTarget{worker: worker, link: broadcasts})
	return c.inbound.Producer(), broadcasts
}

func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Run aggregates updates until ctx is cancelled or every producer of the
// update link has gone away. It closes all broadcast links on return.
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer c.shutdown()

	for {
		c.state.Store(int32(Listening))
		first, e := c.inbound.Receive(ctx)
		if e != nil {
			if errors.Is(e, link.ErrClosed) {
				c.logger.LogLinkClosed(c.inbound.Name(), e)
				return fmt.Errorf("%w: %v", ErrInboundClosed, e)
			}
			return nil
		}

		c.state.Store(int32(Aggregating))
		batch, e := c.inbound.Drain()
		batch = append([]messages.UpdateMessage{first}, batch...)

		values := make([]float64, len(batch))
		for i, update := range batch {
			values[i] = update.Value
		}
		candidate := floats.Min(values)

		if candidate < c.globalMinimum {
			previous := c.globalMinimum
			c.globalMinimum = candidate
			c.observer.MinimumChanged(previous, candidate)

			c.state.Store(int32(Broadcasting))
			c.broadcast(ctx, candidate)
		}

		// The batch read before the close is still applied.
		if e != nil {
			c.logger.LogLinkClosed(c.inbound.Name(), e)
			return fmt.Errorf("%w: %v", ErrInboundClosed, e)
		}
	}
}

// broadcast pushes value to every live worker concurrently. A worker that
// does not take the value before the deadline misses it.
func (c *Coordinator) broadcast(ctx context.Context, value float64) {
	msg := messages.BroadcastMessage{Value: value}

	var wg sync.WaitGroup
	for _, target := range c.outbound {
		if target.retired {
			continue
		}
		wg.Add(1)
		go func(target *broadcastTarget) {
			defer wg.Done()
			e := target.link.Send(ctx, msg)
			switch {
			case e == nil:
			case link.IsDrop(e):
				c.observer.MessageDropped(target.link.Name(), value, e)
			case errors.Is(e, link.ErrClosed):
				target.retired = true
				c.logger.LogLinkClosed(target.link.Name(), e)
			}
		}(target)
	}
	wg.Wait()
}

func (c *Coordinator) shutdown() {
	c.state.Store(int32(Stopped))
	for _, target := range c.outbound {
		target.link.Close()
	}
	c.inbound.Close()
}
