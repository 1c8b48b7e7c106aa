package link

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrClosed   = errors.New("link is closed")
	ErrFull     = errors.New("link is full, message dropped")
	ErrDeadline = errors.New("delivery deadline expired, message dropped")
)

// IsDrop reports whether err means that a single message was dropped while the
// link itself is still usable.
func IsDrop(err error) bool {
	return errors.Is(err, ErrFull) || errors.Is(err, ErrDeadline)
}

type Mode int

const (
	Blocking Mode = iota
	BestEffort
	Timed
)

func (m Mode) String() string {
	switch m {
	case Blocking:
		return "blocking"
	case BestEffort:
		return "best-effort"
	case Timed:
		return "timed"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

func ParseMode(s string) (Mode, error) {
	for _, m := range []Mode{Blocking, BestEffort, Timed} {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown delivery mode %q", s)
}

// Policy is the delivery policy every Send on a link follows.
type Policy struct {
	Mode     Mode
	Deadline time.Duration // only used by Timed
}

func (p Policy) Validate() error {
	switch p.Mode {
	case Blocking, BestEffort:
		return nil
	case Timed:
		if p.Deadline <= 0 {
			return fmt.Errorf("timed delivery needs a positive deadline, got %v", p.Deadline)
		}
		return nil
	}
	return fmt.Errorf("unknown delivery mode %d", int(p.Mode))
}

// Link is a bounded ordered queue of values of one type. A capacity of 0 makes
// every Send a synchronous handoff to a waiting receiver.
type Link[T any] struct {
	name   string
	policy Policy

	ch        chan T
	done      chan struct{}
	closeOnce sync.Once

	producersMutex *sync.Mutex
	producers      int
}

func New[T any](name string, capacity int, policy Policy) *Link[T] {
	if capacity < 0 {
		capacity = 0
	}
	l := new(Link[T])
	l.name = name
	l.policy = policy
	l.ch = make(chan T, capacity)
	l.done = make(chan struct{})
	l.producersMutex = &sync.Mutex{}
	return l
}

func (l *Link[T]) Name() string {
	return l.name
}

func (l *Link[T]) Policy() Policy {
	return l.policy
}

func (l *Link[T]) Len() int {
	return len(l.ch)
}

func (l *Link[T]) Cap() int {
	return cap(l.ch)
}

func (l *Link[T]) Closed() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// Close makes every later operation on the link fail with ErrClosed. Queued
// values are discarded.
func (l *Link[T]) Close() {
	l.closeOnce.Do(func() {
		close(l.done)
	})
}

// Send enqueues value according to the link's delivery policy.
func (l *Link[T]) Send(ctx context.Context, value T) error {
	if l.Closed() {
		return ErrClosed
	}

	switch l.policy.Mode {
	case BestEffort:
		select {
		case l.ch <- value:
			return nil
		case <-l.done:
			return ErrClosed
		default:
			return ErrFull
		}
	case Timed:
		timer := time.NewTimer(l.policy.Deadline)
		defer timer.Stop()
		select {
		case l.ch <- value:
			return nil
		case <-l.done:
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return ErrDeadline
		}
	default:
		select {
		case l.ch <- value:
			return nil
		case <-l.done:
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// TryReceive returns the next queued value, if there is one, without blocking.
func (l *Link[T]) TryReceive() (T, bool, error) {
	var zero T
	if l.Closed() {
		return zero, false, ErrClosed
	}
	select {
	case v := <-l.ch:
		if l.Closed() {
			return zero, false, ErrClosed
		}
		return v, true, nil
	default:
		return zero, false, nil
	}
}

// Receive blocks until a value arrives, the link is closed or ctx is done.
func (l *Link[T]) Receive(ctx context.Context) (T, error) {
	var zero T
	if l.Closed() {
		return zero, ErrClosed
	}
	select {
	case v := <-l.ch:
		// select picks at random when Close races with a queued value.
		if l.Closed() {
			return zero, ErrClosed
		}
		return v, nil
	case <-l.done:
		return zero, ErrClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Drain returns the values queued at the time of the call in arrival order.
// An unbuffered link never queues, so Drain returns nothing for it.
func (l *Link[T]) Drain() ([]T, error) {
	if l.Closed() {
		return nil, ErrClosed
	}

	limit := len(l.ch)
	values := make([]T, 0, limit)
	for i := 0; i < limit; i++ {
		v, ok, e := l.TryReceive()
		if e != nil {
			return values, e
		}
		if !ok {
			break
		}
		values = append(values, v)
	}
	return values, nil
}

// Producer registers a new sending endpoint. The link closes once every
// registered producer has been closed.
func (l *Link[T]) Producer() *Producer[T] {
	l.producersMutex.Lock()
	l.producers++
	l.producersMutex.Unlock()

	return &Producer[T]{link: l}
}

func (l *Link[T]) releaseProducer() {
	l.producersMutex.Lock()
	l.producers--
	last := l.producers == 0
	l.producersMutex.Unlock()

	if last {
		l.Close()
	}
}

// Producer is one sender's handle on a shared link.
type Producer[T any] struct {
	link     *Link[T]
	released atomic.Bool
}

// Send fails with ErrClosed once this handle is closed, even while other
// producers keep the link open.
func (p *Producer[T]) Send(ctx context.Context, value T) error {
	if p.released.Load() {
		return ErrClosed
	}
	return p.link.Send(ctx, value)
}

func (p *Producer[T]) Link() *Link[T] {
	return p.link
}

// Close releases the handle. Closing the same producer twice has no effect.
func (p *Producer[T]) Close() {
	if p.released.CompareAndSwap(false, true) {
		p.link.releaseProducer()
	}
}
