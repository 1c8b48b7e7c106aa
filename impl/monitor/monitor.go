package monitor

import (
	"errors"
	"fmt"
	"github.com/asynkron/protoactor-go/actor"
	"math"
	"minimum-discovery-simulation/impl/eventlogger"
	"minimum-discovery-simulation/impl/messages"
	"time"
)

var ErrUnexpectedResponse = errors.New("monitor returned an unexpected response")

// Monitor collects observability events in an actor, so that components report
// what they do by sending messages rather than touching shared counters.
type Monitor struct {
	system *actor.ActorSystem
	pid    *actor.PID
}

type Option func(*statsActor)

// WithDropLogging logs one line per dropped message. Drops are always counted.
func WithDropLogging() Option {
	return func(a *statsActor) {
		a.logDrops = true
	}
}

// WithUpdateLogging logs one line per update a worker sends.
func WithUpdateLogging() Option {
	return func(a *statsActor) {
		a.logUpdates = true
	}
}

func NewMonitor(system *actor.ActorSystem, logger *eventlogger.EventLogger, opts ...Option) *Monitor {
	m := new(Monitor)
	m.system = system
	m.pid = system.Root.Spawn(
		actor.PropsFromProducer(
			func() actor.Actor {
				a := newStatsActor(logger)
				for _, opt := range opts {
					opt(a)
				}
				return a
			}),
	)
	return m
}

func (m *Monitor) MinimumChanged(previous float64, current float64) {
	m.system.Root.Send(m.pid, &messages.MinimumChanged{Old: previous, New: current})
}

func (m *Monitor) UpdateSent(worker int, value float64) {
	m.system.Root.Send(m.pid, &messages.UpdateSent{Worker: worker, Value: value})
}

func (m *Monitor) MessageDropped(linkName string, value float64, err error) {
	m.system.Root.Send(m.pid, &messages.MessageDropped{Link: linkName, Value: value, Reason: err.Error()})
}

func (m *Monitor) WorkerRetired(worker int, err error) {
	m.system.Root.Send(m.pid, &messages.WorkerRetired{Worker: worker, Reason: err.Error()})
}

func (m *Monitor) RoundCompleted(round int, activeWorkers int, bestLocal float64, meanLocal float64) {
	m.system.Root.Send(
		m.pid,
		&messages.RoundCompleted{
			Round:         round,
			ActiveWorkers: activeWorkers,
			BestLocal:     bestLocal,
			MeanLocal:     meanLocal,
		})
}

// Stats returns a snapshot that reflects every event sent before the call
// from the calling goroutine.
func (m *Monitor) Stats(timeout time.Duration) (*messages.Stats, error) {
	res, e := m.system.Root.RequestFuture(m.pid, &messages.GetStats{}, timeout).Result()
	if e != nil {
		return nil, fmt.Errorf("could not query the monitor: %w", e)
	}
	stats, ok := res.(*messages.Stats)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnexpectedResponse, res)
	}
	return stats, nil
}

// Stop processes the events already queued and then stops the actor.
func (m *Monitor) Stop() error {
	return m.system.Root.PoisonFuture(m.pid).Wait()
}

type statsActor struct {
	stats  *messages.Stats
	logger *eventlogger.EventLogger

	logDrops   bool
	logUpdates bool
}

func newStatsActor(logger *eventlogger.EventLogger) *statsActor {
	a := new(statsActor)
	a.logger = logger
	a.stats = &messages.Stats{
		GlobalMinimum: math.Inf(1),
		SentByWorker:  make(map[int][]float64),
		DroppedByLink: make(map[string]int),
	}
	return a
}

func (a *statsActor) Receive(context actor.Context) {
	switch msg := context.Message().(type) {
	case *messages.MinimumChanged:
		a.stats.GlobalMinimum = msg.New
		a.stats.MinimumHistory = append(a.stats.MinimumHistory, msg.New)
		a.logger.LogMinimumChanged(msg.Old, msg.New)
	case *messages.UpdateSent:
		a.stats.UpdatesSent++
		a.stats.SentByWorker[msg.Worker] = append(a.stats.SentByWorker[msg.Worker], msg.Value)
		if a.logUpdates {
			a.logger.LogUpdateSent(msg.Worker, msg.Value)
		}
	case *messages.MessageDropped:
		a.stats.Dropped++
		a.stats.DroppedByLink[msg.Link]++
		if a.logDrops {
			a.logger.LogDrop(msg.Link, msg.Value, msg.Reason)
		}
	case *messages.WorkerRetired:
		a.stats.RetiredWorkers = append(a.stats.RetiredWorkers, msg.Worker)
		a.logger.LogRetired(msg.Worker, msg.Reason)
	case *messages.RoundCompleted:
		a.stats.LastRound = msg.Round
		a.logger.LogRound(msg.Round, msg.ActiveWorkers, msg.BestLocal, msg.MeanLocal)
	case *messages.GetStats:
		context.Respond(a.stats.Copy())
	}
}
