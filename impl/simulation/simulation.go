package simulation

import (
	"context"
	"errors"
	"fmt"
	"github.com/asynkron/protoactor-go/actor"
	"github.com/rs/xid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"log"
	"math"
	"minimum-discovery-simulation/impl/eventlogger"
	"minimum-discovery-simulation/impl/messages"
	"minimum-discovery-simulation/impl/monitor"
	"minimum-discovery-simulation/impl/parameters"
	"minimum-discovery-simulation/impl/protocols/minimum"
	"minimum-discovery-simulation/impl/sampling"
	"os"
	"sync"
	"time"
)

var ErrNoMonitor = errors.New("simulation was built with an external observer")

// Observer is notified about protocol events and periodic round reports.
type Observer interface {
	minimum.Observer
	RoundCompleted(round int, activeWorkers int, bestLocal float64, meanLocal float64)
}

type Option func(*Simulation)

func WithLogger(logger *log.Logger) Option {
	return func(s *Simulation) {
		s.baseLogger = logger
	}
}

func WithSamplerFactory(factory sampling.Factory) Option {
	return func(s *Simulation) {
		s.samplerFactory = factory
	}
}

// WithObserver replaces the built-in monitor actor.
func WithObserver(observer Observer) Option {
	return func(s *Simulation) {
		s.observer = observer
	}
}

func WithActorSystem(system *actor.ActorSystem) Option {
	return func(s *Simulation) {
		s.system = system
	}
}

func WithMonitorOptions(opts ...monitor.Option) Option {
	return func(s *Simulation) {
		s.monitorOptions = append(s.monitorOptions, opts...)
	}
}

// Status summarises the workers' local state. It is only meaningful between
// rounds or after Run has returned.
type Status struct {
	Round         int
	ActiveWorkers int
	BestLocal     float64
	MeanLocal     float64
}

// Simulation drives fork-join rounds over its workers while the coordinator
// runs in its own goroutine.
type Simulation struct {
	id         string
	parameters *parameters.Parameters

	coordinator *minimum.Coordinator
	workers     []*minimum.Worker
	round       int

	observer       Observer
	monitor        *monitor.Monitor
	monitorOptions []monitor.Option
	system         *actor.ActorSystem
	samplerFactory sampling.Factory

	baseLogger *log.Logger
	logger     *eventlogger.EventLogger
}

func New(p *parameters.Parameters, opts ...Option) (*Simulation, error) {
	if e := p.Validate(); e != nil {
		return nil, fmt.Errorf("invalid parameters: %w", e)
	}

	s := new(Simulation)
	s.id = xid.New().String()
	s.parameters = p
	for _, opt := range opts {
		opt(s)
	}

	if s.baseLogger == nil {
		s.baseLogger = log.New(os.Stderr, "", log.LstdFlags)
	}
	s.logger = eventlogger.InitEventLogger(fmt.Sprintf("simulation %s", s.id), s.baseLogger)

	if s.samplerFactory == nil {
		s.samplerFactory = sampling.LogNormalFactory(p.Mu, p.Sigma, p.Seed)
	}

	if s.observer == nil {
		if s.system == nil {
			s.system = actor.NewActorSystem()
		}
		s.monitor = monitor.NewMonitor(s.system, s.logger.With("monitor"), s.monitorOptions...)
		s.observer = s.monitor
	}

	s.coordinator = minimum.NewCoordinator(p, s.observer, s.logger.With("coordinator"))
	for i := 0; i < p.WorkerCount; i++ {
		updates, broadcasts := s.coordinator.Attach(i)
		s.workers = append(s.workers,
			minimum.NewWorker(
				i,
				updates,
				broadcasts,
				s.samplerFactory(i),
				s.observer,
				s.logger.With(fmt.Sprintf("worker-%d", i)),
			))
	}

	return s, nil
}

func (s *Simulation) ID() string {
	return s.id
}

func (s *Simulation) Round() int {
	return s.round
}

func (s *Simulation) Workers() []*minimum.Worker {
	return s.workers
}

func (s *Simulation) Coordinator() *minimum.Coordinator {
	return s.coordinator
}

// Run drives rounds until ctx is cancelled, MaxRounds is reached, every
// worker has retired or the coordinator stops. The coordinator's error, if
// any, is returned.
func (s *Simulation) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	coordinatorDone := make(chan error, 1)
	go func() {
		coordinatorDone <- s.coordinator.Run(ctx)
	}()

	s.logger.Printf("Running simulation with %d workers\n", len(s.workers))

	var coordinatorErr error
	coordinatorStopped := false

rounds:
	for s.parameters.MaxRounds == 0 || s.round < s.parameters.MaxRounds {
		select {
		case <-ctx.Done():
			break rounds
		case coordinatorErr = <-coordinatorDone:
			coordinatorStopped = true
			break rounds
		default:
		}

		active := s.activeWorkers()
		if len(active) == 0 {
			s.logger.Printf("No active workers left after %d rounds\n", s.round)
			break
		}

		s.runRound(ctx, active)
		s.round++

		if s.round%s.parameters.ReportInterval == 0 {
			s.report()
		}
	}

	cancel()
	if !coordinatorStopped {
		coordinatorErr = <-coordinatorDone
	}

	s.logger.Printf("Stopped after %d rounds\n", s.round)
	if coordinatorErr != nil {
		return fmt.Errorf("coordinator failed: %w", coordinatorErr)
	}
	return nil
}

func (s *Simulation) runRound(ctx context.Context, active []*minimum.Worker) {
	var wg sync.WaitGroup
	for _, w := range active {
		wg.Add(1)
		go func(w *minimum.Worker) {
			defer wg.Done()
			_ = w.Tick(ctx)
		}(w)
	}
	wg.Wait()
}

func (s *Simulation) activeWorkers() []*minimum.Worker {
	active := make([]*minimum.Worker, 0, len(s.workers))
	for _, w := range s.workers {
		if !w.Retired() {
			active = append(active, w)
		}
	}
	return active
}

func (s *Simulation) report() {
	status := s.Status()
	s.observer.RoundCompleted(status.Round, status.ActiveWorkers, status.BestLocal, status.MeanLocal)
}

func (s *Simulation) Status() Status {
	active := s.activeWorkers()

	locals := make([]float64, 0, len(active))
	for _, w := range active {
		if !math.IsInf(w.LocalMinimum(), 1) {
			locals = append(locals, w.LocalMinimum())
		}
	}

	status := Status{
		Round:         s.round,
		ActiveWorkers: len(active),
		BestLocal:     math.Inf(1),
		MeanLocal:     math.Inf(1),
	}
	if len(locals) > 0 {
		status.BestLocal = floats.Min(locals)
		status.MeanLocal = stat.Mean(locals, nil)
	}
	return status
}

// Stats queries the built-in monitor.
func (s *Simulation) Stats(timeout time.Duration) (*messages.Stats, error) {
	if s.monitor == nil {
		return nil, ErrNoMonitor
	}
	return s.monitor.Stats(timeout)
}

// Close stops the built-in monitor after it has handled every queued event.
func (s *Simulation) Close() error {
	if s.monitor == nil {
		return nil
	}
	return s.monitor.Stop()
}
