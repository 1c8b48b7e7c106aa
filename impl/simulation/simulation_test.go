package simulation

import (
	"bytes"
	"context"
	"errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"io"
	"log"
	"math"
	"minimum-discovery-simulation/impl/link"
	"minimum-discovery-simulation/impl/parameters"
	"minimum-discovery-simulation/impl/protocols/minimum"
	"minimum-discovery-simulation/impl/sampling"
	"strings"
	"sync"
	"testing"
	"time"
)

func guaranteedDelivery(workers int, maxRounds int) *parameters.Parameters {
	p := parameters.Default()
	p.WorkerCount = workers
	p.UpdateMode = link.Blocking.String()
	p.UpdateLinkCapacity = 0
	p.BroadcastLinkCapacity = 1
	p.BroadcastDeadlineNs = int(50 * time.Millisecond)
	p.MaxRounds = maxRounds
	return p
}

func newQuietSimulation(t *testing.T, p *parameters.Parameters, opts ...Option) *Simulation {
	opts = append([]Option{WithLogger(log.New(io.Discard, "", 0))}, opts...)
	s, e := New(p, opts...)
	require.NoError(t, e)
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func TestScenario_threeWorkersConvergeByRoundEleven(t *testing.T) {
	sequences := [][]float64{
		{9, 8, 7, 6, 5, 4, 3, 2.5, 2.2, 2.0},
		{9, 8, 7, 6, 5, 4, 3, 2, 1, 0.5},
		{9.0},
	}
	s := newQuietSimulation(t, guaranteedDelivery(3, 11),
		WithSamplerFactory(sampling.SequenceFactory(sequences...)))

	require.NoError(t, s.Run(context.Background()))

	assert.Equal(t, 11, s.Round())
	assert.Equal(t, 2.0, s.Workers()[0].LocalMinimum())
	assert.Equal(t, 0.5, s.Workers()[1].LocalMinimum())
	assert.Equal(t, 9.0, s.Workers()[2].LocalMinimum())

	stats, e := s.Stats(time.Second)
	require.NoError(t, e)
	assert.Equal(t, 0.5, stats.GlobalMinimum)
	for i := 1; i < len(stats.MinimumHistory); i++ {
		assert.Less(t, stats.MinimumHistory[i], stats.MinimumHistory[i-1])
	}
}

func TestScenario_singleWorkerFixedSequence(t *testing.T) {
	s := newQuietSimulation(t, guaranteedDelivery(1, 5),
		WithSamplerFactory(sampling.SequenceFactory([]float64{5.2, 3.1, 3.1, 4.0, 1.9})))

	require.NoError(t, s.Run(context.Background()))

	stats, e := s.Stats(time.Second)
	require.NoError(t, e)
	assert.Equal(t, []float64{5.2, 3.1, 1.9}, stats.MinimumHistory)
	assert.Equal(t, []float64{5.2, 3.1, 1.9}, stats.SentByWorker[0])
}

func TestRun_lowerBoundAndNoRedundantUpdates(t *testing.T) {
	p := guaranteedDelivery(4, 300)
	p.Seed = 1234
	s := newQuietSimulation(t, p)

	require.NoError(t, s.Run(context.Background()))

	stats, e := s.Stats(time.Second)
	require.NoError(t, e)
	status := s.Status()
	assert.Equal(t, status.BestLocal, stats.GlobalMinimum)
	for _, w := range s.Workers() {
		assert.LessOrEqual(t, stats.GlobalMinimum, w.LocalMinimum())
	}
	for _, sent := range stats.SentByWorker {
		for i := 1; i < len(sent); i++ {
			assert.Less(t, sent[i], sent[i-1])
		}
	}
}

func TestRun_stopsOnCancellation(t *testing.T) {
	s := newQuietSimulation(t, parameters.Default())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx)
	}()

	select {
	case e := <-done:
		assert.NoError(t, e)
	case <-time.After(5 * time.Second):
		t.Fatal("simulation ignored cancellation")
	}
	assert.Greater(t, s.Round(), 0)
	assert.Equal(t, minimum.Stopped, s.Coordinator().State())
}

func TestRun_workersRetireOnceCoordinatorStops(t *testing.T) {
	p := parameters.Default()
	p.WorkerCount = 3
	p.BroadcastLinkCapacity = 4
	s := newQuietSimulation(t, p)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	require.NoError(t, s.Run(ctx))
	require.Equal(t, minimum.Stopped, s.Coordinator().State())

	for _, w := range s.Workers() {
		assert.ErrorIs(t, w.Tick(context.Background()), minimum.ErrCoordinatorGone)
		assert.True(t, w.Retired())
	}
	assert.Equal(t, 0, s.Status().ActiveWorkers)

	stats, e := s.Stats(time.Second)
	require.NoError(t, e)
	assert.ElementsMatch(t, []int{0, 1, 2}, stats.RetiredWorkers)
}

func TestRun_reportsAtInterval(t *testing.T) {
	buffer := &syncBuffer{}
	p := parameters.Default()
	p.WorkerCount = 2
	p.ReportInterval = 5
	p.MaxRounds = 12
	s, e := New(p, WithLogger(log.New(buffer, "", 0)))
	require.NoError(t, e)
	defer s.Close()

	require.NoError(t, s.Run(context.Background()))

	stats, e := s.Stats(time.Second)
	require.NoError(t, e)
	assert.Equal(t, 10, stats.LastRound)
	output := buffer.String()
	assert.True(t, strings.Contains(output, "Round 5,"))
	assert.True(t, strings.Contains(output, "Round 10,"))
	assert.False(t, strings.Contains(output, "Round 12,"))
}

func TestRun_coordinatorFailureSurfaced(t *testing.T) {
	s := newQuietSimulation(t, guaranteedDelivery(2, 0))
	for _, w := range s.Workers() {
		w.Retire(errors.New("unplugged"))
	}

	done := make(chan error, 1)
	go func() {
		done <- s.Run(context.Background())
	}()

	select {
	case e := <-done:
		assert.ErrorIs(t, e, minimum.ErrInboundClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("simulation kept running without a coordinator")
	}

	stats, e := s.Stats(time.Second)
	require.NoError(t, e)
	assert.ElementsMatch(t, []int{0, 1}, stats.RetiredWorkers)
}

func TestRun_skipsRetiredWorker(t *testing.T) {
	s := newQuietSimulation(t, guaranteedDelivery(2, 3),
		WithSamplerFactory(sampling.SequenceFactory([]float64{1.0}, []float64{3.0, 2.0, 1.5})))
	s.Workers()[0].Retire(errors.New("unplugged"))

	require.NoError(t, s.Run(context.Background()))

	assert.Equal(t, 0, s.Workers()[0].Ticks())
	assert.Equal(t, 3, s.Workers()[1].Ticks())
	stats, e := s.Stats(time.Second)
	require.NoError(t, e)
	assert.Equal(t, 1.5, stats.GlobalMinimum)
}

func TestStatus_beforeFirstRound(t *testing.T) {
	s := newQuietSimulation(t, parameters.Default())

	status := s.Status()

	assert.Equal(t, 0, status.Round)
	assert.Equal(t, 5, status.ActiveWorkers)
	assert.True(t, math.IsInf(status.BestLocal, 1))
}

func TestNew_rejectsInvalidParameters(t *testing.T) {
	p := parameters.Default()
	p.Sigma = 0

	_, e := New(p)

	assert.Error(t, e)
}

func TestNew_externalObserver(t *testing.T) {
	s := newQuietSimulation(t, parameters.Default(), WithObserver(nopObserver{}))

	_, e := s.Stats(time.Second)

	assert.ErrorIs(t, e, ErrNoMonitor)
	assert.NotEmpty(t, s.ID())
}

type nopObserver struct{}

func (nopObserver) MinimumChanged(float64, float64) {}
func (nopObserver) UpdateSent(int, float64) {}
func (nopObserver) MessageDropped(string, float64, error) {}
func (nopObserver) WorkerRetired(int, error) {}
func (nopObserver) RoundCompleted(int, int, float64, float64) {}

type syncBuffer struct {
	mutex  sync.Mutex
	buffer bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.buffer.Write(p)
}

func (b *syncBuffer) String() string {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.buffer.String()
}
