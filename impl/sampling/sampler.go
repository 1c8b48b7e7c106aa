package sampling

import (
	xrand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
	"sync"
	"time"
)

// Sampler draws candidate values. Samples are always strictly positive.
type Sampler interface {
	Sample() float64
}

type LogNormal struct {
	dist distuv.LogNormal
}

// NewLogNormal returns a log-normal sampler. A zero seed derives one from the
// clock.
func NewLogNormal(mu float64, sigma float64, seed uint64) *LogNormal {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	s := new(LogNormal)
	s.dist = distuv.LogNormal{
		Mu:    mu,
		Sigma: sigma,
		Src:   xrand.NewSource(seed),
	}
	return s
}

func (s *LogNormal) Sample() float64 {
	return s.dist.Rand()
}

// Factory builds the sampler of one worker.
type Factory func(worker int) Sampler

// LogNormalFactory gives every worker its own source. Worker i is seeded with
// seed+i so a fixed seed reproduces the whole run.
func LogNormalFactory(mu float64, sigma float64, seed uint64) Factory {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return func(worker int) Sampler {
		return NewLogNormal(mu, sigma, seed+uint64(worker))
	}
}

// Sequence replays fixed values and then keeps returning the last one.
type Sequence struct {
	values []float64
	next   int
	mutex  *sync.Mutex
}

// NewSequence panics when values is empty.
func NewSequence(values ...float64) *Sequence {
	if len(values) == 0 {
		panic("sampling: sequence needs at least one value")
	}
	s := new(Sequence)
	s.values = values
	s.mutex = &sync.Mutex{}
	return s
}

func (s *Sequence) Sample() float64 {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	v := s.values[s.next]
	if s.next < len(s.values)-1 {
		s.next++
	}
	return v
}

// SequenceFactory hands worker i the i-th sequence, wrapping around. It panics
// when no sequence or an empty one is given.
func SequenceFactory(sequences ...[]float64) Factory {
	if len(sequences) == 0 {
		panic("sampling: sequence factory needs at least one sequence")
	}
	for _, values := range sequences {
		if len(values) == 0 {
			panic("sampling: sequence needs at least one value")
		}
	}
	return func(worker int) Sampler {
		return NewSequence(sequences[worker%len(sequences)]...)
	}
}
