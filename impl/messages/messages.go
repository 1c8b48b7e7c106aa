package messages

import (
	"fmt"
)

// UpdateMessage travels from a worker to the coordinator: the worker has seen
// a local minimum this low.
type UpdateMessage struct {
	Worker int
	Value  float64
}

func (m UpdateMessage) ToString() string {
	return fmt.Sprintf("Update{worker=%d;value=%v}", m.Worker, m.Value)
}

// BroadcastMessage travels from the coordinator to every worker: this is the
// best value known system-wide.
type BroadcastMessage struct {
	Value float64
}

func (m BroadcastMessage) ToString() string {
	return fmt.Sprintf("Broadcast{value=%v}", m.Value)
}

// Observability events, delivered to the monitor actor.

type MinimumChanged struct {
	Old float64
	New float64
}

type UpdateSent struct {
	Worker int
	Value  float64
}

type MessageDropped struct {
	Link   string
	Value  float64
	Reason string
}

type WorkerRetired struct {
	Worker int
	Reason string
}

type RoundCompleted struct {
	Round         int
	ActiveWorkers int
	BestLocal     float64
	MeanLocal     float64
}

type GetStats struct{}

type Stats struct {
	GlobalMinimum  float64
	MinimumHistory []float64
	UpdatesSent    int
	SentByWorker   map[int][]float64
	Dropped        int
	DroppedByLink  map[string]int
	RetiredWorkers []int
	LastRound      int
}

func (s *Stats) Copy() *Stats {
	if s == nil {
		return nil
	}

	c := &Stats{
		GlobalMinimum:  s.GlobalMinimum,
		MinimumHistory: append([]float64(nil), s.MinimumHistory...),
		UpdatesSent:    s.UpdatesSent,
		SentByWorker:   make(map[int][]float64, len(s.SentByWorker)),
		Dropped:        s.Dropped,
		DroppedByLink:  make(map[string]int, len(s.DroppedByLink)),
		RetiredWorkers: append([]int(nil), s.RetiredWorkers...),
		LastRound:      s.LastRound,
	}
	for worker, values := range s.SentByWorker {
		c.SentByWorker[worker] = append([]float64(nil), values...)
	}
	for name, count := range s.DroppedByLink {
		c.DroppedByLink[name] = count
	}
	return c
}
