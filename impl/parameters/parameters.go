package parameters

import (
	"errors"
	"fmt"
	"minimum-discovery-simulation/impl/link"
	"time"
)

type Parameters struct {
	// Topology
	WorkerCount int `json:"n"`

	// Log-normal sampling
	Mu    float64 `json:"mu"`
	Sigma float64 `json:"sigma"`
	Seed  uint64  `json:"seed"`

	// Links
	UpdateLinkCapacity    int    `json:"update_capacity"`
	BroadcastLinkCapacity int    `json:"broadcast_capacity"`
	UpdateMode            string `json:"update_mode"`
	UpdateDeadlineNs      int    `json:"update_deadline_ns"`
	BroadcastDeadlineNs   int    `json:"broadcast_deadline_ns"`

	// Round driver
	ReportInterval int `json:"report_interval"`
	MaxRounds      int `json:"max_rounds"`
}

func Default() *Parameters {
	return &Parameters{
		WorkerCount:           5,
		Mu:                    0,
		Sigma:                 1,
		UpdateLinkCapacity:    0,
		BroadcastLinkCapacity: 1,
		UpdateMode:            link.BestEffort.String(),
		UpdateDeadlineNs:      int(5 * time.Millisecond),
		BroadcastDeadlineNs:   int(5 * time.Millisecond),
		ReportInterval:        10000,
	}
}

func (p *Parameters) Validate() error {
	var errs []error
	if p.WorkerCount <= 0 {
		errs = append(errs, fmt.Errorf("worker count must be positive, got %d", p.WorkerCount))
	}
	if p.Sigma <= 0 {
		errs = append(errs, fmt.Errorf("sigma must be positive, got %v", p.Sigma))
	}
	if p.UpdateLinkCapacity < 0 {
		errs = append(errs, fmt.Errorf("update link capacity must not be negative, got %d", p.UpdateLinkCapacity))
	}
	if p.BroadcastLinkCapacity < 0 {
		errs = append(errs, fmt.Errorf("broadcast link capacity must not be negative, got %d", p.BroadcastLinkCapacity))
	}
	if p.UpdateDeadlineNs <= 0 {
		errs = append(errs, fmt.Errorf("update deadline must be positive, got %dns", p.UpdateDeadlineNs))
	}
	if p.BroadcastDeadlineNs <= 0 {
		errs = append(errs, fmt.Errorf("broadcast deadline must be positive, got %dns", p.BroadcastDeadlineNs))
	}
	if p.ReportInterval <= 0 {
		errs = append(errs, fmt.Errorf("report interval must be positive, got %d", p.ReportInterval))
	}
	if p.MaxRounds < 0 {
		errs = append(errs, fmt.Errorf("max rounds must not be negative, got %d", p.MaxRounds))
	}
	if _, e := link.ParseMode(p.UpdateMode); e != nil {
		errs = append(errs, e)
	}
	return errors.Join(errs...)
}

// UpdatePolicy only uses the update deadline in timed mode.
func (p *Parameters) UpdatePolicy() link.Policy {
	mode, e := link.ParseMode(p.UpdateMode)
	if e != nil {
		mode = link.BestEffort
	}
	return link.Policy{Mode: mode, Deadline: p.UpdateDeadline()}
}

// BroadcastPolicy is always timed so that a slow worker can only delay a
// broadcast by the deadline.
func (p *Parameters) BroadcastPolicy() link.Policy {
	return link.Policy{Mode: link.Timed, Deadline: p.BroadcastDeadline()}
}

func (p *Parameters) BroadcastDeadline() time.Duration {
	return time.Duration(p.BroadcastDeadlineNs)
}

func (p *Parameters) UpdateDeadline() time.Duration {
	return time.Duration(p.UpdateDeadlineNs)
}
