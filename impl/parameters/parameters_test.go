package parameters

import (
	"github.com/stretchr/testify/assert"
	"minimum-discovery-simulation/impl/link"
	"testing"
	"time"
)

func TestDefault_valid(t *testing.T) {
	p := Default()

	assert.NoError(t, p.Validate())
	assert.Equal(t, 5, p.WorkerCount)
	assert.Equal(t, link.BestEffort, p.UpdatePolicy().Mode)
	assert.Equal(t, link.Timed, p.BroadcastPolicy().Mode)
	assert.Equal(t, 5*time.Millisecond, p.BroadcastPolicy().Deadline)
}

func TestValidate_reportsEveryProblem(t *testing.T) {
	p := &Parameters{
		WorkerCount:           0,
		Sigma:                 0,
		UpdateLinkCapacity:    -1,
		BroadcastLinkCapacity: -1,
		UpdateMode:            "lossy",
		UpdateDeadlineNs:      0,
		BroadcastDeadlineNs:   0,
		ReportInterval:        0,
		MaxRounds:             -1,
	}

	e := p.Validate()

	assert.Error(t, e)
	for _, fragment := range []string{
		"worker count", "sigma", "update link capacity", "broadcast link capacity",
		"update deadline", "broadcast deadline", "report interval", "max rounds", "lossy",
	} {
		assert.Contains(t, e.Error(), fragment)
	}
}

func TestUpdatePolicy_blocking(t *testing.T) {
	p := Default()
	p.UpdateMode = link.Blocking.String()

	assert.Equal(t, link.Blocking, p.UpdatePolicy().Mode)
}

func TestUpdatePolicy_timedUsesOwnDeadline(t *testing.T) {
	p := Default()
	p.UpdateMode = link.Timed.String()
	p.UpdateDeadlineNs = int(40 * time.Millisecond)
	p.BroadcastDeadlineNs = int(3 * time.Millisecond)

	assert.Equal(t, link.Policy{Mode: link.Timed, Deadline: 40 * time.Millisecond}, p.UpdatePolicy())
	assert.Equal(t, 3*time.Millisecond, p.BroadcastPolicy().Deadline)
}
