package assembly

import (
	"time"

	"github.com/bft-labs/repoboot/pkg/log"
)

// Phase is the state of one Assemble call.
type Phase int

const (
	PhaseStarting Phase = iota
	PhaseWaitingForDependencies
	PhaseAssembled
	PhaseTimedOut
	PhaseFailed
)

// String returns a human-readable representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseStarting:
		return "Starting"
	case PhaseWaitingForDependencies:
		return "WaitingForDependencies"
	case PhaseAssembled:
		return "Assembled"
	case PhaseTimedOut:
		return "TimedOut"
	case PhaseFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (p Phase) Terminal() bool {
	return p == PhaseAssembled || p == PhaseTimedOut || p == PhaseFailed
}

// Observer is called on every phase transition of an Assemble call.
type Observer interface {
	OnPhaseChange(previous, current Phase, reason string)
}

// attempt tracks the phase of a single Assemble call. It is owned by the
// calling goroutine.
type attempt struct {
	phase    Phase
	started  time.Time
	logger   log.Logger
	observer Observer
}

func newAttempt(logger log.Logger, observer Observer) *attempt {
	return &attempt{
		phase:    PhaseStarting,
		started:  time.Now(),
		logger:   logger,
		observer: observer,
	}
}

func (a *attempt) enter(next Phase, reason string) {
	if a.phase.Terminal() {
		return
	}
	if next == PhaseAssembled && a.phase != PhaseWaitingForDependencies {
		return
	}

	prev := a.phase
	a.phase = next

	if a.observer != nil {
		a.observer.OnPhaseChange(prev, next, reason)
	}
	a.logger.Debug("assembly phase",
		log.String("from", prev.String()),
		log.String("to", next.String()),
		log.String("reason", reason))

	if next.Terminal() {
		outcome := next.String()
		assemblyTotal.WithLabelValues(outcome).Inc()
		assemblyDuration.WithLabelValues(outcome).Observe(time.Since(a.started).Seconds())
	}
}
