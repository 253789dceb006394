package negotiation

import "fmt"

// State is a phase of a run.
type State string

const (
	StateInitiated      State = "initiated"
	StateRFQEmitted     State = "rfq_emitted"
	StateRound1InFlight State = "round1_in_flight"
	StateRound1Complete State = "round1_complete"
	StateReflecting     State = "reflecting"
	StateRound2InFlight State = "round2_in_flight"
	StateRound2Complete State = "round2_complete"
	StateScored         State = "scored"
	StateDecided        State = "decided"
	StateDone           State = "done"
	StateFailed         State = "failed"
)

// transitions lists the forward edges of the run. Failed is reachable from
// every non-terminal state and is not listed.
var transitions = map[State][]State{
	StateInitiated:      {StateRFQEmitted},
	StateRFQEmitted:     {StateRound1InFlight},
	StateRound1InFlight: {StateRound1Complete},
	StateRound1Complete: {StateReflecting, StateRound2InFlight},
	StateReflecting:     {StateRound2InFlight},
	StateRound2InFlight: {StateRound2Complete},
	StateRound2Complete: {StateScored},
	StateScored:         {StateDecided},
	StateDecided:        {StateDone},
}

// Terminal reports whether s ends the run.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// CanTransition reports whether a run in s may move to next.
func (s State) CanTransition(next State) bool {
	if s.Terminal() {
		return false
	}
	if next == StateFailed {
		return true
	}
	for _, candidate := range transitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

func (s State) validate(next State) error {
	if !s.CanTransition(next) {
		return fmt.Errorf("negotiation: invalid transition %s -> %s", s, next)
	}
	return nil
}
