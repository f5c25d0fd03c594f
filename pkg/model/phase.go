package model

// Phase is one of the ten canonical lifecycle phases. F0..F9 are the
// internal identifiers used throughout the core; the original system's
// "E1_ESTRATEGIA..." names are presentation aliases only and never appear
// past the HTTP boundary.
type Phase string

const (
	PhaseF0 Phase = "F0" // Intake
	PhaseF1 Phase = "F1" // Parallel validation
	PhaseF2 Phase = "F2" // Hard lock: may-start-execution
	PhaseF3 Phase = "F3" // Formalization / legal
	PhaseF4 Phase = "F4" // Execution
	PhaseF5 Phase = "F5" // Delivery evidence
	PhaseF6 Phase = "F6" // Hard lock: may-accept-invoice
	PhaseF7 Phase = "F7" // Payment preparation
	PhaseF8 Phase = "F8" // Hard lock: may-release-payment
	PhaseF9 Phase = "F9" // Closed
)

// Phases lists every phase in lifecycle order.
var Phases = []Phase{PhaseF0, PhaseF1, PhaseF2, PhaseF3, PhaseF4, PhaseF5, PhaseF6, PhaseF7, PhaseF8, PhaseF9}

// HardLockPhases are the three phases whose advancement is gated by a
// deterministic predicate (C6) rather than plain agent consensus.
var HardLockPhases = map[Phase]bool{
	PhaseF2: true,
	PhaseF6: true,
	PhaseF8: true,
}

// IsHardLock reports whether p is one of F2, F6, F8.
func (p Phase) IsHardLock() bool {
	return HardLockPhases[p]
}

// Valid reports whether p is one of the ten canonical phases.
func (p Phase) Valid() bool {
	for _, known := range Phases {
		if p == known {
			return true
		}
	}
	return false
}

// Index returns p's position in the lifecycle (F0=0 .. F9=9), or -1 if p is
// not a canonical phase.
func (p Phase) Index() int {
	for i, known := range Phases {
		if p == known {
			return i
		}
	}
	return -1
}
