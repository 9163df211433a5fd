package domain

// SlotStatus is the lifecycle state of a slot. Along the canonical fork a slot
// advances Processed -> Confirmed -> Rooted; an abandoned slot goes to Dead.
// A slot's status never regresses.
type SlotStatus string

const (
	SlotProcessed SlotStatus = "processed"
	SlotConfirmed SlotStatus = "confirmed"
	SlotRooted    SlotStatus = "rooted"
	SlotDead      SlotStatus = "dead"
)

// rank orders statuses for the no-regress check. Dead is terminal from any
// non-rooted state.
func (s SlotStatus) rank() int {
	switch s {
	case SlotProcessed:
		return 0
	case SlotConfirmed:
		return 1
	case SlotRooted:
		return 2
	case SlotDead:
		return 3
	}
	return -1
}

// CanTransition reports whether a slot may move from s to next.
func (s SlotStatus) CanTransition(next SlotStatus) bool {
	if s == next {
		return false
	}
	if s == SlotRooted || s == SlotDead {
		return false
	}
	return next.rank() > s.rank()
}

// SlotStatusUpdate is one slot lifecycle notification from the validator.
type SlotStatusUpdate struct {
	Slot   uint64
	Parent *uint64
	Status SlotStatus
}
