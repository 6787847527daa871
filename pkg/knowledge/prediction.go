package knowledge

import "fmt"

// PredictionType identifies which element of a triple is being predicted
type PredictionType int

const (
	// PredictHead ranks every entity in the head slot
	PredictHead PredictionType = iota
	// PredictRelation ranks every relation in the relation slot
	PredictRelation
	// PredictTail ranks every entity in the tail slot
	PredictTail
)

// Slot returns the triple index being predicted.
func (p PredictionType) Slot() int {
	return int(p)
}

// PredictionTypeForSlot is the inverse of Slot.
func PredictionTypeForSlot(slot int) (PredictionType, error) {
	if slot < 0 || slot > 2 {
		return 0, fmt.Errorf("invalid triple slot %d", slot)
	}
	return PredictionType(slot), nil
}

func (p PredictionType) String() string {
	switch p {
	case PredictHead:
		return "head"
	case PredictRelation:
		return "relation"
	case PredictTail:
		return "tail"
	}
	return fmt.Sprintf("PredictionType(%d)", int(p))
}
