package openspeech

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

// A Result is the record produced by a lifecycle step
// for a single batch.
// It is transient: the driver consumes it and does not
// retain it across batches.
type Result struct {
	Stage Stage

	// Loss is the scalar batch loss.
	// The driver may back-propagate through it; the step
	// that produced it has no gradient side effects of
	// its own.
	Loss anydiff.Res

	WER float64
	CER float64

	// Log is a snapshot of the step's scalar metrics,
	// keyed by metric name.
	Log map[string]float64
}

// LossValue returns the numerical value of the loss.
func (r *Result) LossValue() float64 {
	return scalarFloat(r.Loss.Output())
}

func scalarFloat(v anyvec.Vector) float64 {
	switch sum := anyvec.Sum(v).(type) {
	case float32:
		return float64(sum)
	case float64:
		return sum
	default:
		return 0
	}
}
