// Package openspeech provides a shared lifecycle for
// training and evaluating speech recognition models.
// It includes sub-packages implementing concrete model
// variants and an experiment driver.
//
// Every model exposes the same four operations: a
// build step, an inference-only forward pass, and
// training/validation/test steps which each produce a
// Result record.
// The driver back-propagates the loss from a Result; a
// model never updates its own parameters.
package openspeech

import (
	"errors"
	"log"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
)

// ErrNotBuilt is returned by lifecycle steps that are
// called before BuildModel.
var ErrNotBuilt = errors.New("model not built")

// A Stage identifies which part of the experiment
// lifecycle produced a Result.
type Stage string

// These are the lifecycle stages.
const (
	StageTrain Stage = "train"
	StageValid Stage = "valid"
	StageTest  Stage = "test"
)

// A StepLogger receives per-step metrics.
// It is fire-and-forget; implementations should not
// block.
type StepLogger func(stage Stage, wer, cer, loss float64)

// LogSteps is the default StepLogger.
// It writes to the standard logger.
func LogSteps(stage Stage, wer, cer, loss float64) {
	log.Printf("%s: loss=%f wer=%f cer=%f", stage, loss, wer, cer)
}

// ForwardOut is the output of an inference-only forward
// pass.
type ForwardOut struct {
	// Logits contains the raw per-step class scores in
	// the log domain.
	Logits anyseq.Seq

	// Predictions contains the decoded label sequence for
	// each sequence in the batch.
	Predictions [][]int

	// EncoderOutputLengths contains the number of encoder
	// timesteps per sequence.
	// It is nil for models without an encoder.
	EncoderOutputLengths []int
}

// A Model is a speech model wired into the shared
// experiment lifecycle.
//
// BuildModel must be called exactly once before any
// other operation; the other operations return
// ErrNotBuilt otherwise.
//
// TrainingStep applies teacher forcing at the model's
// configured ratio.
// ValidationStep and TestStep force the ratio to zero
// and never mutate parameters, so repeated calls with
// the same batch yield identical losses.
//
// A Model is not safe for concurrent use.
type Model interface {
	BuildModel() error
	Forward(batch *Batch) (*ForwardOut, error)
	TrainingStep(batch *Batch, batchIdx int) (*Result, error)
	ValidationStep(batch *Batch, batchIdx int) (*Result, error)
	TestStep(batch *Batch, batchIdx int) (*Result, error)

	// Parameters returns the learnable variables, for use
	// by an external optimizer.
	// It returns nil before BuildModel.
	Parameters() []*anydiff.Var
}
