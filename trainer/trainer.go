package trainer

import (
	"errors"

	"github.com/tqslj2/openspeech"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anynet/anysgd"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
)

// A Trainer creates batches and computes gradients by
// routing them through a model's TrainingStep.
//
// Gradient application is left to the SGD loop; the
// Trainer only back-propagates the loss returned by the
// step.
type Trainer struct {
	Model   openspeech.Model
	Creator anyvec.Creator
	Params  []*anydiff.Var

	// PadID fills the tail of short target sequences so
	// that every batch is rectangular.
	PadID int

	// After every gradient computation, LastResult is set
	// to the Result from the step.
	LastResult *openspeech.Result

	// NumSteps counts the training steps taken so far and
	// doubles as the batch index passed to the model.
	NumSteps int
}

// Fetch produces an *openspeech.Batch for the subset of
// samples.
// The s argument must implement SampleList.
// The batch may not be empty.
func (t *Trainer) Fetch(s anysgd.SampleList) (anysgd.Batch, error) {
	if s.Len() == 0 {
		return nil, errors.New("fetch batch: empty batch")
	}
	l, ok := s.(SampleList)
	if !ok {
		return nil, errors.New("fetch batch: not a SampleList")
	}

	ins := make([][]anyvec.Vector, l.Len())
	targets := make([][]int, l.Len())
	var haveInputs bool
	var maxLen int
	for i := 0; i < l.Len(); i++ {
		sample, err := l.GetSample(i)
		if err != nil {
			return nil, essentials.AddCtx("fetch batch", err)
		}
		ins[i] = sample.Input
		targets[i] = append([]int{}, sample.Target...)
		if len(sample.Input) > 0 {
			haveInputs = true
		}
		if len(targets[i]) > maxLen {
			maxLen = len(targets[i])
		}
	}
	for i := range targets {
		for len(targets[i]) < maxLen {
			targets[i] = append(targets[i], t.PadID)
		}
	}

	batch := &openspeech.Batch{Targets: targets}
	if haveInputs {
		batch.Inputs = anyseq.ConstSeqList(t.Creator, ins)
	}
	return batch, nil
}

// Gradient computes the gradient for the batch's loss.
// It also sets t.LastResult and advances t.NumSteps.
//
// The b argument must be an *openspeech.Batch.
func (t *Trainer) Gradient(b anysgd.Batch) anydiff.Grad {
	res := anydiff.NewGrad(t.Params...)

	out, err := t.Model.TrainingStep(b.(*openspeech.Batch), t.NumSteps)
	if err != nil {
		panic(err)
	}
	t.NumSteps++
	t.LastResult = out

	c := out.Loss.Output().Creator()
	upstream := c.MakeVectorData(c.MakeNumericList([]float64{1}))
	out.Loss.Propagate(upstream, res)

	return res
}

// An EvalResult aggregates metrics over an evaluation
// pass.
type EvalResult struct {
	Loss float64
	WER  float64
	CER  float64

	// Batches is the number of batches evaluated.
	Batches int
}

// Evaluate runs the model's ValidationStep over the
// sample list in batches and averages the metrics.
func Evaluate(t *Trainer, s SampleList, batchSize int) (*EvalResult, error) {
	if batchSize <= 0 {
		batchSize = s.Len()
	}
	res := &EvalResult{}
	for i := 0; i < s.Len(); i += batchSize {
		j := i + batchSize
		if j > s.Len() {
			j = s.Len()
		}
		fetched, err := t.Fetch(s.Slice(i, j))
		if err != nil {
			return nil, essentials.AddCtx("evaluate", err)
		}
		out, err := t.Model.ValidationStep(fetched.(*openspeech.Batch), res.Batches)
		if err != nil {
			return nil, essentials.AddCtx("evaluate", err)
		}
		res.Loss += out.LossValue()
		res.WER += out.WER
		res.CER += out.CER
		res.Batches++
	}
	if res.Batches > 0 {
		res.Loss /= float64(res.Batches)
		res.WER /= float64(res.Batches)
		res.CER /= float64(res.Batches)
	}
	return res, nil
}
