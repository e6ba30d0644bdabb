package openspeech

import (
	"fmt"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anyvec"
)

// CollectOutputs reduces a batch of decoder logits into
// a Result for the given stage.
//
// The loss is computed by crit over the shifted targets:
// the logits at timestep t are scored against the target
// token at position t+1, so the leading
// start-of-sequence id is never a training target.
// Word and character error rates are computed from the
// argmax predictions.
//
// All lifecycle steps of a model should route through
// this function (or an equivalent collector) so that
// train, valid and test share identical metric
// semantics.
func CollectOutputs(stage Stage, logits anyseq.Seq, targets [][]int,
	crit anynet.Cost, vocab Vocabulary, logger StepLogger) *Result {
	steps := logits.Output()
	if len(steps) == 0 {
		panic("collect outputs: empty logits sequence")
	}
	c := logits.Creator()
	numClasses := steps[0].Packed.Len() / steps[0].NumPresent()

	var idx, costCount int
	costs := anyseq.Map(logits, func(a anydiff.Res, n int) anydiff.Res {
		present := steps[idx].Present
		desired := make([]float64, n*numClasses)
		row := 0
		for i, pres := range present {
			if !pres {
				continue
			}
			id := vocab.PadID()
			if idx+1 < len(targets[i]) {
				id = targets[i][idx+1]
			}
			if id < 0 || id >= numClasses {
				panic(fmt.Sprintf("collect outputs: target id out of range: %d", id))
			}
			desired[row*numClasses+id] = 1
			row++
		}
		idx++
		costCount += n
		desRes := anydiff.NewConst(c.MakeVectorData(c.MakeNumericList(desired)))
		return crit.Cost(desRes, a, n)
	})

	loss := anydiff.Sum(anyseq.Sum(costs))
	loss = anydiff.Scale(loss, c.MakeNumeric(1/float64(costCount)))

	preds := Predictions(logits)
	var wer, cer float64
	for i, t := range targets {
		ref := vocab.DecodeIDs(t[1:])
		hyp := vocab.DecodeIDs(preds[i])
		wer += WER(ref, hyp)
		cer += CER(ref, hyp)
	}
	wer /= float64(len(targets))
	cer /= float64(len(targets))

	lossVal := scalarFloat(loss.Output())
	if logger != nil {
		logger(stage, wer, cer, lossVal)
	}

	return &Result{
		Stage: stage,
		Loss:  loss,
		WER:   wer,
		CER:   cer,
		Log: map[string]float64{
			string(stage) + "_loss": lossVal,
			"wer":                   wer,
			"cer":                   cer,
		},
	}
}

// Predictions takes the argmax over the class dimension
// at every timestep, producing one predicted id sequence
// per sequence in the batch.
func Predictions(logits anyseq.Seq) [][]int {
	steps := logits.Output()
	if len(steps) == 0 {
		return nil
	}
	res := make([][]int, len(steps[0].Present))
	for _, b := range steps {
		numClasses := b.Packed.Len() / b.NumPresent()
		row := 0
		for i, pres := range b.Present {
			if !pres {
				continue
			}
			v := b.Packed.Slice(row*numClasses, (row+1)*numClasses)
			res[i] = append(res[i], anyvec.MaxIndex(v))
			row++
		}
	}
	return res
}
