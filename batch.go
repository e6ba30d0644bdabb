package openspeech

import "github.com/unixpickle/anydiff/anyseq"

// A Batch stores a batch of training sequences.
//
// Targets contains one token id sequence per batch
// element, always beginning with the start-of-sequence
// id.
// Inputs contains the corresponding feature sequences;
// it is nil for models which decode from the targets
// alone (e.g. language models).
type Batch struct {
	Inputs  anyseq.Seq
	Targets [][]int
}

// NumSeqs returns the number of sequences in the batch.
func (b *Batch) NumSeqs() int {
	return len(b.Targets)
}

// InputLengths returns the length of each input
// sequence, or nil if the batch has no inputs.
func (b *Batch) InputLengths() []int {
	if b.Inputs == nil {
		return nil
	}
	return SeqLengths(b.Inputs)
}

// TargetLengths returns the length of each target
// sequence.
func (b *Batch) TargetLengths() []int {
	res := make([]int, len(b.Targets))
	for i, t := range b.Targets {
		res[i] = len(t)
	}
	return res
}

// SeqLengths counts the present timesteps for each
// sequence in a sequence batch.
func SeqLengths(seq anyseq.Seq) []int {
	batches := seq.Output()
	if len(batches) == 0 {
		return nil
	}
	res := make([]int, len(batches[0].Present))
	for _, b := range batches {
		for i, pres := range b.Present {
			if pres {
				res[i]++
			}
		}
	}
	return res
}
