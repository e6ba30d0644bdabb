// Package lstmlm implements a recurrent language model
// wired into the shared experiment lifecycle.
package lstmlm

import (
	"fmt"
	"math/rand"

	"github.com/tqslj2/openspeech"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anynet/anyrnn"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var d Decoder
	serializer.RegisterTypedDeserializer(d.SerializerType(), DeserializeDecoder)
	openspeech.RegisterModel(ModelName, func(c anyvec.Creator,
		configs *openspeech.Config, vocab openspeech.Vocabulary) (openspeech.Model, error) {
		return NewModel(c, configs, vocab)
	})
}

// A Decoder is a recurrent network that produces one
// class distribution per decode step.
//
// Token inputs are fed to the recurrent block as one-hot
// vectors; the block output is reduced to log-softmax
// logits by the output network.
type Decoder struct {
	Creator anyvec.Creator

	Block anyrnn.Stack
	Out   anynet.Net

	NumClasses int
	SOSID      int

	// MaxLength bounds the number of decode steps.
	MaxLength int
}

// DeserializeDecoder deserializes a Decoder.
func DeserializeDecoder(d []byte) (*Decoder, error) {
	var blockData serializer.Bytes
	var out anynet.Net
	var numClasses, sosID, maxLength serializer.Int
	err := serializer.DeserializeAny(d, &blockData, &out, &numClasses, &sosID,
		&maxLength)
	if err != nil {
		return nil, essentials.AddCtx("deserialize Decoder", err)
	}
	slice, err := serializer.DeserializeSlice(blockData)
	if err != nil {
		return nil, essentials.AddCtx("deserialize Decoder", err)
	}
	block := make(anyrnn.Stack, len(slice))
	for i, x := range slice {
		b, ok := x.(anyrnn.Block)
		if !ok {
			return nil, fmt.Errorf("deserialize Decoder: not a Block: %T", x)
		}
		block[i] = b
	}
	res := &Decoder{
		Block:      block,
		Out:        out,
		NumClasses: int(numClasses),
		SOSID:      int(sosID),
		MaxLength:  int(maxLength),
	}
	if params := res.Parameters(); len(params) > 0 {
		res.Creator = params[0].Vector.Creator()
	}
	return res, nil
}

// Decode runs the decode loop for a batch of target
// sequences and produces the per-step logits.
//
// All targets must have the same length L, and the first
// token of each is fed at step 0 (conventionally the
// start-of-sequence id).
// The loop runs for L-1 steps, capped at MaxLength.
//
// The forcing policy is decided once per sequence: with
// probability equal to ratio, a sequence is fed its
// ground-truth tokens at every step; otherwise it is fed
// its own previous argmax prediction.
// With ratio 0 the targets are only used for length
// bookkeeping and the initial token.
//
// Back-propagation flows through the recurrent block and
// the output network; fed-back tokens are constants.
func (d *Decoder) Decode(targets [][]int, ratio float64) anyseq.Seq {
	n := len(targets)
	if n == 0 {
		panic("decode: empty batch")
	}
	for _, t := range targets {
		if len(t) != len(targets[0]) {
			panic("decode: ragged target batch")
		}
	}
	steps := len(targets[0]) - 1
	if steps <= 0 {
		panic("decode: targets need at least two tokens")
	}
	if d.MaxLength > 0 && steps > d.MaxLength {
		steps = d.MaxLength
	}

	forced := make([]bool, n)
	for i := range forced {
		forced[i] = ratio > 0 && rand.Float64() < ratio
	}

	present := make([]bool, n)
	for i := range present {
		present[i] = true
	}

	tokens := make([]int, n)
	for i, t := range targets {
		tokens[i] = t[0]
	}

	res := &decodeSeq{C: d.Creator, Block: d.Block, V: anydiff.VarSet{}}
	state := d.Block.Start(n)
	for t := 0; t < steps; t++ {
		blockRes := d.Block.Step(state, d.packTokens(tokens))
		pool := anydiff.NewVar(blockRes.Output())
		outRes := d.Out.Apply(pool, n)

		res.Steps = append(res.Steps, &decodeStep{
			Block: blockRes,
			Pool:  pool,
			Out:   outRes,
		})
		res.Batches = append(res.Batches, &anyseq.Batch{
			Packed:  outRes.Output(),
			Present: present,
		})
		res.V = anydiff.MergeVarSets(res.V, blockRes.Vars())
		res.V = anydiff.MergeVarSets(res.V, outRes.Vars())
		res.V.Del(pool)

		state = blockRes.State()
		if t+1 == steps {
			break
		}
		out := outRes.Output()
		for i := range tokens {
			if forced[i] {
				tokens[i] = targets[i][t+1]
			} else {
				row := out.Slice(i*d.NumClasses, (i+1)*d.NumClasses)
				tokens[i] = anyvec.MaxIndex(row)
			}
		}
	}
	return res
}

// Parameters returns the parameters of the recurrent
// block and the output network.
func (d *Decoder) Parameters() []*anydiff.Var {
	var res []*anydiff.Var
	for _, b := range d.Block {
		res = append(res, anynet.AllParameters(b)...)
	}
	return append(res, d.Out.Parameters()...)
}

// SerializerType returns the unique ID used to serialize
// a Decoder with the serializer package.
func (d *Decoder) SerializerType() string {
	return "github.com/tqslj2/openspeech/lstmlm.Decoder"
}

// Serialize serializes the Decoder.
func (d *Decoder) Serialize() ([]byte, error) {
	var blocks []serializer.Serializer
	for _, b := range d.Block {
		s, ok := b.(serializer.Serializer)
		if !ok {
			return nil, fmt.Errorf("serialize Decoder: not a Serializer: %T", b)
		}
		blocks = append(blocks, s)
	}
	blockData, err := serializer.SerializeSlice(blocks)
	if err != nil {
		return nil, err
	}
	return serializer.SerializeAny(
		serializer.Bytes(blockData),
		d.Out,
		serializer.Int(d.NumClasses),
		serializer.Int(d.SOSID),
		serializer.Int(d.MaxLength),
	)
}

func (d *Decoder) packTokens(tokens []int) anyvec.Vector {
	data := make([]float64, len(tokens)*d.NumClasses)
	for i, tok := range tokens {
		if tok < 0 || tok >= d.NumClasses {
			panic(fmt.Sprintf("decode: token id out of range: %d", tok))
		}
		data[i*d.NumClasses+tok] = 1
	}
	return d.Creator.MakeVectorData(d.Creator.MakeNumericList(data))
}

type decodeStep struct {
	Block anyrnn.Res
	Pool  *anydiff.Var
	Out   anydiff.Res
}

type decodeSeq struct {
	C       anyvec.Creator
	Block   anyrnn.Block
	Steps   []*decodeStep
	Batches []*anyseq.Batch
	V       anydiff.VarSet
}

func (d *decodeSeq) Creator() anyvec.Creator {
	return d.C
}

func (d *decodeSeq) Output() []*anyseq.Batch {
	return d.Batches
}

func (d *decodeSeq) Vars() anydiff.VarSet {
	return d.V
}

func (d *decodeSeq) Propagate(u []*anyseq.Batch, g anydiff.Grad) {
	var upState anyrnn.StateGrad
	for t := len(d.Steps) - 1; t >= 0; t-- {
		step := d.Steps[t]
		pool := step.Pool
		g[pool] = pool.Vector.Creator().MakeVector(pool.Vector.Len())
		step.Out.Propagate(u[t].Packed, g)
		down := g[pool]
		delete(g, pool)
		_, upState = step.Block.Propagate(down, upState, g)
	}
	if upState != nil {
		d.Block.PropagateStart(upState, g)
	}
}
