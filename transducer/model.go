// Package transducer implements an acoustic
// sequence-transducer model: a recurrent encoder over
// feature frames whose per-frame class scores are scored
// against target labels by a blank-symbol alignment
// loss.
//
// The dynamic-programming loss lattice itself is
// external (anyctc); this package only orchestrates it.
package transducer

import (
	"errors"
	"fmt"

	"github.com/tqslj2/openspeech"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anynet/anyctc"
	"github.com/unixpickle/anynet/anyrnn"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
)

// ModelName is the registry name of the model.
const ModelName = "lstm_transducer"

// DefaultBlankThresh is the blank threshold used for the
// label search when decoding predictions.
const DefaultBlankThresh = -1e-3

func init() {
	openspeech.RegisterModel(ModelName, func(c anyvec.Creator,
		configs *openspeech.Config, vocab openspeech.Vocabulary) (openspeech.Model, error) {
		return NewModel(c, configs, vocab)
	})
}

// A Model wraps an encoder network in the experiment
// lifecycle.
//
// The encoder maps feature frames to log-softmax scores
// over the vocabulary classes, with the blank as the
// last class.
type Model struct {
	Configs *openspeech.Config
	Vocab   openspeech.Vocabulary
	Creator anyvec.Creator

	// Logger receives per-step metrics.
	Logger openspeech.StepLogger

	// BlankThresh controls the greediness of the label
	// search used for predictions.
	BlankThresh float64

	// Encoder is nil until BuildModel is called.
	Encoder anyrnn.Stack

	dropouts []*anynet.Dropout
}

// NewModel creates an unbuilt transducer model.
// The configuration is validated immediately.
func NewModel(c anyvec.Creator, configs *openspeech.Config,
	vocab openspeech.Vocabulary) (*Model, error) {
	if err := configs.Validate(); err != nil {
		return nil, essentials.AddCtx("new "+ModelName, err)
	}
	return &Model{
		Configs:     configs,
		Vocab:       vocab,
		Creator:     c,
		Logger:      openspeech.LogSteps,
		BlankThresh: DefaultBlankThresh,
	}, nil
}

// BuildModel constructs the encoder from the configs and
// the vocabulary size.
// It must be called exactly once before any other
// operation.
func (m *Model) BuildModel() error {
	cfg := &m.Configs.Model
	if cfg.InputDim <= 0 {
		return fmt.Errorf("build model: input_dim must be positive: %d",
			cfg.InputDim)
	}
	numClasses := m.Vocab.NumClasses()

	var encoder anyrnn.Stack
	m.dropouts = nil
	in := cfg.InputDim
	for i := 0; i < cfg.NumLayers; i++ {
		switch cfg.RNNType {
		case openspeech.RNNTypeLSTM:
			encoder = append(encoder, anyrnn.NewLSTM(m.Creator, in, cfg.HiddenStateDim))
		case openspeech.RNNTypeVanilla:
			encoder = append(encoder, anyrnn.NewVanilla(m.Creator, in,
				cfg.HiddenStateDim, anynet.Tanh))
		default:
			return fmt.Errorf("build model: unknown rnn_type: %q", cfg.RNNType)
		}
		in = cfg.HiddenStateDim
		if cfg.DropoutP > 0 {
			dropout := &anynet.Dropout{KeepProb: 1 - cfg.DropoutP}
			m.dropouts = append(m.dropouts, dropout)
			encoder = append(encoder, &anyrnn.LayerBlock{Layer: dropout})
		}
	}
	encoder = append(encoder, &anyrnn.LayerBlock{
		Layer: anynet.Net{
			anynet.NewFC(m.Creator, cfg.HiddenStateDim, numClasses),
			anynet.LogSoftmax,
		},
	})

	m.Encoder = encoder
	return nil
}

// Forward runs the encoder over a batch of feature
// sequences and decodes predictions with the label
// search.
func (m *Model) Forward(batch *openspeech.Batch) (*openspeech.ForwardOut, error) {
	if m.Encoder == nil {
		return nil, openspeech.ErrNotBuilt
	}
	if batch.Inputs == nil {
		return nil, errors.New("forward: batch has no inputs")
	}
	m.setDropout(false)
	logits := anyrnn.Map(batch.Inputs, m.Encoder)
	return &openspeech.ForwardOut{
		Logits:               logits,
		Predictions:          anyctc.BestLabels(logits, m.BlankThresh),
		EncoderOutputLengths: openspeech.SeqLengths(logits),
	}, nil
}

// TrainingStep encodes a batch with dropout enabled and
// collects a train Result.
func (m *Model) TrainingStep(batch *openspeech.Batch, batchIdx int) (*openspeech.Result, error) {
	return m.step(openspeech.StageTrain, batch)
}

// ValidationStep collects a valid Result.
// It does not mutate the encoder.
func (m *Model) ValidationStep(batch *openspeech.Batch, batchIdx int) (*openspeech.Result, error) {
	return m.step(openspeech.StageValid, batch)
}

// TestStep collects a test Result.
// It does not mutate the encoder.
func (m *Model) TestStep(batch *openspeech.Batch, batchIdx int) (*openspeech.Result, error) {
	return m.step(openspeech.StageTest, batch)
}

// Parameters returns the encoder parameters, or nil
// before BuildModel.
func (m *Model) Parameters() []*anydiff.Var {
	if m.Encoder == nil {
		return nil
	}
	var res []*anydiff.Var
	for _, b := range m.Encoder {
		res = append(res, anynet.AllParameters(b)...)
	}
	return res
}

func (m *Model) step(stage openspeech.Stage, batch *openspeech.Batch) (*openspeech.Result, error) {
	if m.Encoder == nil {
		return nil, openspeech.ErrNotBuilt
	}
	if batch.Inputs == nil {
		return nil, errors.New(string(stage) + " step: batch has no inputs")
	}
	m.setDropout(stage == openspeech.StageTrain)
	logits := anyrnn.Map(batch.Inputs, m.Encoder)
	return m.collectOutputs(stage, logits, batch.Targets), nil
}

// collectOutputs is the loss-kernel counterpart of
// openspeech.CollectOutputs: all three lifecycle steps
// route through it so that train, valid and test share
// identical metric semantics.
func (m *Model) collectOutputs(stage openspeech.Stage, logits anyseq.Seq,
	targets [][]int) *openspeech.Result {
	labels := m.referenceLabels(targets)

	c := logits.Creator()
	costs := anyctc.Cost(logits, labels)
	loss := anydiff.Sum(costs)
	loss = anydiff.Scale(loss, c.MakeNumeric(1/float64(len(labels))))

	preds := anyctc.BestLabels(logits, m.BlankThresh)
	var wer, cer float64
	for i, label := range labels {
		ref := m.Vocab.DecodeIDs(label)
		hyp := m.Vocab.DecodeIDs(preds[i])
		wer += openspeech.WER(ref, hyp)
		cer += openspeech.CER(ref, hyp)
	}
	wer /= float64(len(labels))
	cer /= float64(len(labels))

	res := &openspeech.Result{
		Stage: stage,
		Loss:  loss,
		WER:   wer,
		CER:   cer,
	}
	lossVal := res.LossValue()
	res.Log = map[string]float64{
		string(stage) + "_loss": lossVal,
		"wer":                   wer,
		"cer":                   cer,
	}
	if m.Logger != nil {
		m.Logger(stage, wer, cer, lossVal)
	}
	return res
}

// referenceLabels strips the reserved ids from the
// targets, leaving the label sequences the loss kernel
// aligns against.
func (m *Model) referenceLabels(targets [][]int) [][]int {
	res := make([][]int, len(targets))
	for i, t := range targets {
		labels := []int{}
		for _, id := range t {
			if id == m.Vocab.PadID() || id == m.Vocab.SOSID() ||
				id == m.Vocab.EOSID() || id == m.Vocab.BlankID() {
				continue
			}
			labels = append(labels, id)
		}
		res[i] = labels
	}
	return res
}

func (m *Model) setDropout(enabled bool) {
	for _, d := range m.dropouts {
		d.Enabled = enabled
	}
}
