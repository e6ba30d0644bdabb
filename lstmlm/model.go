package lstmlm

import (
	"fmt"

	"github.com/tqslj2/openspeech"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anynet/anyrnn"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
)

// ModelName is the registry name of the model.
const ModelName = "lstm_lm"

// A Model wraps a Decoder in the experiment lifecycle.
//
// The decoder is owned exclusively by the model; the
// configuration and vocabulary are shared, read-only
// references.
type Model struct {
	Configs *openspeech.Config
	Vocab   openspeech.Vocabulary
	Creator anyvec.Creator

	// TeacherForcingRatio is copied out of the configs
	// at construction time.
	TeacherForcingRatio float64

	// Criterion scores logits against one-hot targets.
	Criterion anynet.Cost

	// Logger receives per-step metrics.
	Logger openspeech.StepLogger

	// Decoder is nil until BuildModel is called.
	Decoder *Decoder

	dropouts []*anynet.Dropout
}

// NewModel creates an unbuilt language model.
// The configuration is validated immediately.
func NewModel(c anyvec.Creator, configs *openspeech.Config,
	vocab openspeech.Vocabulary) (*Model, error) {
	if err := configs.Validate(); err != nil {
		return nil, essentials.AddCtx("new "+ModelName, err)
	}
	return &Model{
		Configs:             configs,
		Vocab:               vocab,
		Creator:             c,
		TeacherForcingRatio: configs.Model.TeacherForcingRatio,
		Criterion:           anynet.DotCost{},
		Logger:              openspeech.LogSteps,
	}, nil
}

// BuildModel constructs the decoder from the configs and
// the vocabulary size.
// It must be called exactly once before any other
// operation.
func (m *Model) BuildModel() error {
	cfg := &m.Configs.Model
	numClasses := m.Vocab.NumClasses()

	var block anyrnn.Stack
	m.dropouts = nil
	in := numClasses
	for i := 0; i < cfg.NumLayers; i++ {
		switch cfg.RNNType {
		case openspeech.RNNTypeLSTM:
			block = append(block, anyrnn.NewLSTM(m.Creator, in, cfg.HiddenStateDim))
		case openspeech.RNNTypeVanilla:
			block = append(block, anyrnn.NewVanilla(m.Creator, in,
				cfg.HiddenStateDim, anynet.Tanh))
		default:
			return fmt.Errorf("build model: unknown rnn_type: %q", cfg.RNNType)
		}
		in = cfg.HiddenStateDim
		if cfg.DropoutP > 0 {
			dropout := &anynet.Dropout{KeepProb: 1 - cfg.DropoutP}
			m.dropouts = append(m.dropouts, dropout)
			block = append(block, &anyrnn.LayerBlock{Layer: dropout})
		}
	}

	m.Decoder = &Decoder{
		Creator: m.Creator,
		Block:   block,
		Out: anynet.Net{
			anynet.NewFC(m.Creator, cfg.HiddenStateDim, numClasses),
			anynet.LogSoftmax,
		},
		NumClasses: numClasses,
		SOSID:      m.Vocab.SOSID(),
		MaxLength:  cfg.MaxLength,
	}
	return nil
}

// Forward runs the inference-only decode path: no
// teacher forcing, no dropout.
func (m *Model) Forward(batch *openspeech.Batch) (*openspeech.ForwardOut, error) {
	if m.Decoder == nil {
		return nil, openspeech.ErrNotBuilt
	}
	m.setDropout(false)
	logits := m.Decoder.Decode(batch.Targets, 0)
	return &openspeech.ForwardOut{
		Logits:      logits,
		Predictions: openspeech.Predictions(logits),
	}, nil
}

// TrainingStep decodes with the configured teacher
// forcing ratio and collects a train Result.
func (m *Model) TrainingStep(batch *openspeech.Batch, batchIdx int) (*openspeech.Result, error) {
	return m.step(openspeech.StageTrain, batch, m.TeacherForcingRatio)
}

// ValidationStep decodes greedily and collects a valid
// Result.
// It does not mutate the decoder.
func (m *Model) ValidationStep(batch *openspeech.Batch, batchIdx int) (*openspeech.Result, error) {
	return m.step(openspeech.StageValid, batch, 0)
}

// TestStep decodes greedily and collects a test Result.
// It does not mutate the decoder.
func (m *Model) TestStep(batch *openspeech.Batch, batchIdx int) (*openspeech.Result, error) {
	return m.step(openspeech.StageTest, batch, 0)
}

// Parameters returns the decoder parameters, or nil
// before BuildModel.
func (m *Model) Parameters() []*anydiff.Var {
	if m.Decoder == nil {
		return nil
	}
	return m.Decoder.Parameters()
}

func (m *Model) step(stage openspeech.Stage, batch *openspeech.Batch,
	ratio float64) (*openspeech.Result, error) {
	if m.Decoder == nil {
		return nil, openspeech.ErrNotBuilt
	}
	m.setDropout(stage == openspeech.StageTrain)
	logits := m.Decoder.Decode(batch.Targets, ratio)
	res := openspeech.CollectOutputs(stage, logits, batch.Targets, m.Criterion,
		m.Vocab, m.Logger)
	return res, nil
}

func (m *Model) setDropout(enabled bool) {
	for _, d := range m.dropouts {
		d.Enabled = enabled
	}
}
