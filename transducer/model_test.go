package transducer

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/tqslj2/openspeech"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anynet/anysgd"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec32"
)

func testConfigs() *openspeech.Config {
	return &openspeech.Config{
		Model: openspeech.ModelConfig{
			Name:           ModelName,
			MaxLength:      16,
			InputDim:       6,
			HiddenStateDim: 8,
			NumLayers:      2,
			DropoutP:       0,
			RNNType:        openspeech.RNNTypeLSTM,
		},
	}
}

func testBatch(c anyvec.Creator, vocab *openspeech.CharVocabulary) *openspeech.Batch {
	gen := rand.New(rand.NewSource(1))
	lengths := []int{10, 9, 8}
	seqs := make([][]anyvec.Vector, len(lengths))
	for i, l := range lengths {
		for t := 0; t < l; t++ {
			frame := make([]float64, 6)
			for j := range frame {
				frame[j] = gen.NormFloat64()
			}
			seqs[i] = append(seqs[i], c.MakeVectorData(c.MakeNumericList(frame)))
		}
	}

	encode := func(s string) []int {
		ids := append([]int{vocab.SOSID()}, vocab.EncodeText(s)...)
		return append(ids, vocab.EOSID())
	}
	return &openspeech.Batch{
		Inputs: anyseq.ConstSeqList(c, seqs),
		Targets: [][]int{
			encode("abca"),
			encode("bca"),
			encode("cab"),
		},
	}
}

func testModel(t *testing.T, configs *openspeech.Config) (*Model, *openspeech.Batch) {
	c := anyvec32.CurrentCreator()
	vocab := openspeech.NewCharVocabulary("abc")
	m, err := NewModel(c, configs, vocab)
	if err != nil {
		t.Fatal(err)
	}
	m.Logger = nil
	return m, testBatch(c, vocab)
}

func TestModelNotBuilt(t *testing.T) {
	m, batch := testModel(t, testConfigs())
	if _, err := m.Forward(batch); !errors.Is(err, openspeech.ErrNotBuilt) {
		t.Errorf("expected ErrNotBuilt but got %v", err)
	}
	if _, err := m.TestStep(batch, 0); !errors.Is(err, openspeech.ErrNotBuilt) {
		t.Errorf("expected ErrNotBuilt but got %v", err)
	}
}

func TestModelBuildRequiresInputDim(t *testing.T) {
	configs := testConfigs()
	configs.Model.InputDim = 0
	m, _ := testModel(t, configs)
	if err := m.BuildModel(); err == nil {
		t.Error("expected error for missing input_dim")
	}
}

func TestModelMissingInputs(t *testing.T) {
	m, batch := testModel(t, testConfigs())
	if err := m.BuildModel(); err != nil {
		t.Fatal(err)
	}
	batch.Inputs = nil
	if _, err := m.Forward(batch); err == nil {
		t.Error("expected error for missing inputs")
	}
	if _, err := m.TrainingStep(batch, 0); err == nil {
		t.Error("expected error for missing inputs")
	}
}

func TestModelForward(t *testing.T) {
	m, batch := testModel(t, testConfigs())
	if err := m.BuildModel(); err != nil {
		t.Fatal(err)
	}
	out, err := m.Forward(batch)
	if err != nil {
		t.Fatal(err)
	}
	expectedLens := []int{10, 9, 8}
	if len(out.EncoderOutputLengths) != len(expectedLens) {
		t.Fatalf("expected %d lengths but got %d", len(expectedLens),
			len(out.EncoderOutputLengths))
	}
	for i, l := range expectedLens {
		if out.EncoderOutputLengths[i] != l {
			t.Errorf("sequence %d: expected length %d but got %d", i, l,
				out.EncoderOutputLengths[i])
		}
	}
	if len(out.Predictions) != 3 {
		t.Fatalf("expected 3 prediction rows but got %d", len(out.Predictions))
	}
	steps := out.Logits.Output()
	if len(steps) != 10 {
		t.Fatalf("expected 10 logit steps but got %d", len(steps))
	}
	if steps[0].Packed.Len() != 3*m.Vocab.NumClasses() {
		t.Errorf("unexpected packed length: %d", steps[0].Packed.Len())
	}
}

func TestModelTrainingIterations(t *testing.T) {
	m, batch := testModel(t, testConfigs())
	if err := m.BuildModel(); err != nil {
		t.Fatal(err)
	}
	c := m.Creator
	adam := &anysgd.Adam{}
	for i := 0; i < 3; i++ {
		res, err := m.TrainingStep(batch, i)
		if err != nil {
			t.Fatal(err)
		}
		loss := res.LossValue()
		if math.IsNaN(loss) || math.IsInf(loss, 0) {
			t.Fatalf("iteration %d: loss is not finite: %f", i, loss)
		}

		grad := anydiff.NewGrad(m.Parameters()...)
		upstream := c.MakeVector(1)
		upstream.AddScalar(c.MakeNumeric(1))
		res.Loss.Propagate(upstream, grad)
		grad = adam.Transform(grad)
		grad.Scale(c.MakeNumeric(-1e-2))
		grad.AddToVars()
	}
}

func TestModelEvalDeterminism(t *testing.T) {
	m, batch := testModel(t, testConfigs())
	if err := m.BuildModel(); err != nil {
		t.Fatal(err)
	}
	res1, err := m.ValidationStep(batch, 0)
	if err != nil {
		t.Fatal(err)
	}
	res2, err := m.ValidationStep(batch, 1)
	if err != nil {
		t.Fatal(err)
	}
	if res1.LossValue() != res2.LossValue() {
		t.Errorf("validation losses differ: %f vs %f", res1.LossValue(),
			res2.LossValue())
	}
	res3, err := m.TestStep(batch, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res1.LossValue() != res3.LossValue() {
		t.Errorf("validation and test losses differ: %f vs %f",
			res1.LossValue(), res3.LossValue())
	}
	if res3.Stage != openspeech.StageTest {
		t.Errorf("unexpected stage: %s", res3.Stage)
	}
}

func TestReferenceLabels(t *testing.T) {
	m, _ := testModel(t, testConfigs())
	labels := m.referenceLabels([][]int{
		{1, 3, 4, 2, 0, 0},
		{1, 5, 2},
	})
	if len(labels) != 2 {
		t.Fatalf("expected 2 rows but got %d", len(labels))
	}
	if len(labels[0]) != 2 || labels[0][0] != 3 || labels[0][1] != 4 {
		t.Errorf("unexpected labels: %v", labels[0])
	}
	if len(labels[1]) != 1 || labels[1][0] != 5 {
		t.Errorf("unexpected labels: %v", labels[1])
	}
}
