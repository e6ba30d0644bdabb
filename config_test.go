package openspeech

import (
	"os"
	"path/filepath"
	"testing"
)

func validTestConfig() *Config {
	return &Config{
		Model: ModelConfig{
			Name:                "lstm_lm",
			TeacherForcingRatio: 0.5,
			MaxLength:           32,
			HiddenStateDim:      16,
			NumLayers:           2,
			DropoutP:            0.1,
			RNNType:             RNNTypeLSTM,
		},
		Training: TrainingConfig{
			LearningRate: 1e-3,
			BatchSize:    4,
		},
	}
}

func TestConfigValidate(t *testing.T) {
	if err := validTestConfig().Validate(); err != nil {
		t.Errorf("valid config rejected: %s", err)
	}

	mutations := []func(c *Config){
		func(c *Config) { c.Model.TeacherForcingRatio = 1.5 },
		func(c *Config) { c.Model.TeacherForcingRatio = -0.1 },
		func(c *Config) { c.Model.MaxLength = 0 },
		func(c *Config) { c.Model.HiddenStateDim = 0 },
		func(c *Config) { c.Model.NumLayers = 0 },
		func(c *Config) { c.Model.DropoutP = 1 },
		func(c *Config) { c.Model.InputDim = -1 },
		func(c *Config) { c.Model.RNNType = "gru" },
		func(c *Config) { c.Training.LearningRate = -1 },
		func(c *Config) { c.Training.BatchSize = -1 },
	}
	for i, mut := range mutations {
		c := validTestConfig()
		mut(c)
		if err := c.Validate(); err == nil {
			t.Errorf("mutation %d: expected validation error", i)
		}
	}
}

func TestLoadConfig(t *testing.T) {
	contents := `
model:
  name: lstm_lm
  teacher_forcing_ratio: 1.0
  max_length: 16
  hidden_state_dim: 8
  num_layers: 1
  dropout_p: 0
  rnn_type: lstm
training:
  learning_rate: 0.001
  batch_size: 3
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}
	c, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Model.Name != "lstm_lm" || c.Model.HiddenStateDim != 8 {
		t.Errorf("unexpected model config: %+v", c.Model)
	}
	if c.Training.BatchSize != 3 {
		t.Errorf("unexpected batch size: %d", c.Training.BatchSize)
	}
}

func TestLoadConfigUnknownField(t *testing.T) {
	contents := `
model:
  name: lstm_lm
  max_length: 16
  hidden_state_dim: 8
  num_layers: 1
  rnn_type: lstm
  optimizer: adam
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("expected error for unknown field")
	}
}
