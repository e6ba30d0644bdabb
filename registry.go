package openspeech

import (
	"fmt"
	"sort"

	"github.com/unixpickle/anyvec"
)

// A Builder constructs an unbuilt Model from a validated
// configuration and a vocabulary.
// The caller must still call BuildModel on the result.
type Builder func(c anyvec.Creator, configs *Config, vocab Vocabulary) (Model, error)

var modelRegistry = map[string]Builder{}

// RegisterModel registers a model variant under a name.
// It is meant to be called from init functions of model
// packages.
// It panics if the name is already taken.
func RegisterModel(name string, b Builder) {
	if _, ok := modelRegistry[name]; ok {
		panic("model already registered: " + name)
	}
	modelRegistry[name] = b
}

// NewModel constructs the model variant registered under
// the name.
func NewModel(name string, c anyvec.Creator, configs *Config,
	vocab Vocabulary) (Model, error) {
	builder, ok := modelRegistry[name]
	if !ok {
		return nil, fmt.Errorf("unknown model: %q", name)
	}
	return builder(c, configs, vocab)
}

// ModelNames lists the registered model names in sorted
// order.
func ModelNames() []string {
	var res []string
	for name := range modelRegistry {
		res = append(res, name)
	}
	sort.Strings(res)
	return res
}
