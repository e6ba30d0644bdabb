// Command charlm trains a character-level language model
// on a plain text file.
package main

import (
	"bufio"
	"flag"
	"log"
	"os"
	"sort"

	"github.com/tqslj2/openspeech"
	_ "github.com/tqslj2/openspeech/lstmlm"
	"github.com/tqslj2/openspeech/trainer"
	"github.com/unixpickle/anynet/anysgd"
	"github.com/unixpickle/anyvec/anyvec32"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/rip"
)

func main() {
	var configPath string
	var corpusPath string
	flag.StringVar(&configPath, "config", "config.yaml", "configuration file")
	flag.StringVar(&corpusPath, "corpus", "corpus.txt", "training text file")
	flag.Parse()

	configs, err := openspeech.LoadConfig(configPath)
	if err != nil {
		essentials.Die(err)
	}

	lines, err := readLines(corpusPath)
	if err != nil {
		essentials.Die(err)
	}
	vocab := corpusVocabulary(lines)

	creator := anyvec32.CurrentCreator()
	model, err := openspeech.NewModel(configs.Model.Name, creator, configs, vocab)
	if err != nil {
		essentials.Die(err)
	}
	if err := model.BuildModel(); err != nil {
		essentials.Die(err)
	}

	samples := corpusSamples(lines, vocab, configs.Model.MaxLength)
	log.Printf("Training on %d sequences (%d classes)...", samples.Len(),
		vocab.NumClasses())

	t := &trainer.Trainer{
		Model:   model,
		Creator: creator,
		Params:  model.Parameters(),
		PadID:   vocab.PadID(),
	}
	sgd := &anysgd.SGD{
		Fetcher:     t,
		Gradienter:  t,
		Transformer: &anysgd.Adam{},
		Samples:     samples,
		Rater:       anysgd.ConstRater(configs.Training.LearningRate),
		StatusFunc: func(b anysgd.Batch) {
			if t.LastResult != nil {
				log.Printf("iter %d: loss=%f wer=%f cer=%f", t.NumSteps,
					t.LastResult.LossValue(), t.LastResult.WER, t.LastResult.CER)
			}
		},
		BatchSize: configs.Training.BatchSize,
	}

	log.Println("Press ctrl+c once to stop...")
	sgd.Run(rip.NewRIP().Chan())

	eval, err := trainer.Evaluate(t, samples, configs.Training.BatchSize)
	if err != nil {
		essentials.Die(err)
	}
	log.Printf("Final: loss=%f wer=%f cer=%f", eval.Loss, eval.WER, eval.CER)
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if len(sc.Text()) > 1 {
			lines = append(lines, sc.Text())
		}
	}
	return lines, sc.Err()
}

func corpusVocabulary(lines []string) *openspeech.CharVocabulary {
	present := map[rune]bool{}
	for _, line := range lines {
		for _, ch := range line {
			present[ch] = true
		}
	}
	var chars []rune
	for ch := range present {
		chars = append(chars, ch)
	}
	sort.Slice(chars, func(i, j int) bool {
		return chars[i] < chars[j]
	})
	return openspeech.NewCharVocabulary(string(chars))
}

func corpusSamples(lines []string, vocab *openspeech.CharVocabulary,
	maxLength int) trainer.SliceSampleList {
	var samples trainer.SliceSampleList
	for _, line := range lines {
		ids := vocab.EncodeText(line)
		if len(ids) > maxLength {
			ids = ids[:maxLength]
		}
		target := append([]int{vocab.SOSID()}, ids...)
		target = append(target, vocab.EOSID())
		samples = append(samples, &trainer.Sample{Target: target})
	}
	return samples
}
