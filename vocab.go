package openspeech

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/unixpickle/essentials"
)

// A Vocabulary maps between token ids and text.
//
// The blank id is the last class, matching the
// convention of the sequence loss kernel, and is only
// meaningful for transducer-style models.
type Vocabulary interface {
	NumClasses() int
	PadID() int
	SOSID() int
	EOSID() int
	BlankID() int

	// DecodeIDs turns an id sequence into text, skipping
	// the reserved ids.
	DecodeIDs(ids []int) string
}

// A CharVocabulary is a character-level Vocabulary.
//
// Ids 0, 1 and 2 are reserved for the pad,
// start-of-sequence and end-of-sequence markers; the
// characters follow, and the final id is the blank.
type CharVocabulary struct {
	chars []rune
	ids   map[rune]int
}

// NewCharVocabulary creates a vocabulary from a set of
// characters.
// Duplicate characters are ignored.
func NewCharVocabulary(chars string) *CharVocabulary {
	res := &CharVocabulary{ids: map[rune]int{}}
	for _, ch := range chars {
		if _, ok := res.ids[ch]; ok {
			continue
		}
		res.ids[ch] = numReserved + len(res.chars)
		res.chars = append(res.chars, ch)
	}
	return res
}

// LoadCharVocabulary reads a vocabulary from a JSON file
// with a "characters" field.
func LoadCharVocabulary(path string) (*CharVocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, essentials.AddCtx("load vocabulary", err)
	}
	var file struct {
		Characters string `json:"characters"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, essentials.AddCtx("load vocabulary", err)
	}
	if file.Characters == "" {
		return nil, essentials.AddCtx("load vocabulary",
			fmt.Errorf("no characters in %s", path))
	}
	return NewCharVocabulary(file.Characters), nil
}

const numReserved = 3

// NumClasses returns the total class count, including
// the reserved ids and the blank.
func (c *CharVocabulary) NumClasses() int {
	return numReserved + len(c.chars) + 1
}

// PadID returns the padding id.
func (c *CharVocabulary) PadID() int {
	return 0
}

// SOSID returns the start-of-sequence id.
func (c *CharVocabulary) SOSID() int {
	return 1
}

// EOSID returns the end-of-sequence id.
func (c *CharVocabulary) EOSID() int {
	return 2
}

// BlankID returns the blank id, which is always the last
// class.
func (c *CharVocabulary) BlankID() int {
	return c.NumClasses() - 1
}

// EncodeText turns text into character ids, without the
// start or end markers.
// Characters outside the vocabulary are dropped.
func (c *CharVocabulary) EncodeText(text string) []int {
	var res []int
	for _, ch := range text {
		if id, ok := c.ids[ch]; ok {
			res = append(res, id)
		}
	}
	return res
}

// DecodeIDs turns ids back into text.
// Reserved ids and the blank are skipped.
func (c *CharVocabulary) DecodeIDs(ids []int) string {
	var b strings.Builder
	for _, id := range ids {
		if id < numReserved || id >= c.BlankID() {
			continue
		}
		b.WriteRune(c.chars[id-numReserved])
	}
	return b.String()
}
