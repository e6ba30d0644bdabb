package openspeech

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestCharVocabularyIDs(t *testing.T) {
	vocab := NewCharVocabulary("abca")
	if vocab.NumClasses() != 7 {
		t.Errorf("expected 7 classes but got %d", vocab.NumClasses())
	}
	if vocab.PadID() != 0 || vocab.SOSID() != 1 || vocab.EOSID() != 2 {
		t.Errorf("unexpected reserved ids: %d %d %d", vocab.PadID(),
			vocab.SOSID(), vocab.EOSID())
	}
	if vocab.BlankID() != vocab.NumClasses()-1 {
		t.Errorf("expected blank id %d but got %d", vocab.NumClasses()-1,
			vocab.BlankID())
	}
}

func TestCharVocabularyRoundTrip(t *testing.T) {
	vocab := NewCharVocabulary("abc")
	ids := vocab.EncodeText("cabz")
	if !reflect.DeepEqual(ids, []int{5, 3, 4}) {
		t.Errorf("unexpected ids: %v", ids)
	}
	withMarkers := append([]int{vocab.SOSID()}, ids...)
	withMarkers = append(withMarkers, vocab.EOSID(), vocab.PadID(),
		vocab.BlankID())
	if text := vocab.DecodeIDs(withMarkers); text != "cab" {
		t.Errorf("expected %q but got %q", "cab", text)
	}
}

func TestLoadCharVocabulary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.json")
	if err := os.WriteFile(path, []byte(`{"characters": "ab"}`), 0644); err != nil {
		t.Fatal(err)
	}
	vocab, err := LoadCharVocabulary(path)
	if err != nil {
		t.Fatal(err)
	}
	if vocab.NumClasses() != 6 {
		t.Errorf("expected 6 classes but got %d", vocab.NumClasses())
	}
	if _, err := LoadCharVocabulary(filepath.Join(t.TempDir(), "none.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
