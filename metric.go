package openspeech

import "strings"

// WER computes the word error rate between a reference
// and a hypothesis transcript: the word-level edit
// distance divided by the number of reference words.
func WER(reference, hypothesis string) float64 {
	return errorRate(strings.Fields(reference), strings.Fields(hypothesis))
}

// CER computes the character error rate between a
// reference and a hypothesis transcript.
// Spaces are not counted as characters.
func CER(reference, hypothesis string) float64 {
	return errorRate(splitChars(reference), splitChars(hypothesis))
}

func splitChars(s string) []string {
	var res []string
	for _, ch := range s {
		if ch == ' ' {
			continue
		}
		res = append(res, string(ch))
	}
	return res
}

func errorRate(ref, hyp []string) float64 {
	if len(ref) == 0 {
		if len(hyp) == 0 {
			return 0
		}
		return 1
	}
	return float64(editDistance(ref, hyp)) / float64(len(ref))
}

// editDistance computes the Levenshtein distance between
// two token sequences.
func editDistance(a, b []string) int {
	row := make([]int, len(b)+1)
	for j := range row {
		row[j] = j
	}
	for i := 1; i <= len(a); i++ {
		prev := row[0]
		row[0] = i
		for j := 1; j <= len(b); j++ {
			subst := prev
			if a[i-1] != b[j-1] {
				subst++
			}
			prev = row[j]
			row[j] = min3(subst, row[j-1]+1, row[j]+1)
		}
	}
	return row[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
