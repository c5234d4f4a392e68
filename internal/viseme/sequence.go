// Package viseme generates and schedules mouth-shape codes for lip-sync.
// Codes follow the 15-value Oculus viseme set the avatar renderers expect.
package viseme

import (
	"regexp"
	"strings"
)

// Code is one of the 15 Oculus lip-sync viseme IDs.
type Code int

const (
	Sil Code = 0  // silence
	PP  Code = 1  // p, b
	FF  Code = 2  // f, v
	TH  Code = 3  // th (dental; renderer only, the text classifier never emits it)
	DD  Code = 4  // t, d
	KK  Code = 5  // k, g
	CH  Code = 6  // c, j
	SS  Code = 7  // s, z
	NN  Code = 8  // n, m
	RR  Code = 9  // r, l
	AA  Code = 10 // a (father)
	E   Code = 11 // e (bed)
	IH  Code = 12 // i (sit)
	OH  Code = 13 // o (go)
	OU  Code = 14 // u (boot)
)

var nonWord = regexp.MustCompile(`[^\w\s]`)

// Codes converts text into an ordered frame sequence of viseme codes. Each
// character contributes a fixed number of unit-duration frames: vowels four,
// sibilants three, most consonants two, h one. Two silence frames separate
// words; nothing trails the last word. Unknown characters map to silence.
// Empty or all-punctuation input yields a single silence frame.
//
// This is a best-effort approximation, not phoneme-accurate. The table and
// cadence are kept stable for reproducibility; do not tune them casually.
func Codes(text string) []Code {
	var seq []Code

	cleaned := nonWord.ReplaceAllString(strings.ToLower(text), "")
	words := strings.Fields(cleaned)

	for wi, word := range words {
		for i := 0; i < len(word); i++ {
			ch := word[i]
			var next byte
			if i+1 < len(word) {
				next = word[i+1]
			}

			code := Sil
			frames := 2

			switch {
			case ch == 'a':
				code, frames = AA, 4
			case ch == 'e':
				code, frames = E, 4
			case ch == 'i':
				code, frames = IH, 4
			case ch == 'o':
				code, frames = OH, 4
			case ch == 'u':
				code, frames = OU, 4
			case ch == 'p' || ch == 'b':
				code = PP
			case ch == 'f' || ch == 'v':
				code = FF
			case ch == 't' || ch == 'd':
				code = DD
			case ch == 'k' || ch == 'g':
				code = KK
			case ch == 'c' || ch == 'j' || (ch == 'h' && next == 'c'):
				code = CH
			case ch == 's' || ch == 'z':
				code, frames = SS, 3
			case ch == 'n' || ch == 'm':
				code = NN
			case ch == 'r' || ch == 'l':
				code = RR
			case ch == 'w':
				code = OU
			case ch == 'h':
				code, frames = AA, 1
			}

			for j := 0; j < frames; j++ {
				seq = append(seq, code)
			}
		}

		// Brief silence between words only, never after the last.
		if wi < len(words)-1 {
			seq = append(seq, Sil, Sil)
		}
	}

	if len(seq) == 0 {
		seq = append(seq, Sil)
	}
	return seq
}

// WordCount returns the number of speakable words in text, used by the
// fallback timing heuristic.
func WordCount(text string) int {
	return len(strings.Fields(nonWord.ReplaceAllString(text, "")))
}
