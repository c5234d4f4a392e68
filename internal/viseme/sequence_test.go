package viseme

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodes_EmptyInput(t *testing.T) {
	assert.Equal(t, []Code{Sil}, Codes(""))
}

func TestCodes_AllPunctuation(t *testing.T) {
	assert.Equal(t, []Code{Sil}, Codes("?!... ---"))
}

func TestCodes_Hi(t *testing.T) {
	got := Codes("hi")

	// 'h' opens the mouth briefly (aa-adjacent, one frame), 'i' holds four
	// frames, and nothing trails the final word.
	want := []Code{AA, IH, IH, IH, IH}
	assert.Equal(t, want, got)
}

func TestCodes_FrameWeights(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []Code
	}{
		{"vowel holds four frames", "a", []Code{AA, AA, AA, AA}},
		{"sibilant holds three", "s", []Code{SS, SS, SS}},
		{"stop consonant holds two", "b", []Code{PP, PP}},
		{"unknown maps to silence", "y", []Code{Sil, Sil}},
		{"digit maps to silence", "7", []Code{Sil, Sil}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Codes(tc.in))
		})
	}
}

func TestCodes_WordBoundarySilence(t *testing.T) {
	got := Codes("no no")

	// n(2) o(4) | sil sil | n(2) o(4)
	want := []Code{NN, NN, OH, OH, OH, OH, Sil, Sil, NN, NN, OH, OH, OH, OH}
	assert.Equal(t, want, got)

	// Silence pairs appear between words only, never after the last.
	assert.NotEqual(t, Sil, got[len(got)-1])
}

func TestCodes_ConsonantTable(t *testing.T) {
	cases := []struct {
		in   string
		code Code
	}{
		{"p", PP}, {"b", PP},
		{"f", FF}, {"v", FF},
		{"t", DD}, {"d", DD},
		{"k", KK}, {"g", KK},
		{"c", CH}, {"j", CH},
		{"z", SS},
		{"n", NN}, {"m", NN},
		{"r", RR}, {"l", RR},
		{"w", OU},
	}

	for _, tc := range cases {
		got := Codes(tc.in)
		if assert.NotEmpty(t, got, "input %q", tc.in) {
			assert.Equal(t, tc.code, got[0], "input %q", tc.in)
		}
	}
}

func TestWordCount(t *testing.T) {
	assert.Equal(t, 0, WordCount(""))
	assert.Equal(t, 0, WordCount("..."))
	assert.Equal(t, 2, WordCount("hello, world!"))
	assert.Equal(t, 3, WordCount("one  two\nthree"))
}
