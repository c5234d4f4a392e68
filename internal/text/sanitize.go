// Package text prepares LLM replies for speech synthesis.
package text

import (
	"regexp"
	"strings"
)

// Compiled once; the reply path runs these on every spoken turn.
var (
	mdLink     = regexp.MustCompile(`\[([^\]]+)\]\(https?://[^\s)]+\)`)
	mdCode     = regexp.MustCompile("`{1,3}([^`]+)`{1,3}")
	mdBold     = regexp.MustCompile(`\*{1,3}([^*]+)\*{1,3}`)
	mdItalic   = regexp.MustCompile(`_{1,3}([^_]+)_{1,3}`)
	mdLineLead = regexp.MustCompile(`(?m)^\s*[-*+#>]\s+`)
	wsRuns     = regexp.MustCompile(`[ \t]{2,}`)
	nlRuns     = regexp.MustCompile(`\n{2,}`)
)

// SanitizeForSpeech strips markdown and markup so synthesis does not read
// symbols like asterisks or backticks aloud. Links collapse to their text,
// emphasis and inline code lose their markers, leading bullets and headers
// are dropped, and runs of whitespace are collapsed.
func SanitizeForSpeech(input string) string {
	if input == "" {
		return ""
	}
	t := mdLink.ReplaceAllString(input, "$1")
	t = mdCode.ReplaceAllString(t, "$1")
	t = mdBold.ReplaceAllString(t, "$1")
	t = mdItalic.ReplaceAllString(t, "$1")
	t = mdLineLead.ReplaceAllString(t, "")
	t = wsRuns.ReplaceAllString(t, " ")
	t = nlRuns.ReplaceAllString(t, "\n")
	return strings.TrimSpace(t)
}
