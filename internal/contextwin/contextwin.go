// Package contextwin keeps LLM prompts inside a fixed context budget. It
// compresses reference documents through cached AI summaries and folds older
// interview turns into a rolling digest, so prompts carry recent detail plus
// a compact view of everything else.
package contextwin

// Lengths and truncation are rune based since most content is Chinese text.

func runeLen(s string) int {
	return len([]rune(s))
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
