package engine

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	repeatedExclaim = regexp.MustCompile(`!{2,}`)
	repeatedQuery   = regexp.MustCompile(`\?{2,}`)
	repeatedComma   = regexp.MustCompile(`,{2,}`)
	longEllipsis    = regexp.MustCompile(`\.{4,}`)
	spaceBeforeStop = regexp.MustCompile(`\s+([.,!?;:])`)
	multiSpace      = regexp.MustCompile(`[ \t]{2,}`)
)

// postProcess cleans up a generated reply: drops immediately repeated
// sentences, normalizes runaway punctuation, and truncates overlong
// text at a natural boundary.
func postProcess(text string, maxLen int) string {
	text = normalizePunctuation(text)
	text = dropRepeatedSentences(text)
	text = truncateNatural(text, maxLen)
	return strings.TrimSpace(text)
}

// dropRepeatedSentences removes a sentence that repeats the one before
// it verbatim (case and whitespace insensitive). Models under high
// temperature occasionally echo themselves.
func dropRepeatedSentences(text string) string {
	sentences := splitSentences(text)
	if len(sentences) < 2 {
		return text
	}
	out := make([]string, 0, len(sentences))
	prev := ""
	for _, s := range sentences {
		key := strings.ToLower(strings.TrimSpace(s))
		if key != "" && key == prev {
			continue
		}
		out = append(out, s)
		prev = key
	}
	return strings.Join(out, " ")
}

// splitSentences splits on terminal punctuation, keeping the
// punctuation attached to its sentence. A run of terminal characters
// (an ellipsis, "?!") counts as one boundary.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
	}
	inStop := false
	for _, r := range text {
		terminal := r == '.' || r == '!' || r == '?'
		if inStop && !terminal {
			flush()
		}
		current.WriteRune(r)
		inStop = terminal
	}
	flush()
	return sentences
}

func normalizePunctuation(text string) string {
	text = repeatedExclaim.ReplaceAllString(text, "!")
	text = repeatedQuery.ReplaceAllString(text, "?")
	text = repeatedComma.ReplaceAllString(text, ",")
	text = longEllipsis.ReplaceAllString(text, "...")
	text = spaceBeforeStop.ReplaceAllString(text, "$1")
	text = multiSpace.ReplaceAllString(text, " ")
	return text
}

// truncateNatural cuts text at maxLen runes, backing up to the last
// sentence end within the cut, or the last word boundary if no sentence
// end exists. Never cuts mid-word.
func truncateNatural(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	cut := runes[:maxLen]

	lastStop := -1
	lastSpace := -1
	for i, r := range cut {
		switch {
		case r == '.' || r == '!' || r == '?':
			lastStop = i
		case unicode.IsSpace(r):
			lastSpace = i
		}
	}
	if lastStop > 0 {
		return string(cut[:lastStop+1])
	}
	if lastSpace > 0 {
		return strings.TrimRight(string(cut[:lastSpace]), " \t\n")
	}
	return string(cut)
}
