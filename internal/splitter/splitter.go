// Package splitter segments oversized reply text into platform-safe
// chunks. Splits prefer paragraph breaks, then line breaks, then sentence
// ends, then word boundaries, and never land inside a fenced code block.
// Concatenating the returned chunks reproduces the input exactly.
package splitter

import (
	"strings"
	"unicode/utf8"
)

// span is a run of text that is either plain prose or one complete fenced
// code block. Splitting text into spans first makes a cut inside a fence
// structurally impossible.
type span struct {
	text   string
	fenced bool
}

// Segment splits text into ordered chunks of at most maxLen bytes each.
// A fenced code block longer than maxLen is emitted whole as a single
// oversized chunk rather than corrupted; that is the one case where a
// chunk may exceed maxLen.
func Segment(text string, maxLen int) []string {
	if maxLen <= 0 || len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}

	for _, sp := range lex(text) {
		if sp.fenced {
			switch {
			case current.Len()+len(sp.text) <= maxLen:
				current.WriteString(sp.text)
			case len(sp.text) <= maxLen:
				flush()
				current.WriteString(sp.text)
			default:
				// Oversized fence: its own chunk, never split.
				flush()
				chunks = append(chunks, sp.text)
			}
			continue
		}

		remaining := sp.text
		for remaining != "" {
			space := maxLen - current.Len()
			if len(remaining) <= space {
				current.WriteString(remaining)
				break
			}
			// Starting fresh beats cramming a sliver after a large fence.
			if current.Len() > 0 && space < maxLen/4 {
				flush()
				continue
			}
			cut := findSplitPoint(remaining, space)
			current.WriteString(remaining[:cut])
			remaining = remaining[cut:]
			flush()
		}
	}
	flush()

	if len(chunks) == 0 {
		return []string{text}
	}
	return chunks
}

// findSplitPoint picks the best cut position in text[:limit], preferring
// paragraph breaks, then newlines, then sentence ends, then spaces. Each
// candidate only counts when it lands past limit/2 so chunks stay
// reasonably full. Falls back to a hard cut at limit, backed off to a
// rune boundary.
func findSplitPoint(text string, limit int) int {
	if len(text) <= limit {
		return len(text)
	}
	searchArea := text[:limit]

	if idx := strings.LastIndex(searchArea, "\n\n"); idx > limit/2 {
		return idx + 2
	}
	if idx := strings.LastIndex(searchArea, "\n"); idx > limit/2 {
		return idx + 1
	}
	for _, sep := range []string{". ", "! ", "? "} {
		if idx := strings.LastIndex(searchArea, sep); idx > limit/2 {
			return idx + len(sep)
		}
	}
	if idx := strings.LastIndex(searchArea, " "); idx > limit/2 {
		return idx + 1
	}

	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	if cut == 0 {
		cut = limit
	}
	return cut
}

// lex partitions text into alternating plain and fenced spans. The
// concatenation of all span texts is exactly the input. A fence opens at
// a line beginning (after up to three spaces) with at least three
// backticks or tildes, and closes at a line with an equal-or-longer run
// of the same marker; an unclosed fence extends to the end of input.
func lex(text string) []span {
	var spans []span
	var plain strings.Builder

	flushPlain := func() {
		if plain.Len() > 0 {
			spans = append(spans, span{text: plain.String()})
			plain.Reset()
		}
	}

	pos := 0
	for pos < len(text) {
		line, next := takeLine(text, pos)

		marker, markerLen := fenceMarker(line)
		if marker == 0 {
			plain.WriteString(line)
			pos = next
			continue
		}

		// Collect the whole fenced block, close line included; an
		// unclosed fence runs to end of input.
		var fence strings.Builder
		fence.WriteString(line)
		pos = next
		for pos < len(text) {
			line, next = takeLine(text, pos)
			fence.WriteString(line)
			pos = next
			if closesFence(line, marker, markerLen) {
				break
			}
		}

		flushPlain()
		spans = append(spans, span{text: fence.String(), fenced: true})
	}
	flushPlain()

	return spans
}

// takeLine returns the line starting at pos including its terminator, and
// the offset of the next line.
func takeLine(text string, pos int) (string, int) {
	if idx := strings.IndexByte(text[pos:], '\n'); idx >= 0 {
		return text[pos : pos+idx+1], pos + idx + 1
	}
	return text[pos:], len(text)
}

// fenceMarker reports the fence character (` or ~) and run length when
// the line opens a fenced code block, or (0, 0) otherwise.
func fenceMarker(line string) (byte, int) {
	s := line
	indent := 0
	for indent < len(s) && indent < 3 && s[indent] == ' ' {
		indent++
	}
	s = s[indent:]
	if len(s) < 3 {
		return 0, 0
	}
	c := s[0]
	if c != '`' && c != '~' {
		return 0, 0
	}
	run := 0
	for run < len(s) && s[run] == c {
		run++
	}
	if run < 3 {
		return 0, 0
	}
	// An info string containing the marker char would be ambiguous for
	// backticks; CommonMark forbids it, so treat such lines as plain.
	if c == '`' && strings.ContainsRune(s[run:], '`') {
		return 0, 0
	}
	return c, run
}

// closesFence reports whether the line closes a fence opened with the
// given marker and run length.
func closesFence(line string, marker byte, openLen int) bool {
	s := strings.TrimRight(line, "\n")
	indent := 0
	for indent < len(s) && indent < 3 && s[indent] == ' ' {
		indent++
	}
	s = s[indent:]
	run := 0
	for run < len(s) && s[run] == marker {
		run++
	}
	if run < openLen {
		return false
	}
	return strings.TrimSpace(s[run:]) == ""
}
