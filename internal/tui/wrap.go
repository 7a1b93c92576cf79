package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

type word struct {
	text   string
	width  int
	marked bool
}

// splitWords breaks a line on spaces and flags words found in marked.
// Trailing punctuation is ignored for the lookup but stays part of the word.
func splitWords(line string, marked map[string]bool) []word {
	fields := strings.Fields(line)
	words := make([]word, len(fields))
	for i, f := range fields {
		words[i] = word{
			text:   f,
			width:  runewidth.StringWidth(f),
			marked: marked[strings.Trim(f, ".,:;!?")],
		}
	}
	return words
}

// wrapText wraps each line of text to width, keeping explicit line breaks.
// Marked words are rendered with highlight, everything else with base.
func wrapText(text string, width int, base, highlight lipgloss.Style, marked map[string]bool) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = wrapWords(splitWords(line, marked), width, base, highlight)
	}
	return strings.Join(lines, "\n")
}

// wrapWords greedily fills lines up to width. Words wider than a line are
// broken by display width. Non-positive width disables wrapping.
func wrapWords(words []word, width int, base, highlight lipgloss.Style) string {
	render := func(w word) string {
		if w.marked {
			return highlight.Render(w.text)
		}
		return base.Render(w.text)
	}
	space := base.Render(" ")

	var out, cur []string
	curWidth := 0
	flush := func() {
		out = append(out, strings.Join(cur, space))
		cur, curWidth = nil, 0
	}
	for _, w := range words {
		if width > 0 && curWidth > 0 && curWidth+1+w.width > width {
			flush()
		}
		for width > 0 && w.width > width {
			head, rest := cutWidth(w.text, width)
			out = append(out, render(word{text: head, marked: w.marked}))
			w.text, w.width = rest, runewidth.StringWidth(rest)
		}
		if w.text == "" {
			continue
		}
		if curWidth > 0 {
			curWidth++
		}
		cur = append(cur, render(w))
		curWidth += w.width
	}
	if len(cur) > 0 || len(out) == 0 {
		flush()
	}
	return strings.Join(out, "\n")
}

// cutWidth splits s after at most width columns, always taking at least one rune.
func cutWidth(s string, width int) (string, string) {
	used := 0
	for i, r := range s {
		rw := runewidth.RuneWidth(r)
		if used+rw > width && i > 0 {
			return s[:i], s[i:]
		}
		used += rw
	}
	return s, ""
}
