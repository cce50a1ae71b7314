package layout

import (
	"sort"
	"strings"

	"github.com/wudi/zpdf/contentstream"
)

// Heading promotion thresholds: a line whose dominant font size exceeds the
// body size by these ratios becomes a heading of the given level.
const (
	h1Ratio = 1.7
	h2Ratio = 1.4
	h3Ratio = 1.15
)

// ToMarkdown renders spans as markdown. The body font size is the modal
// size by character count, rounded to half points; lines sufficiently
// larger become headings. Blocks keep reading order and are separated by
// blank lines.
func ToMarkdown(spans []contentstream.TextSpan) string {
	blocks := Analyze(spans)
	body := bodyFontSize(spans)

	var out []string
	for _, b := range blocks {
		var cur []string
		flush := func() {
			if len(cur) > 0 {
				out = append(out, strings.Join(cur, "\n"))
				cur = nil
			}
		}
		for _, l := range b.Lines {
			text := strings.TrimSpace(l.Text())
			if text == "" {
				continue
			}
			if level := headingLevel(l.FontSize(), body); level > 0 {
				flush()
				out = append(out, strings.Repeat("#", level)+" "+escapeMarkdown(text))
			} else if item, ok := listItem(text); ok {
				cur = append(cur, item)
			} else {
				cur = append(cur, escapeMarkdown(text))
			}
		}
		flush()
	}
	return strings.Join(out, "\n\n")
}

func headingLevel(size, body float64) int {
	if body <= 0 {
		return 0
	}
	ratio := size / body
	switch {
	case ratio >= h1Ratio:
		return 1
	case ratio >= h2Ratio:
		return 2
	case ratio >= h3Ratio:
		return 3
	default:
		return 0
	}
}

// bodyFontSize finds the modal font size weighted by character count,
// rounded to half points. Ties pick the smaller size so stray large text
// cannot claim the body.
func bodyFontSize(spans []contentstream.TextSpan) float64 {
	counts := map[float64]int{}
	for _, s := range spans {
		counts[roundHalf(s.FontSize)] += len(strings.TrimSpace(s.Text))
	}
	sizes := make([]float64, 0, len(counts))
	for sz := range counts {
		sizes = append(sizes, sz)
	}
	sort.Float64s(sizes)
	best, bestN := 0.0, 0
	for _, sz := range sizes {
		if counts[sz] > bestN {
			best, bestN = sz, counts[sz]
		}
	}
	return best
}

// bulletGlyphs are leading characters that mark a line as a bullet item.
var bulletGlyphs = []string{"•", "◦", "‣", "⁃", "-", "–", "*"}

// listItem rewrites a line that starts with a bullet glyph or a short
// ordinal like "3." or "3)" as a markdown list item. Such lines keep
// their structure instead of being escaped.
func listItem(text string) (string, bool) {
	for _, g := range bulletGlyphs {
		rest, ok := strings.CutPrefix(text, g)
		if !ok {
			continue
		}
		// Plain dash and star need a space after them; "-5" is a number.
		if (g == "-" || g == "*") && !strings.HasPrefix(rest, " ") && !strings.HasPrefix(rest, "\t") {
			continue
		}
		rest = strings.TrimLeft(rest, " \t")
		if rest == "" {
			continue
		}
		return "- " + rest, true
	}
	if n, rest, ok := ordinalPrefix(text); ok {
		return n + ". " + rest, true
	}
	return "", false
}

// ordinalPrefix matches "12. text" or "12) text" with at most three
// digits, so years and section numbers do not turn into lists.
func ordinalPrefix(text string) (num, rest string, ok bool) {
	i := 0
	for i < len(text) && text[i] >= '0' && text[i] <= '9' {
		i++
	}
	if i == 0 || i > 3 || i >= len(text) {
		return "", "", false
	}
	if text[i] != '.' && text[i] != ')' {
		return "", "", false
	}
	tail := strings.TrimLeft(text[i+1:], " \t")
	if tail == "" {
		return "", "", false
	}
	return text[:i], tail, true
}

// escapeMarkdown neutralizes characters that would change markdown
// structure when they lead a line.
func escapeMarkdown(s string) string {
	if s == "" {
		return s
	}
	switch s[0] {
	case '#', '>', '-', '+', '*', '`':
		return "\\" + s
	}
	return s
}
