// Package render turns a Coordinator's aggregated swarm output into
// terminal-friendly text: markdown rendering, fenced-code syntax
// highlighting, and unified diffs for reports that carry a before/after
// pair.
//
// Grounded on the teacher's CLI output path, which pipes agent output
// through glamour for markdown and chroma for code blocks before writing
// to the terminal; diff rendering follows the same go-diff usage the
// teacher's diff-preview feature relies on (DOMAIN STACK: glamour, chroma,
// go-diff).
package render

import (
	"fmt"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/glamour"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// Markdown renders text as terminal markdown at the given word wrap width.
// Falls back to the raw text if glamour fails to construct a renderer.
func Markdown(text string, width int) string {
	if width <= 0 {
		width = 100
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return text
	}
	out, err := r.Render(text)
	if err != nil {
		return text
	}
	return out
}

// HighlightCode renders source in lang with ANSI syntax highlighting for
// terminal display. Falls back to the raw source if the language isn't
// recognized or highlighting fails.
func HighlightCode(source, lang string) string {
	lexer := lexers.Get(lang)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := styles.Get("monokai")
	if style == nil {
		style = styles.Fallback
	}

	formatter := formatters.Get("terminal256")
	iterator, err := lexer.Tokenise(nil, source)
	if err != nil {
		return source
	}

	var b strings.Builder
	if err := formatter.Format(&b, style, iterator); err != nil {
		return source
	}
	return b.String()
}

// UnifiedDiff renders a line-level unified diff between before and after,
// labeled with name, for reports carrying a file-edit payload.
func UnifiedDiff(name, before, after string) string {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lines)

	var out strings.Builder
	fmt.Fprintf(&out, "--- %s\n+++ %s\n", name, name)
	for _, d := range diffs {
		prefix := " "
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			out.WriteString(prefix + line)
			if !strings.HasSuffix(line, "\n") {
				out.WriteString("\n")
			}
		}
	}
	return out.String()
}
