// Package highlight renders snippet content for display: syntax
// highlighted HTML for the web page, ANSI for terminals, and markdown
// through goldmark (web) or glamour (terminal).
package highlight

import (
	"bytes"
	"fmt"
	"html/template"
	"path/filepath"
	"strings"
	"sync"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/quick"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/glamour"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Style is the chroma style used everywhere.
const Style = "monokai"

// Language resolves the display language of a snippet: the explicit tag
// when it names a known lexer, else a match on the file name's extension.
// It returns "" when neither is recognised.
func Language(name, explicit string) string {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		if l := lexers.Get(explicit); l != nil {
			return strings.ToLower(l.Config().Name)
		}
	}
	if l := lexers.Match(filepath.Base(name)); l != nil {
		return strings.ToLower(l.Config().Name)
	}
	return ""
}

// IsMarkdown reports whether a snippet should be rendered as markdown.
func IsMarkdown(name, explicit string) bool {
	return Language(name, explicit) == "markdown"
}

func lexerFor(language string) chroma.Lexer {
	l := lexers.Get(language)
	if l == nil {
		l = lexers.Fallback
	}
	return chroma.Coalesce(l)
}

var (
	htmlFormatter     *chromahtml.Formatter
	htmlFormatterOnce sync.Once
)

func getHTMLFormatter() *chromahtml.Formatter {
	htmlFormatterOnce.Do(func() {
		htmlFormatter = chromahtml.New(
			chromahtml.WithLineNumbers(true),
			chromahtml.TabWidth(4),
		)
	})
	return htmlFormatter
}

// HTML returns content as a highlighted <pre> block with inline styles.
// Chroma escapes the content, so the result is safe to embed.
func HTML(content, language string) (template.HTML, error) {
	iterator, err := lexerFor(language).Tokenise(nil, content)
	if err != nil {
		return "", fmt.Errorf("highlight: tokenising: %w", err)
	}

	var buf bytes.Buffer
	if err := getHTMLFormatter().Format(&buf, styles.Get(Style), iterator); err != nil {
		return "", fmt.Errorf("highlight: formatting html: %w", err)
	}
	return template.HTML(buf.String()), nil
}

// markdownInstance is initialized once and reused. goldmark escapes raw
// HTML unless WithUnsafe is set, which it is not: snippet content is
// untrusted.
var (
	markdownInstance goldmark.Markdown
	markdownOnce     sync.Once
)

func getMarkdown() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownInstance = goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
				extension.DefinitionList,
			),
		)
	})
	return markdownInstance
}

// MarkdownHTML converts markdown content to HTML.
func MarkdownHTML(content string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := getMarkdown().Convert([]byte(content), &buf); err != nil {
		return "", fmt.Errorf("highlight: rendering markdown: %w", err)
	}
	return template.HTML(buf.String()), nil
}

// Terminal returns content highlighted with ANSI 256-colour escapes. On an
// unknown language or a chroma error the content comes back unchanged.
func Terminal(content, language string) string {
	if language == "" {
		return content
	}
	var buffer strings.Builder
	if err := quick.Highlight(&buffer, content, language, "terminal256", Style); err != nil {
		return content
	}
	return buffer.String()
}

// TerminalMarkdown renders markdown for a terminal of the given width
// (0 = glamour's default wrap). On error the source comes back unchanged.
func TerminalMarkdown(content string, width int) string {
	if width <= 0 {
		rendered, err := glamour.Render(content, "dark")
		if err != nil {
			return content
		}
		return rendered
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content
	}
	rendered, err := r.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

// ForTerminal picks markdown or code rendering for a snippet.
func ForTerminal(name, explicit, content string, width int) string {
	lang := Language(name, explicit)
	if lang == "markdown" {
		return TerminalMarkdown(content, width)
	}
	return Terminal(content, lang)
}
