package highlight

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLanguage(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		explicit string
		want     string
	}{
		{"go by extension", "main.go", "", "go"},
		{"python by extension", "script.py", "", "python"},
		{"markdown by extension", "README.md", "", "markdown"},
		{"explicit wins", "notes.txt", "rust", "rust"},
		{"unknown explicit falls back to name", "main.go", "klingon", "go"},
		{"unknown", "mystery", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Language(tt.file, tt.explicit))
		})
	}
}

func TestIsMarkdown(t *testing.T) {
	assert.True(t, IsMarkdown("notes.md", ""))
	assert.False(t, IsMarkdown("notes.txt", ""))
}

func TestHTML_EscapesContent(t *testing.T) {
	out, err := HTML(`<script>alert("x")</script>`, "")
	require.NoError(t, err)
	assert.NotContains(t, string(out), "<script>")
	assert.Contains(t, string(out), "&lt;script&gt;")
}

func TestHTML_Highlights(t *testing.T) {
	out, err := HTML("package main\n\nfunc main() {}\n", "go")
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(out), "<pre"))
	assert.Contains(t, string(out), "func")
}

func TestMarkdownHTML_NoRawHTML(t *testing.T) {
	out, err := MarkdownHTML("# Title\n\n<img src=x onerror=alert(1)>\n")
	require.NoError(t, err)
	assert.Contains(t, string(out), "<h1>Title</h1>")
	assert.NotContains(t, string(out), "onerror")
}

func TestTerminal_UnknownLanguageUnchanged(t *testing.T) {
	assert.Equal(t, "plain text", Terminal("plain text", ""))
}

func TestTerminal_AddsEscapes(t *testing.T) {
	out := Terminal("x := 1", "go")
	assert.Contains(t, out, "\x1b[")
}
