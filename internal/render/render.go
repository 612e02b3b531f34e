// ABOUTME: Converts message text to safe HTML for web clients
// ABOUTME: Markdown via goldmark with autolinked URLs; raw HTML in messages is never passed through

package render

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// goldmark's default renderer omits raw HTML; WithHardWraps keeps the
// line breaks people type in chat.
var md = goldmark.New(
	goldmark.WithExtensions(extension.Linkify, extension.Strikethrough),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// Message renders message content as HTML.
func Message(content string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(content), &buf); err != nil {
		return "", fmt.Errorf("rendering message: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Preview flattens content to a single line of at most maxRunes runes,
// ending in "…" when cut.
func Preview(content string, maxRunes int) string {
	line := strings.Join(strings.Fields(content), " ")
	if maxRunes <= 0 || utf8.RuneCountInString(line) <= maxRunes {
		return line
	}
	runes := []rune(line)
	return strings.TrimSpace(string(runes[:maxRunes-1])) + "…"
}
