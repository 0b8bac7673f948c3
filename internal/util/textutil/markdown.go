// Package textutil prepares article text before it is sent to a model.
package textutil

import (
	"regexp"
	"strings"
)

var (
	// reImageMD matches markdown images: ![alt](url)
	reImageMD = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	// reImageHTML matches HTML image tags: <img ...>
	reImageHTML = regexp.MustCompile(`(?is)<img[^>]*>`)
	// reComment matches HTML comments: <!-- ... -->
	reComment = regexp.MustCompile(`(?s)<!--.*?-->`)
	// reScriptStyle matches embedded script and style blocks.
	reScriptStyle = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	reTrailingWS  = regexp.MustCompile(`(?m)[ \t]+$`)
	// reExcessiveNewlines matches 3 or more newlines to compress them
	reExcessiveNewlines = regexp.MustCompile(`\n{3,}`)
)

// CleanMarkdown strips content that carries no meaning for diagram extraction.
// Image alt text is kept since it often names the pictured step.
func CleanMarkdown(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	text = reImageMD.ReplaceAllString(text, "$1")
	text = reImageHTML.ReplaceAllString(text, "")
	text = reComment.ReplaceAllString(text, "")
	text = reScriptStyle.ReplaceAllString(text, "")

	text = reTrailingWS.ReplaceAllString(text, "")
	text = reExcessiveNewlines.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text)
}
