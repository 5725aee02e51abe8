package service

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/taskdeck/taskdeck/internal/taskdeck/domain"
)

// Markdown helpers for task descriptions: plain-text excerpts for list
// views and a self-contained export document.

var (
	mdCodeFence  = regexp.MustCompile("(?s)```.*?```")
	mdInlineCode = regexp.MustCompile("`([^`]*)`")
	mdImage      = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	mdLink       = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	mdHeading    = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	mdEmphasis   = regexp.MustCompile(`(\*{1,3}|_{1,3}|~~)([^*_~]+)(\*{1,3}|_{1,3}|~~)`)
	mdBlockquote = regexp.MustCompile(`(?m)^>\s?`)
	mdListMarker = regexp.MustCompile(`(?m)^\s*([-*+]|\d+\.)\s+`)
	mdExtraWS    = regexp.MustCompile(`\s+`)

	slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)
)

// StripMarkdown reduces markdown to its plain text. Link and image
// syntax keeps the label; formatting marks are dropped.
func StripMarkdown(md string) string {
	out := mdCodeFence.ReplaceAllString(md, " ")
	out = mdImage.ReplaceAllString(out, "$1")
	out = mdLink.ReplaceAllString(out, "$1")
	out = mdInlineCode.ReplaceAllString(out, "$1")
	out = mdHeading.ReplaceAllString(out, "")
	out = mdEmphasis.ReplaceAllString(out, "$2")
	out = mdBlockquote.ReplaceAllString(out, "")
	out = mdListMarker.ReplaceAllString(out, "")
	out = mdExtraWS.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// Excerpt returns the first maxLen runes of the stripped text, cut at a
// word boundary with a trailing ellipsis when shortened.
func Excerpt(md string, maxLen int) string {
	text := StripMarkdown(md)
	runes := []rune(text)
	if maxLen <= 0 || len(runes) <= maxLen {
		return text
	}

	cut := string(runes[:maxLen])
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ") + "..."
}

// Slugify turns a title into a filesystem and URL safe slug.
func Slugify(s string) string {
	slug := strings.ToLower(s)
	slug = slugInvalid.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "task"
	}
	return slug
}

// ExportMarkdown renders a task as a standalone markdown document and
// returns the suggested filename alongside it.
func ExportMarkdown(t domain.Task) (filename, content string) {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", t.Title)
	fmt.Fprintf(&b, "- Status: %s\n", t.Status)
	fmt.Fprintf(&b, "- Created: %s\n", t.CreatedAt.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "- Updated: %s\n", t.UpdatedAt.Format("2006-01-02 15:04"))
	if !t.CompletedAt.IsZero() {
		fmt.Fprintf(&b, "- Completed: %s\n", t.CompletedAt.Format("2006-01-02 15:04"))
	}
	if !t.ArchivedAt.IsZero() {
		fmt.Fprintf(&b, "- Archived: %s\n", t.ArchivedAt.Format("2006-01-02 15:04"))
	}
	b.WriteString("\n")

	if t.DescriptionMarkdown != "" {
		b.WriteString(t.DescriptionMarkdown)
		if !strings.HasSuffix(t.DescriptionMarkdown, "\n") {
			b.WriteString("\n")
		}
	}

	return Slugify(t.Title) + ".md", b.String()
}
