package ingest

import (
	"html"
	"net/url"
	"regexp"
	"strings"

	"codeberg.org/readeck/go-readability/v2"

	"github.com/OFFIS-RIT/macrokg/internal/util"
	"github.com/OFFIS-RIT/macrokg/pkg/logger"
)

var (
	htmlHint    = regexp.MustCompile(`(?i)<(p|div|br|span|article|html|body|a|h[1-6]|li|script|style)[\s/>]`)
	scriptBlock = regexp.MustCompile(`(?is)<(script|style|noscript)[^>]*>.*?</(script|style|noscript)>`)
	blockTag    = regexp.MustCompile(`(?i)</?(p|div|br|li|h[1-6]|tr|article|section)[^>]*>`)
	anyTag      = regexp.MustCompile(`(?s)<[^>]+>`)
	blankLines  = regexp.MustCompile(`\n{3,}`)
)

// LooksLikeHTML reports whether s carries markup worth cleaning.
func LooksLikeHTML(s string) bool {
	return htmlHint.MatchString(s)
}

// CleanText turns an article body into plain text. HTML bodies go through
// readability first; when it finds no article the tags are stripped.
func CleanText(raw, pageURL string) string {
	raw = util.SanitizePostgresText(raw)
	if !LooksLikeHTML(raw) {
		return tidyLines(html.UnescapeString(raw))
	}

	base, err := url.Parse(pageURL)
	if err != nil || pageURL == "" {
		base = &url.URL{Scheme: "https", Host: "localhost"}
	}
	article, err := readability.FromReader(strings.NewReader(raw), base)
	if err == nil {
		var builder strings.Builder
		if err := article.RenderText(&builder); err == nil {
			if text := tidyLines(builder.String()); text != "" {
				return text
			}
		}
	} else {
		logger.Debug("[Ingest] Readability failed, stripping tags", "url", pageURL, "err", err)
	}
	return StripTags(raw)
}

// StripTags drops scripts, styles and tags, keeping block boundaries as
// line breaks.
func StripTags(s string) string {
	s = scriptBlock.ReplaceAllString(s, " ")
	s = blockTag.ReplaceAllString(s, "\n")
	s = anyTag.ReplaceAllString(s, " ")
	return tidyLines(html.UnescapeString(s))
}

func tidyLines(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	for i, line := range lines {
		lines[i] = util.CollapseWhitespace(line)
	}
	out := strings.Join(lines, "\n")
	out = blankLines.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}
