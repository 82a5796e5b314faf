package util

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

const hashIDLength = 24

// HashID derives a stable identifier from its parts. The same parts always
// produce the same id, which is what makes MERGE-based writes idempotent.
func HashID(prefix string, parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0x1f})
		}
		h.Write([]byte(p))
	}
	sum := hex.EncodeToString(h.Sum(nil))[:hashIDLength]
	if prefix == "" {
		return sum
	}
	return prefix + ":" + sum
}

// ShortHash is a 128-bit content digest used for prompt and response
// fingerprints in call logs.
func ShortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:16])
}

var (
	reMarker     = regexp.MustCompile(`\[\[([^\[\]]+)\]\]`)
	reBoldMarker = regexp.MustCompile(`\*\*\s*(\[\[[^\[\]]+\]\])\s*\*\*`)
	reMarkerGap  = regexp.MustCompile(`\]\][\t ]*\[\[`)
	reBlankRun   = regexp.MustCompile(`[\t ]{2,}`)
)

// CitationMarkers returns the ids referenced as [[id]] in s, in order of
// first appearance and without duplicates.
func CitationMarkers(s string) []string {
	matches := reMarker.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		id := strings.TrimSpace(m[1])
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// NormalizeMarkers unwraps bold markers and separates adjacent markers with a
// single space. Markers whose id is not accepted by keep are removed.
func NormalizeMarkers(s string, keep func(id string) bool) string {
	s = reBoldMarker.ReplaceAllString(s, "$1")
	s = reMarkerGap.ReplaceAllString(s, "]] [[")
	if keep == nil {
		return s
	}
	s = reMarker.ReplaceAllStringFunc(s, func(m string) string {
		id := strings.TrimSpace(m[2 : len(m)-2])
		if keep(id) {
			return "[[" + id + "]]"
		}
		return ""
	})
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(reBlankRun.ReplaceAllString(l, " "))
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
