package extract

import (
	"strings"
	"unicode/utf8"

	"github.com/OFFIS-RIT/macrokg/internal/util"
	"github.com/OFFIS-RIT/macrokg/pkg/common"
)

const (
	MinEvidenceLen = 10
	maxEvidenceLen = 600
	excerptLen     = 200
)

// fallbackExcerpt picks the body sentence sharing the most terms with
// statement, else the head of the body, else the title.
func fallbackExcerpt(statement, body, title string) string {
	want := map[string]bool{}
	for _, t := range util.Terms(statement, 3) {
		want[t] = true
	}
	best, bestScore := "", 0
	if len(want) > 0 {
		for _, s := range util.Sentences(body) {
			score := 0
			seen := map[string]bool{}
			for _, t := range util.Terms(s, 3) {
				if want[t] && !seen[t] {
					seen[t] = true
					score++
				}
			}
			if score > bestScore {
				best, bestScore = s, score
			}
		}
	}
	if best != "" {
		return best
	}
	if head := util.TruncateRunes(util.CollapseWhitespace(body), excerptLen); head != "" {
		return head
	}
	return util.CollapseWhitespace(title)
}

// evidenceText returns raw when it is long enough, else a fallback excerpt.
// The result is padded with a document marker until it reaches
// MinEvidenceLen, so it is never empty.
func evidenceText(raw, statement, docID, body, title string) string {
	text := util.CollapseWhitespace(raw)
	if utf8.RuneCountInString(text) < MinEvidenceLen {
		text = fallbackExcerpt(statement, body, title)
	}
	text = util.TruncateRunes(text, maxEvidenceLen)
	if utf8.RuneCountInString(text) < MinEvidenceLen {
		text = strings.TrimSpace(text + " [doc:" + docID + "]")
	}
	for utf8.RuneCountInString(text) < MinEvidenceLen {
		text = "…" + text
	}
	return text
}

// buildEvidence returns the single supporting Evidence of an owner.
func buildEvidence(ownerID, raw, statement, docID, body, title string) []common.Evidence {
	text := evidenceText(raw, statement, docID, body, title)
	return []common.Evidence{{
		ID:         util.HashID("evd", ownerID, text),
		Text:       text,
		DocumentID: docID,
	}}
}
