package answer

import (
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/macrokg/internal/util"
	"github.com/OFFIS-RIT/macrokg/pkg/retrieval"
)

const (
	promptEvents    = 10
	promptStories   = 5
	promptDocuments = 10
	quoteRunes      = 400
)

// prompt is the rendered context plus the items that made it in.
type prompt struct {
	Text      string
	Tokens    int
	Evidences []retrieval.Evidence
	Events    []retrieval.Event
	Stories   []retrieval.Story
	Documents []retrieval.Document
}

type budget struct {
	count func(string) int
	left  int
	used  int
}

// take charges line against the budget. The first item of a section is
// always admitted when force is set.
func (b *budget) take(line string, force bool) bool {
	n := b.count(line)
	if n > b.left && !force {
		return false
	}
	b.left -= n
	b.used += n
	return true
}

// render writes the evidence list first, then event, story and document
// summaries, until the token budget or the per-section caps run out.
func (g *Generator) render(cctx *retrieval.Response, maxEvidences int) prompt {
	var (
		p  prompt
		sb strings.Builder
		b  = budget{count: g.countTokens, left: g.tokenBudget}
	)
	dates := map[string]string{}
	for _, d := range cctx.Documents {
		dates[d.ID] = d.Date
	}

	sb.WriteString("### Evidence\n")
	for _, e := range cctx.Evidences {
		if len(p.Evidences) >= maxEvidences {
			break
		}
		line := fmt.Sprintf("- [[%s]] (%s, %s %s) %s\n  Quote: %q\n",
			e.ID, e.Kind, e.DocumentID, dates[e.DocumentID],
			util.CollapseWhitespace(e.Statement),
			util.TruncateRunes(util.CollapseWhitespace(e.Text), quoteRunes))
		if !b.take(line, len(p.Evidences) == 0) {
			break
		}
		sb.WriteString(line)
		p.Evidences = append(p.Evidences, e)
	}

	if len(cctx.Events) > 0 {
		sb.WriteString("\n### Events\n")
	}
	for _, e := range cctx.Events {
		if len(p.Events) >= promptEvents {
			break
		}
		line := fmt.Sprintf("- %s %s", e.Date, e.Name)
		if e.Country != "" || e.Sentiment != "" {
			line += fmt.Sprintf(" (%s)", strings.Trim(e.Country+", "+e.Sentiment, ", "))
		}
		if len(e.Affects) > 0 {
			parts := make([]string, len(e.Affects))
			for i, a := range e.Affects {
				parts[i] = fmt.Sprintf("%s %s %.2f", a.Code, a.Polarity, a.Weight)
			}
			line += ": affects " + strings.Join(parts, "; ")
		}
		line += "\n"
		if !b.take(line, false) {
			break
		}
		sb.WriteString(line)
		p.Events = append(p.Events, e)
	}

	if len(cctx.Stories) > 0 {
		sb.WriteString("\n### Stories\n")
	}
	for _, s := range cctx.Stories {
		if len(p.Stories) >= promptStories {
			break
		}
		line := fmt.Sprintf("- %s, %s to %s (%d documents)\n", s.Name, s.Start, s.End, s.DocCount)
		if !b.take(line, false) {
			break
		}
		sb.WriteString(line)
		p.Stories = append(p.Stories, s)
	}

	if len(cctx.Documents) > 0 {
		sb.WriteString("\n### Documents\n")
	}
	for _, d := range cctx.Documents {
		if len(p.Documents) >= promptDocuments {
			break
		}
		line := fmt.Sprintf("- %s %s %s\n", d.ID, d.Date, d.Title)
		if !b.take(line, false) {
			break
		}
		sb.WriteString(line)
		p.Documents = append(p.Documents, d)
	}

	p.Text = strings.TrimRight(sb.String(), "\n")
	p.Tokens = b.used
	return p
}
