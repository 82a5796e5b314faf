// Package common holds the domain types shared by the extraction, graph,
// analytics, retrieval and answer packages.
package common

import (
	"errors"
	"time"
)

// ErrValidation marks errors caused by caller input. The HTTP layer maps it
// to a 4xx response.
var ErrValidation = errors.New("validation failed")

// Status is the outcome of a top-level operation.
type Status string

// Link endpoint kinds.
const (
	EndpointEvent  = "event"
	EndpointEntity = "entity"
)

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusNoData  Status = "no_data"
	StatusSkipped Status = "skipped"
)

// Document is a news article mirrored from the relational source.
type Document struct {
	ID             string    `json:"id"`
	Source         string    `json:"source"`
	SourceID       string    `json:"source_id"`
	Title          string    `json:"title"`
	Text           string    `json:"text"`
	TranslatedText string    `json:"translated_text,omitempty"`
	URL            string    `json:"url,omitempty"`
	Category       string    `json:"category,omitempty"`
	Country        string    `json:"country,omitempty"`
	PublishedAt    time.Time `json:"published_at"`
}

// DocumentID builds the stable document id from its source coordinates.
func DocumentID(source, sourceID string) string {
	return source + ":" + sourceID
}

// Body is the text extraction and retrieval should read: the translation
// when present, else the raw text.
func (d Document) Body() string {
	if d.TranslatedText != "" {
		return d.TranslatedText
	}
	return d.Text
}

// Evidence is a verbatim excerpt supporting a fact, claim or link.
type Evidence struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	DocumentID string `json:"document_id"`
}

// IndicatorImpact is an extracted Event → EconomicIndicator effect.
type IndicatorImpact struct {
	Code        string  `json:"code"`
	Polarity    string  `json:"polarity"`
	ImpactLevel string  `json:"impact_level"`
	Weight      float64 `json:"weight"`
	Confidence  float64 `json:"confidence"`
	HorizonDays int     `json:"horizon_days"`
	// Method is "extraction" for model-provided impacts and "keyword" for
	// impacts inferred from the event text.
	Method string `json:"method"`
}

// Event is a dated macro occurrence extracted from a document.
type Event struct {
	ID          string            `json:"id"`
	DocumentID  string            `json:"document_id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Date        time.Time         `json:"date"`
	Country     string            `json:"country,omitempty"`
	Sentiment   string            `json:"sentiment"`
	ThemeIDs    []string          `json:"theme_ids"`
	Impacts     []IndicatorImpact `json:"impacts"`
}

// Fact is a checkable statement, usually a statistic or a decision.
type Fact struct {
	ID         string     `json:"id"`
	DocumentID string     `json:"document_id"`
	EventID    string     `json:"event_id,omitempty"`
	Statement  string     `json:"statement"`
	FactType   string     `json:"fact_type"`
	Value      *float64   `json:"value,omitempty"`
	Unit       string     `json:"unit,omitempty"`
	Sentiment  string     `json:"sentiment"`
	Confidence float64    `json:"confidence"`
	EntityIDs  []string   `json:"entity_ids,omitempty"`
	Evidence   []Evidence `json:"evidence"`
}

// Claim is an attributed opinion, forecast or assessment.
type Claim struct {
	ID         string     `json:"id"`
	DocumentID string     `json:"document_id"`
	EventID    string     `json:"event_id,omitempty"`
	Statement  string     `json:"statement"`
	ClaimType  string     `json:"claim_type"`
	Speaker    string     `json:"speaker,omitempty"`
	Sentiment  string     `json:"sentiment"`
	Confidence float64    `json:"confidence"`
	Evidence   []Evidence `json:"evidence"`
}

// Link is a typed relationship between two extracted items. Source and
// Target hold event or entity ids once resolved; the matching *Type field is
// "event", "entity" or empty when the endpoint could not be resolved.
type Link struct {
	ID           string     `json:"id"`
	DocumentID   string     `json:"document_id"`
	Source       string     `json:"source"`
	SourceType   string     `json:"source_type,omitempty"`
	Target       string     `json:"target"`
	TargetType   string     `json:"target_type,omitempty"`
	Relationship string     `json:"relationship"`
	Confidence   float64    `json:"confidence"`
	Evidence     []Evidence `json:"evidence"`
}

// Entity is a resolved real-world actor or instrument.
type Entity struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Aliases []string `json:"aliases,omitempty"`
}

// Observation is one indicator data point.
type Observation struct {
	Code  string    `json:"code"`
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}
