package extract

// Raw model output. Every field is required so the schema can run in strict
// mode; empty strings and arrays stand for "not stated".

type rawImpact struct {
	Indicator   string `json:"indicator" jsonschema:"description=Indicator code from the provided list"`
	Polarity    string `json:"polarity" jsonschema:"description=positive, negative or neutral"`
	ImpactLevel string `json:"impact_level" jsonschema:"description=high, medium or low"`
	Confidence  string `json:"confidence" jsonschema:"description=high, medium or low"`
	HorizonDays int    `json:"horizon_days"`
}

type rawEvent struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Date        string      `json:"date" jsonschema:"description=YYYY-MM-DD or empty"`
	Country     string      `json:"country"`
	Sentiment   string      `json:"sentiment"`
	Themes      []string    `json:"themes"`
	Impacts     []rawImpact `json:"impacts"`
}

type rawFact struct {
	Statement  string   `json:"statement"`
	FactType   string   `json:"fact_type"`
	Value      string   `json:"value" jsonschema:"description=Numeric value or empty"`
	Unit       string   `json:"unit"`
	Sentiment  string   `json:"sentiment"`
	Confidence string   `json:"confidence"`
	Event      string   `json:"event" jsonschema:"description=Name of the related event or empty"`
	Entities   []string `json:"entities"`
	Evidence   string   `json:"evidence" jsonschema:"description=Verbatim quote from the article"`
}

type rawClaim struct {
	Statement  string `json:"statement"`
	ClaimType  string `json:"claim_type"`
	Speaker    string `json:"speaker"`
	Sentiment  string `json:"sentiment"`
	Confidence string `json:"confidence"`
	Event      string `json:"event"`
	Evidence   string `json:"evidence"`
}

type rawLink struct {
	Source       string `json:"source"`
	Target       string `json:"target"`
	Relationship string `json:"relationship"`
	Confidence   string `json:"confidence"`
	Evidence     string `json:"evidence"`
}

type rawExtraction struct {
	Events   []rawEvent `json:"events"`
	Facts    []rawFact  `json:"facts"`
	Claims   []rawClaim `json:"claims"`
	Links    []rawLink  `json:"links"`
	Entities []string   `json:"entities"`
}
