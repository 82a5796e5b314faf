package graphdb

import (
	"strings"

	"github.com/OFFIS-RIT/macrokg/internal/util"
)

// Node labels of the macro knowledge graph.
const (
	LabelDocument    = "Document"
	LabelEntity      = "Entity"
	LabelAlias       = "EntityAlias"
	LabelEvent       = "Event"
	LabelFact        = "Fact"
	LabelClaim       = "Claim"
	LabelEvidence    = "Evidence"
	LabelTheme       = "MacroTheme"
	LabelIndicator   = "EconomicIndicator"
	LabelObservation = "IndicatorObservation"
	LabelFeature     = "DerivedFeature"
	LabelStory       = "Story"
	LabelRun         = "AnalysisRun"
	LabelMacroState  = "MacroState"
	LabelCountry     = "Country"
)

// Relationship types.
const (
	RelMentionsEvent  = "MENTIONS_EVENT"
	RelHasFact        = "HAS_FACT"
	RelHasClaim       = "HAS_CLAIM"
	RelSupportedBy    = "SUPPORTED_BY"
	RelFromDocument   = "FROM_DOCUMENT"
	RelAboutTheme     = "ABOUT_THEME"
	RelAboutEntity    = "ABOUT_ENTITY"
	RelAffects        = "AFFECTS"
	RelMentions       = "MENTIONS"
	RelAliasOf        = "ALIAS_OF"
	RelLinked         = "LINKED"
	RelInCountry      = "IN_COUNTRY"
	RelHasObservation = "HAS_OBSERVATION"
	RelHasFeature     = "HAS_FEATURE"
	RelCorrelatedWith = "CORRELATED_WITH"
	RelLeads          = "LEADS"
	RelIncludes       = "INCLUDES"
	RelDominantTheme  = "DOMINANT_THEME"
	RelTopSignal      = "TOP_SIGNAL"
	RelUsedEvidence   = "USED_EVIDENCE"
	RelUsedEvent      = "USED_EVENT"
	RelUsedTheme      = "USED_THEME"
	RelUsedIndicator  = "USED_INDICATOR"
	RelUsedStory      = "USED_STORY"
	RelUsedDocument   = "USED_DOCUMENT"
)

func ref(label, keyProp string, key any) NodeRef {
	return NodeRef{Label: label, KeyProp: keyProp, Key: key}
}

func DocumentRef(id string) NodeRef    { return ref(LabelDocument, "id", id) }
func EntityRef(id string) NodeRef      { return ref(LabelEntity, "id", id) }
func AliasRef(id string) NodeRef       { return ref(LabelAlias, "id", id) }
func EventRef(id string) NodeRef       { return ref(LabelEvent, "id", id) }
func FactRef(id string) NodeRef        { return ref(LabelFact, "id", id) }
func ClaimRef(id string) NodeRef       { return ref(LabelClaim, "id", id) }
func EvidenceRef(id string) NodeRef    { return ref(LabelEvidence, "id", id) }
func ThemeRef(id string) NodeRef       { return ref(LabelTheme, "id", id) }
func IndicatorRef(code string) NodeRef { return ref(LabelIndicator, "code", code) }
func ObservationRef(id string) NodeRef { return ref(LabelObservation, "id", id) }
func FeatureRef(id string) NodeRef     { return ref(LabelFeature, "id", id) }
func StoryRef(id string) NodeRef       { return ref(LabelStory, "id", id) }
func RunRef(id string) NodeRef         { return ref(LabelRun, "id", id) }
func MacroStateRef(date string) NodeRef {
	return ref(LabelMacroState, "date", date)
}
func CountryRef(code string) NodeRef { return ref(LabelCountry, "code", code) }

// ObservationID is the stable key of one indicator data point.
func ObservationID(code, date string) string {
	return strings.ToUpper(code) + "|" + date
}

// FeatureID is the stable key of one derived feature value.
func FeatureID(code, feature, date string) string {
	return util.HashID("feat", strings.ToUpper(code), feature, date)
}
