package normalize

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Extension is the YAML document accepted by LoadExtensions. Extensions only
// add entries; built-ins are never removed.
//
//	countries:
//	  VN: [vietnam, viet nam]
//	supported_countries: [VN]
//	categories:
//	  semiconductors: trade
//	themes:
//	  - id: inflation
//	    keywords: [sticky prices]
type Extension struct {
	Countries          map[string][]string `yaml:"countries"`
	SupportedCountries []string            `yaml:"supported_countries"`
	Categories         map[string]string   `yaml:"categories"`
	Themes             []Theme             `yaml:"themes"`
	Indicators         []Indicator         `yaml:"indicators"`
}

// Apply merges ext into t.
func (t *Tables) Apply(ext Extension) {
	for code, aliases := range ext.Countries {
		t.AddCountry(code, aliases...)
	}
	for _, code := range ext.SupportedCountries {
		if c, ok := t.CountryCode(code); ok {
			t.supported[c] = true
		}
	}
	for category, theme := range ext.Categories {
		t.categories[Key(category)] = theme
	}
	for _, th := range ext.Themes {
		t.AddTheme(th)
	}
	for _, ind := range ext.Indicators {
		t.AddIndicator(ind)
	}
}

// ParseExtension decodes an extension document.
func ParseExtension(data []byte) (Extension, error) {
	var ext Extension
	if err := yaml.Unmarshal(data, &ext); err != nil {
		return Extension{}, fmt.Errorf("parse normalization extension: %w", err)
	}
	return ext, nil
}

// LoadExtensions returns the default tables extended with the YAML file at
// path. An empty path returns the defaults.
func LoadExtensions(path string) (*Tables, error) {
	t := Default()
	if path == "" {
		return t, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read normalization extension: %w", err)
	}
	ext, err := ParseExtension(data)
	if err != nil {
		return nil, err
	}
	t.Apply(ext)
	return t, nil
}
