package types

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// CustomTemplateID is assigned to client-supplied templates that arrive without an id
const CustomTemplateID = "custom"

// Template is the (search query, extraction pattern) pair that defines which
// messages count as sales and how a country label is pulled out of each one.
type Template struct {
	ID             string           `json:"id" yaml:"id"`
	Name           string           `json:"name,omitempty" yaml:"name"`
	Description    string           `json:"description,omitempty" yaml:"description"`
	SubjectQuery   string           `json:"subjectQuery" yaml:"subjectQuery"`
	CountryPattern string           `json:"countryPattern" yaml:"countryPattern"`
	Example        *TemplateExample `json:"example,omitempty" yaml:"example,omitempty"`
	Instructions   string           `json:"instructions,omitempty" yaml:"instructions,omitempty"`
}

// TemplateExample shows a sample message and the label the pattern should capture
type TemplateExample struct {
	Subject     string `json:"subject" yaml:"subject"`
	BodySnippet string `json:"bodySnippet" yaml:"bodySnippet"`
	Match       string `json:"match" yaml:"match"`
}

// templateWire accepts the legacy countryRegex field name alongside countryPattern
type templateWire struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	Description    string           `json:"description"`
	SubjectQuery   string           `json:"subjectQuery"`
	CountryPattern string           `json:"countryPattern"`
	CountryRegex   string           `json:"countryRegex"`
	Example        *TemplateExample `json:"example"`
	ExampleEmail   *struct {
		Subject      string `json:"subject"`
		BodySnippet  string `json:"bodySnippet"`
		CountryMatch string `json:"countryMatch"`
	} `json:"exampleEmail"`
	Instructions string `json:"instructions"`
}

func (t *Template) UnmarshalJSON(data []byte) error {
	var w templateWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*t = Template{
		ID:             w.ID,
		Name:           w.Name,
		Description:    w.Description,
		SubjectQuery:   w.SubjectQuery,
		CountryPattern: w.CountryPattern,
		Example:        w.Example,
		Instructions:   w.Instructions,
	}
	if t.CountryPattern == "" {
		t.CountryPattern = w.CountryRegex
	}
	if t.Example == nil && w.ExampleEmail != nil {
		t.Example = &TemplateExample{
			Subject:     w.ExampleEmail.Subject,
			BodySnippet: w.ExampleEmail.BodySnippet,
			Match:       w.ExampleEmail.CountryMatch,
		}
	}
	return nil
}

// Validate checks the template invariants: a non-empty query and a pattern that
// compiles with at least one capture group.
func (t *Template) Validate() error {
	if t == nil {
		return fmt.Errorf("%w: nil template", ErrInvalidTemplate)
	}
	if strings.TrimSpace(t.SubjectQuery) == "" {
		return fmt.Errorf("%w: subjectQuery is empty", ErrInvalidTemplate)
	}
	if strings.TrimSpace(t.CountryPattern) == "" {
		return fmt.Errorf("%w: countryPattern is empty", ErrInvalidTemplate)
	}

	re, err := t.Compile()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	if re.NumSubexp() < 1 {
		return fmt.Errorf("%w: countryPattern has no capture group", ErrInvalidTemplate)
	}
	return nil
}

// Compile compiles the country pattern case-insensitively
func (t *Template) Compile() (*regexp.Regexp, error) {
	return regexp.Compile("(?i)" + t.CountryPattern)
}

// ParseTemplate decodes a JSON template from a query or state parameter and
// validates it. Templates without an id are treated as custom.
func ParseTemplate(raw string) (*Template, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidTemplate)
	}

	var t Template
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	if t.ID == "" {
		t.ID = CustomTemplateID
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Encode serializes the template for transport
func (t *Template) Encode() (string, error) {
	b, err := json.Marshal(t)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
