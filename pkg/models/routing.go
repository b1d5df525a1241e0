package models

import "fmt"

// ComplexityClass is a coarse classification of request complexity.
type ComplexityClass string

const (
	ComplexitySimple  ComplexityClass = "simple"
	ComplexityMedium  ComplexityClass = "medium"
	ComplexityComplex ComplexityClass = "complex"
)

// AllComplexities lists the complexity classes from least to most complex.
var AllComplexities = []ComplexityClass{ComplexitySimple, ComplexityMedium, ComplexityComplex}

// ParseComplexity parses a complexity class name.
func ParseComplexity(s string) (ComplexityClass, error) {
	for _, c := range AllComplexities {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown complexity %q", s)
}

// Constraints are the operating limits advertised by a capability.
// A zero field means the capability does not cap that dimension.
type Constraints struct {
	MaxDurationSec  int `json:"max_duration_sec,omitempty" yaml:"max_duration_sec,omitempty"`
	MaxResolution   int `json:"max_resolution,omitempty" yaml:"max_resolution,omitempty"`
	MaxCharacters   int `json:"max_characters,omitempty" yaml:"max_characters,omitempty"`
	MaxSlides       int `json:"max_slides,omitempty" yaml:"max_slides,omitempty"`
	MaxOutputTokens int `json:"max_output_tokens,omitempty" yaml:"max_output_tokens,omitempty"`
}

// Fields returns the constraint values keyed by name.
func (c Constraints) Fields() map[string]int {
	return map[string]int{
		"max_duration_sec":  c.MaxDurationSec,
		"max_resolution":    c.MaxResolution,
		"max_characters":    c.MaxCharacters,
		"max_slides":        c.MaxSlides,
		"max_output_tokens": c.MaxOutputTokens,
	}
}

// RoutingDecision is the concrete capability selected for a request.
type RoutingDecision struct {
	Available   bool            `json:"available"`
	ModelID     string          `json:"model_id,omitempty"`
	Provider    string          `json:"provider,omitempty"`
	Constraints Constraints     `json:"constraints"`
	TokenCost   int64           `json:"token_cost,omitempty"`
	Tier        Tier            `json:"tier"`
	Resource    ResourceType    `json:"resource"`
	Complexity  ComplexityClass `json:"complexity"`
}

// Unavailable returns the sentinel decision for a tier that is not entitled
// to a resource type.
func Unavailable(tier Tier, resource ResourceType, complexity ComplexityClass) RoutingDecision {
	return RoutingDecision{Tier: tier, Resource: resource, Complexity: complexity}
}

func (d RoutingDecision) String() string {
	if !d.Available {
		return fmt.Sprintf("%s/%s/%s: unavailable", d.Tier, d.Resource, d.Complexity)
	}
	return fmt.Sprintf("%s/%s/%s: %s", d.Tier, d.Resource, d.Complexity, d.ModelID)
}

// IntentResult is the output of intent classification.
type IntentResult struct {
	Intent     ResourceType `json:"intent"`
	Confidence float64      `json:"confidence"`
	Reasoning  string       `json:"reasoning"`
	Defaulted  bool         `json:"defaulted,omitempty"`
}
