// Package complexity classifies prompts into coarse complexity classes
// using lexical signals. It is deterministic and has no side effects.
package complexity

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/models"
)

// Length thresholds in characters.
const (
	ShortPrompt = 40
	LongPrompt  = 220
)

// ComplexTerms imply high fidelity or an elaborate brief.
var ComplexTerms = []string{
	"professional", "cinematic", "highly detailed", "photorealistic",
	"4k", "8k", "intricate", "masterpiece", "ultra", "hyper-realistic",
	"elaborate", "studio quality",
}

// SimpleTerms imply a throwaway or low-effort request.
var SimpleTerms = []string{"quick", "simple", "basic", "draft", "sketch", "rough"}

// Analysis explains a classification.
type Analysis struct {
	Class        models.ComplexityClass `json:"class"`
	Length       int                    `json:"length"`
	ComplexTerms []string               `json:"complex_terms,omitempty"`
	SimpleTerms  []string               `json:"simple_terms,omitempty"`
}

// Analyzer classifies prompt text.
type Analyzer struct {
	complexRe *regexp.Regexp
	simpleRe  *regexp.Regexp
}

// New returns an Analyzer using ComplexTerms and SimpleTerms.
func New() *Analyzer {
	return &Analyzer{
		complexRe: termsRegexp(ComplexTerms),
		simpleRe:  termsRegexp(SimpleTerms),
	}
}

func termsRegexp(terms []string) *regexp.Regexp {
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = regexp.QuoteMeta(t)
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// Classify returns the complexity class of prompt. Complex signals take
// precedence over simple ones.
func (a *Analyzer) Classify(prompt string) models.ComplexityClass {
	return a.Analyze(prompt).Class
}

// Analyze classifies prompt and reports the signals that fired.
func (a *Analyzer) Analyze(prompt string) Analysis {
	text := strings.TrimSpace(prompt)
	res := Analysis{
		Length:       utf8.RuneCountInString(text),
		ComplexTerms: matches(a.complexRe, text),
		SimpleTerms:  matches(a.simpleRe, text),
	}

	switch {
	case len(res.ComplexTerms) > 0 || res.Length > LongPrompt:
		res.Class = models.ComplexityComplex
	case len(res.SimpleTerms) > 0 || res.Length < ShortPrompt:
		res.Class = models.ComplexitySimple
	default:
		res.Class = models.ComplexityMedium
	}
	return res
}

func matches(re *regexp.Regexp, text string) []string {
	found := re.FindAllString(text, -1)
	if len(found) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(found))
	out := found[:0]
	for _, f := range found {
		f = strings.ToLower(f)
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}
