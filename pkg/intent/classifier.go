// Package intent maps free-text messages to the capability they ask for.
package intent

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/models"
)

// Confidence levels assigned by the matchers.
const (
	StrongMatch  = 0.9
	VerbMatch    = 0.8
	NounMatch    = 0.6
	DefaultMatch = 1.0

	DefaultThreshold = 0.7
)

// Request verbs that turn a capability noun into an explicit request.
var requestVerbs = []string{
	"create", "make", "generate", "produce", "build", "design", "give me",
	"i want", "i need", "can you", "show me", "prepare", "put together",
}

type matcher struct {
	intent models.ResourceType
	verbs  *regexp.Regexp
	nouns  *regexp.Regexp
}

// Matchers run in this order; the first match wins.
var precedence = []struct {
	intent models.ResourceType
	verbs  []string
	nouns  []string
}{
	{models.ResourcePresentation, nil,
		[]string{"presentation", "slides", "slide deck", "deck", "pitch deck", "powerpoint", "keynote", "slideshow"}},
	{models.ResourceVideo, []string{"animate", "film"},
		[]string{"video", "clip", "animation", "movie", "footage", "trailer", "reel"}},
	{models.ResourceMusic, []string{"compose"},
		[]string{"song", "music", "track", "melody", "beat", "tune", "jingle", "soundtrack", "instrumental"}},
	{models.ResourceVoice, []string{"narrate", "read aloud", "say this", "speak"},
		[]string{"voice", "voiceover", "voice-over", "narration", "text to speech", "tts", "audio"}},
	{models.ResourceImage, []string{"draw", "paint", "illustrate"},
		[]string{"image", "picture", "photo", "drawing", "illustration", "painting", "portrait", "logo",
			"wallpaper", "artwork", "poster", "icon"}},
}

// Classifier classifies messages and applies the confirmation policy.
type Classifier struct {
	matchers  []matcher
	request   *regexp.Regexp
	threshold float64
	confirm   map[models.ResourceType]bool
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithThreshold sets the confidence needed to act without confirmation.
func WithThreshold(t float64) Option {
	return func(c *Classifier) { c.threshold = t }
}

// WithConfirmIntents lists intents that always need a human confirmation.
func WithConfirmIntents(intents ...models.ResourceType) Option {
	return func(c *Classifier) {
		c.confirm = make(map[models.ResourceType]bool, len(intents))
		for _, i := range intents {
			c.confirm[i] = true
		}
	}
}

// New builds a Classifier. By default video requests require confirmation.
func New(opts ...Option) *Classifier {
	c := &Classifier{
		request:   wordsRegexp(requestVerbs),
		threshold: DefaultThreshold,
		confirm:   map[models.ResourceType]bool{models.ResourceVideo: true},
	}
	for _, p := range precedence {
		m := matcher{intent: p.intent, nouns: wordsRegexp(p.nouns)}
		if len(p.verbs) > 0 {
			m.verbs = wordsRegexp(p.verbs)
		}
		c.matchers = append(c.matchers, m)
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func wordsRegexp(words []string) *regexp.Regexp {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)s?\b`)
}

// Threshold returns the configured confidence threshold.
func (c *Classifier) Threshold() float64 { return c.threshold }

// Classify never fails: unmatched input defaults to chat.
func (c *Classifier) Classify(message string) models.IntentResult {
	requested := c.request.MatchString(message)

	for _, m := range c.matchers {
		noun := m.nouns.FindString(message)
		verb := ""
		if m.verbs != nil {
			verb = m.verbs.FindString(message)
		}

		switch {
		case noun != "" && (requested || verb != ""):
			return models.IntentResult{
				Intent:     m.intent,
				Confidence: StrongMatch,
				Reasoning:  fmt.Sprintf("explicit request for %s (%q)", m.intent, strings.ToLower(noun)),
			}
		case verb != "":
			return models.IntentResult{
				Intent:     m.intent,
				Confidence: VerbMatch,
				Reasoning:  fmt.Sprintf("%s verb %q", m.intent, strings.ToLower(verb)),
			}
		case noun != "":
			return models.IntentResult{
				Intent:     m.intent,
				Confidence: NounMatch,
				Reasoning:  fmt.Sprintf("mentions %q without an explicit request", strings.ToLower(noun)),
			}
		}
	}

	return models.IntentResult{
		Intent:     models.ResourceChat,
		Confidence: DefaultMatch,
		Reasoning:  "defaulted: no capability pattern matched",
		Defaulted:  true,
	}
}

// ShouldAutoRoute reports whether res can be acted on without asking.
func (c *Classifier) ShouldAutoRoute(res models.IntentResult) bool {
	return res.Confidence >= c.threshold && !c.confirm[res.Intent]
}

// ShouldShowConfirmation is the complement of ShouldAutoRoute.
func (c *Classifier) ShouldShowConfirmation(res models.IntentResult) bool {
	return !c.ShouldAutoRoute(res)
}
