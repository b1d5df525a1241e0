package intent

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	c := New()
	tests := []struct {
		msg        string
		intent     models.ResourceType
		confidence float64
	}{
		{"create a presentation on quarterly revenue", models.ResourcePresentation, StrongMatch},
		{"Make me a short video of waves", models.ResourceVideo, StrongMatch},
		{"compose a lullaby", models.ResourceMusic, VerbMatch},
		{"generate a song about summer", models.ResourceMusic, StrongMatch},
		{"narrate this paragraph", models.ResourceVoice, VerbMatch},
		{"draw a cat", models.ResourceImage, VerbMatch},
		{"generate an image of a lighthouse", models.ResourceImage, StrongMatch},
		{"I liked the picture you sent", models.ResourceImage, NounMatch},
		{"can you make slides with a video embedded", models.ResourcePresentation, StrongMatch},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			res := c.Classify(tt.msg)
			assert.Equal(t, tt.intent, res.Intent)
			assert.Equal(t, tt.confidence, res.Confidence)
			assert.NotEmpty(t, res.Reasoning)
			assert.False(t, res.Defaulted)
		})
	}
}

func TestClassifyDefaultsToChat(t *testing.T) {
	for _, msg := range []string{"", "   ", "what is the capital of France?", "\x00\xff\xfe", "🙂🙂"} {
		res := New().Classify(msg)
		assert.Equal(t, models.ResourceChat, res.Intent)
		assert.Equal(t, DefaultMatch, res.Confidence)
		assert.True(t, res.Defaulted)
		assert.Contains(t, res.Reasoning, "defaulted")
	}
}

func TestClassifyArbitraryInputNeverPanics(t *testing.T) {
	c := New()
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		b := make([]byte, rng.Intn(300))
		rng.Read(b)
		assert.NotPanics(t, func() {
			res := c.Classify(string(b))
			assert.True(t, res.Intent.Valid())
		})
	}
}

func TestPresentationAutoRoutes(t *testing.T) {
	c := New()
	res := c.Classify("create a presentation on quarterly revenue")
	assert.GreaterOrEqual(t, res.Confidence, c.Threshold())
	assert.True(t, c.ShouldAutoRoute(res))
	assert.False(t, c.ShouldShowConfirmation(res))
}

func TestVideoNeedsConfirmation(t *testing.T) {
	c := New()
	res := c.Classify("make a video of my dog")
	assert.Equal(t, StrongMatch, res.Confidence)
	assert.False(t, c.ShouldAutoRoute(res))
	assert.True(t, c.ShouldShowConfirmation(res))
}

func TestLowConfidenceNeedsConfirmation(t *testing.T) {
	c := New()
	res := c.Classify("that song was nice")
	assert.Equal(t, NounMatch, res.Confidence)
	assert.True(t, c.ShouldShowConfirmation(res))
}

func TestOptions(t *testing.T) {
	c := New(WithThreshold(0.5), WithConfirmIntents(models.ResourceMusic))
	assert.True(t, c.ShouldAutoRoute(c.Classify("make a video of my dog")))
	assert.True(t, c.ShouldAutoRoute(c.Classify("that picture")))
	assert.True(t, c.ShouldShowConfirmation(c.Classify("generate a song")))
}

func TestPredicatesMutuallyExclusive(t *testing.T) {
	classifiers := []*Classifier{New(), New(WithThreshold(0.95)), New(WithConfirmIntents())}
	msgs := []string{
		"", "hello", "draw a dog", "make a video", "create slides", "compose", "tts please",
		strings.Repeat("image ", 50),
	}
	for _, c := range classifiers {
		for _, m := range msgs {
			res := c.Classify(m)
			assert.NotEqual(t, c.ShouldAutoRoute(res), c.ShouldShowConfirmation(res), m)
		}
		for _, conf := range []float64{0, 0.5, 0.69999, 0.7, 0.9, 1} {
			for _, r := range models.AllResources {
				res := models.IntentResult{Intent: r, Confidence: conf}
				assert.False(t, c.ShouldAutoRoute(res) && c.ShouldShowConfirmation(res))
			}
		}
	}
}
