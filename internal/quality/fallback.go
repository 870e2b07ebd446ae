package quality

import (
	"strings"

	"ai-orchestrator/internal/models"
)

// fallbackBank holds safe, generic suggestions per tone. Served when the
// pipeline cannot keep enough generated candidates.
var fallbackBank = map[string][]string{
	"friendly": {
		"That sounds great, tell me more about it!",
		"I love where this is going, what happened next?",
		"Thanks for sharing that, it really made me smile.",
		"That's awesome! How did it all turn out?",
		"I was just thinking about you, how's your day going?",
	},
	"professional": {
		"Thank you for the update, I will review and follow up shortly.",
		"That makes sense, let's schedule time to discuss the details.",
		"I appreciate the context, could you share the relevant documents?",
		"Understood, I will take care of this and confirm once done.",
		"Good point, let me look into it and get back to you today.",
	},
	"witty": {
		"Well, that escalated delightfully quickly!",
		"Bold move, let's see how it plays out.",
		"You had my curiosity, now you have my attention.",
		"Plot twist of the day, and it's not even noon.",
		"I'd clap, but I'm holding my coffee.",
	},
	"default": {
		"Thanks for letting me know, I'll get back to you soon.",
		"That's interesting, tell me more.",
		"Got it, sounds good to me.",
		"I appreciate you sharing this with me.",
		"Let me think about that and follow up.",
	},
}

const fallbackBaseConfidence = 0.5

// Synthesizer pads short result sets with bank suggestions.
type Synthesizer struct{}

func NewSynthesizer() *Synthesizer {
	return &Synthesizer{}
}

// Synthesize returns up to count bank suggestions for the tone, skipping any
// whose text already appears in existing. Confidence decays with position so
// synthesized items always rank below generated ones of equal standing.
func (f *Synthesizer) Synthesize(tone string, count int, existing []string) []models.Suggestion {
	bank, ok := fallbackBank[strings.ToLower(tone)]
	if !ok {
		bank = fallbackBank["default"]
	}

	used := make(map[string]struct{}, len(existing))
	for _, text := range existing {
		used[NormalizeText(text)] = struct{}{}
	}

	out := make([]models.Suggestion, 0, count)
	for i, text := range bank {
		if len(out) == count {
			break
		}
		if _, dup := used[NormalizeText(text)]; dup {
			continue
		}
		confidence := fallbackBaseConfidence - 0.05*float64(i)
		out = append(out, models.Suggestion{
			Text:         text,
			Confidence:   confidence,
			Reasoning:    "synthesized fallback",
			Tone:         tone,
			QualityScore: confidence,
			Fallback:     true,
		})
	}
	return out
}

// Emergency returns a minimal safe set used when the pipeline itself fails.
func (f *Synthesizer) Emergency(tone string) []models.Suggestion {
	return f.Synthesize(tone, 3, nil)
}
