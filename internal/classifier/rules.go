package classifier

import (
	"strings"
	"unicode"

	"github.com/rs/zerolog/log"

	"diagbot/internal/lexicon"
	"diagbot/pkg"
)

// ConfidenceThreshold is the minimum keyword-overlap ratio an intent must
// reach to be selected. Below it the generic supportive response is used.
const ConfidenceThreshold = 0.3

// fallbackConfidence is the fixed confidence of the generic response.
const fallbackConfidence = 0.6

// maxFollowUps caps the follow-up questions included in the response body.
const maxFollowUps = 3

// RuleClassifier scores free text against the lexicon. It is deterministic
// and never fails, which makes it the guaranteed-available baseline behind
// the language-model provider.
type RuleClassifier struct {
	lex *lexicon.Lexicon
}

// New creates a rule classifier over the given lexicon.
func New(lex *lexicon.Lexicon) *RuleClassifier {
	return &RuleClassifier{lex: lex}
}

// Classify scores the text against every lexicon entry and returns the
// winning intent's canned response, or the generic fallback when no entry
// clears the threshold. Ties keep the first entry in declaration order.
func (c *RuleClassifier) Classify(text string) pkg.ClassifiedResponse {
	words := tokenize(text)

	var best lexicon.Entry
	bestScore := 0.0
	found := false

	for _, entry := range c.lex.Entries() {
		matched := 0
		for _, kw := range entry.Keywords {
			if words[strings.ToLower(kw)] {
				matched++
			}
		}
		score := float64(matched) / float64(len(entry.Keywords))
		if score > bestScore {
			best = entry
			bestScore = score
			found = true
		}
	}

	if !found || bestScore <= ConfidenceThreshold {
		log.Debug().Float64("best_score", bestScore).Msg("no intent cleared threshold, using generic response")
		return genericResponse()
	}

	log.Debug().
		Str("intent", best.ID).
		Float64("score", bestScore).
		Msg("rule classifier matched intent")

	return pkg.ClassifiedResponse{
		Content:     buildContent(best),
		Confidence:  bestScore,
		Suggestions: append([]string(nil), best.FollowUpQuestions...),
		Actions: []pkg.SuggestedAction{
			{Type: "request_quote", Label: "Obtenir un devis", Value: best.ID},
		},
		EmotionalContext: pkg.EmotionalContext{
			DetectedEmotion: emotionForUrgency(best.Urgency),
			ResponseTone:    "empathetic",
		},
		DiagnosticData: pkg.DiagnosticData{
			SymptomsDetected:    []string{best.ID},
			DiagnosisStage:      "symptom_collection",
			ConfidenceDiagnosis: bestScore,
			EstimatedCost:       best.EstimatedCostRange,
			Urgency:             best.Urgency,
		},
		Metadata: map[string]any{
			"ai_model":   "rules",
			"complexity": "simple",
		},
	}
}

func buildContent(entry lexicon.Entry) string {
	var b strings.Builder
	b.WriteString(entry.OpeningResponse)

	questions := entry.FollowUpQuestions
	if len(questions) > maxFollowUps {
		questions = questions[:maxFollowUps]
	}
	for _, q := range questions {
		b.WriteString("\n- ")
		b.WriteString(q)
	}
	return b.String()
}

func genericResponse() pkg.ClassifiedResponse {
	return pkg.ClassifiedResponse{
		Content: "Je suis là pour vous aider avec votre appareil. " +
			"Pouvez-vous me décrire le problème que vous rencontrez ? " +
			"Par exemple : l'écran, la batterie, un appareil qui ne s'allume plus...",
		Confidence: fallbackConfidence,
		Suggestions: []string{
			"Mon écran est cassé",
			"Ma batterie se décharge vite",
			"Mon appareil ne s'allume plus",
		},
		Actions: []pkg.SuggestedAction{},
		EmotionalContext: pkg.EmotionalContext{
			DetectedEmotion: "neutral",
			ResponseTone:    "supportive",
		},
		DiagnosticData: pkg.DiagnosticData{
			SymptomsDetected: []string{},
			DiagnosisStage:   "problem_identification",
		},
		Metadata: map[string]any{
			"ai_model":   "rules",
			"complexity": "simple",
		},
	}
}

func emotionForUrgency(u pkg.Urgency) string {
	if u == pkg.UrgencyHigh {
		return "concern"
	}
	return "neutral"
}

// tokenize lowercases the text and splits it into a word set on any
// non-letter, non-digit rune. Accented characters are preserved.
func tokenize(text string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(strings.TrimSpace(text)), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	words := make(map[string]bool, len(fields))
	for _, f := range fields {
		words[f] = true
	}
	return words
}
