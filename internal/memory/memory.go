package memory

import (
	"strings"

	"diagbot/pkg"
)

// UserProfile accumulates what the engine knows about the user.
type UserProfile struct {
	CommunicationStyle  pkg.CommunicationStyle `json:"communication_style"`
	UrgencyLevel        pkg.Urgency            `json:"urgency_level"`
	PreviousIssues      []string               `json:"previous_issues"`
	SatisfactionHistory []float64              `json:"satisfaction_history"`
}

// ContextState tracks diagnostic progress across turns.
type ContextState struct {
	CurrentIssue       string            `json:"current_issue,omitempty"`
	DiagnosisStage     string            `json:"diagnosis_stage"`
	CollectedSymptoms  []string          `json:"collected_symptoms"`
	SuggestedSolutions []string          `json:"suggested_solutions"`
	NearbyRepairers    []pkg.RepairerRef `json:"nearby_repairers,omitempty"`
}

// EmotionalJourney tracks the arc of user mood across the session.
// RecentEmotions keeps the detected emotion of the last three turns, which
// drives the frustration heuristic.
type EmotionalJourney struct {
	InitialMood      string   `json:"initial_mood"`
	CurrentMood      string   `json:"current_mood"`
	FrustrationLevel int      `json:"frustration_level"`
	ConfidenceLevel  float64  `json:"confidence_level"`
	RecentEmotions   []string `json:"recent_emotions,omitempty"`
}

// Memory is the cumulative per-session state folded from every turn.
type Memory struct {
	UserProfile UserProfile      `json:"user_profile"`
	Context     ContextState     `json:"conversation_context"`
	Emotional   EmotionalJourney `json:"emotional_journey"`
}

// New returns an empty memory seeded with a neutral mood.
func New() Memory {
	return Memory{
		UserProfile: UserProfile{
			CommunicationStyle:  pkg.StyleFormal,
			UrgencyLevel:        pkg.UrgencyLow,
			PreviousIssues:      []string{},
			SatisfactionHistory: []float64{},
		},
		Context: ContextState{
			DiagnosisStage:     "problem_identification",
			CollectedSymptoms:  []string{},
			SuggestedSolutions: []string{},
		},
		Emotional: EmotionalJourney{
			InitialMood:      "neutral",
			CurrentMood:      "neutral",
			FrustrationLevel: 0,
			ConfidenceLevel:  50,
		},
	}
}

const emotionWindow = 3

var negativeEmotions = map[string]bool{
	"concern":     true,
	"frustration": true,
	"anger":       true,
}

var positiveEmotions = map[string]bool{
	"relief":       true,
	"satisfaction": true,
	"joy":          true,
}

// Fold merges one turn into the memory and returns the next state. It is
// pure: identical inputs always produce identical outputs and the previous
// memory is never mutated.
func Fold(prev Memory, userMessage string, out pkg.ClassifiedResponse) Memory {
	next := clone(prev)

	// Symptom set union, insertion-ordered. Symptoms only ever grow.
	for _, symptom := range out.DiagnosticData.SymptomsDetected {
		if symptom == "" || contains(next.Context.CollectedSymptoms, symptom) {
			continue
		}
		next.Context.CollectedSymptoms = append(next.Context.CollectedSymptoms, symptom)
	}

	if stage := out.DiagnosticData.DiagnosisStage; stage != "" {
		next.Context.DiagnosisStage = stage
	}

	for _, solution := range out.Suggestions {
		if solution == "" || contains(next.Context.SuggestedSolutions, solution) {
			continue
		}
		next.Context.SuggestedSolutions = append(next.Context.SuggestedSolutions, solution)
	}

	// Track the issue under discussion; an issue change is remembered.
	if len(out.DiagnosticData.SymptomsDetected) > 0 {
		issue := out.DiagnosticData.SymptomsDetected[0]
		if next.Context.CurrentIssue != "" && next.Context.CurrentIssue != issue {
			if !contains(next.UserProfile.PreviousIssues, next.Context.CurrentIssue) {
				next.UserProfile.PreviousIssues = append(next.UserProfile.PreviousIssues, next.Context.CurrentIssue)
			}
		}
		next.Context.CurrentIssue = issue
	}

	if out.DiagnosticData.Urgency != "" {
		next.UserProfile.UrgencyLevel = maxUrgency(next.UserProfile.UrgencyLevel, out.DiagnosticData.Urgency)
	}

	if style := inferStyle(userMessage); style != "" {
		next.UserProfile.CommunicationStyle = style
	}

	emotion := out.EmotionalContext.DetectedEmotion
	if emotion != "" {
		next.Emotional.CurrentMood = emotion
	}
	next.Emotional.RecentEmotions = appendWindow(next.Emotional.RecentEmotions, emotion, emotionWindow)
	next.Emotional.FrustrationLevel = clampInt(nextFrustration(next.Emotional.FrustrationLevel, next.Emotional.RecentEmotions, emotion), 0, 10)

	if conf := out.DiagnosticData.ConfidenceDiagnosis; conf > 0 {
		// Diagnostic confidence arrives in [0,1]; values above 1 are taken as
		// percentages already.
		if conf <= 1 {
			conf *= 100
		}
		next.Emotional.ConfidenceLevel = clampFloat(conf, 0, 100)
	}

	return next
}

// nextFrustration nudges the level up when negative emotions repeat across
// the recent window, and down one step on a positive signal. Absent positive
// signals the level never decreases.
func nextFrustration(current int, recent []string, emotion string) int {
	if positiveEmotions[emotion] {
		return current - 1
	}
	if !negativeEmotions[emotion] {
		return current
	}

	negatives := 0
	for _, e := range recent {
		if negativeEmotions[e] {
			negatives++
		}
	}
	if negatives >= 2 {
		return current + 2
	}
	return current + 1
}

// inferStyle guesses the communication register from one message. Empty
// means no signal, keep the previous style.
func inferStyle(message string) pkg.CommunicationStyle {
	lower := strings.ToLower(message)

	for _, marker := range []string{"carte mère", "firmware", "connecteur", "condensateur", "driver", "nappe"} {
		if strings.Contains(lower, marker) {
			return pkg.StyleTechnical
		}
	}
	for _, marker := range []string{"slt", "mdr", "lol", "wesh"} {
		if strings.Contains(lower, marker) {
			return pkg.StyleCasual
		}
	}
	for _, marker := range []string{"vous", "bonjour", "cordialement", "monsieur", "madame"} {
		if strings.Contains(lower, marker) {
			return pkg.StyleFormal
		}
	}
	return ""
}

func maxUrgency(a, b pkg.Urgency) pkg.Urgency {
	rank := map[pkg.Urgency]int{pkg.UrgencyLow: 0, pkg.UrgencyMedium: 1, pkg.UrgencyHigh: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

func appendWindow(window []string, value string, size int) []string {
	next := append(append([]string(nil), window...), value)
	if len(next) > size {
		next = next[len(next)-size:]
	}
	return next
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clone(m Memory) Memory {
	c := m
	c.UserProfile.PreviousIssues = append([]string(nil), m.UserProfile.PreviousIssues...)
	c.UserProfile.SatisfactionHistory = append([]float64(nil), m.UserProfile.SatisfactionHistory...)
	c.Context.CollectedSymptoms = append([]string(nil), m.Context.CollectedSymptoms...)
	c.Context.SuggestedSolutions = append([]string(nil), m.Context.SuggestedSolutions...)
	c.Context.NearbyRepairers = append([]pkg.RepairerRef(nil), m.Context.NearbyRepairers...)
	c.Emotional.RecentEmotions = append([]string(nil), m.Emotional.RecentEmotions...)
	return c
}
