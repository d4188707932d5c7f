package composer

import (
	"diagbot/internal/memory"
	"diagbot/pkg"
)

// maxSuggestions caps the quick replies in the outbound payload.
const maxSuggestions = 4

// Compose merges the winning classification and the already-folded memory
// into the outbound payload. Pure: neither input is mutated.
func Compose(resp pkg.ClassifiedResponse, mem memory.Memory) pkg.EngineResponse {
	suggestions := append([]string(nil), resp.Suggestions...)
	if len(suggestions) > maxSuggestions {
		suggestions = suggestions[:maxSuggestions]
	}
	if suggestions == nil {
		suggestions = []string{}
	}

	actions := append([]pkg.SuggestedAction(nil), resp.Actions...)
	if len(mem.Context.NearbyRepairers) > 0 && !hasAction(actions, "find_repairer") {
		actions = append(actions, pkg.SuggestedAction{
			Type:  "find_repairer",
			Label: "Voir les réparateurs à proximité",
		})
	}
	if actions == nil {
		actions = []pkg.SuggestedAction{}
	}

	metadata := map[string]any{
		"complexity": "medium",
	}
	for k, v := range resp.Metadata {
		metadata[k] = v
	}
	if _, ok := metadata["complexity"]; !ok || metadata["complexity"] == "" {
		metadata["complexity"] = "medium"
	}
	metadata["frustration_level"] = mem.Emotional.FrustrationLevel
	metadata["diagnosis_stage"] = mem.Context.DiagnosisStage

	return pkg.EngineResponse{
		Response:         resp.Content,
		Confidence:       resp.Confidence,
		Suggestions:      suggestions,
		Actions:          actions,
		EmotionalContext: resp.EmotionalContext,
		DiagnosticData:   resp.DiagnosticData,
		Metadata:         metadata,
	}
}

func hasAction(actions []pkg.SuggestedAction, actionType string) bool {
	for _, a := range actions {
		if a.Type == actionType {
			return true
		}
	}
	return false
}
