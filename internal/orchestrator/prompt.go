package orchestrator

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"diagbot/internal/memory"
	"diagbot/pkg"
)

// getSystemTemplate returns the system instructions. Literal braces are
// doubled because the template is rendered with FString formatting.
func getSystemTemplate() string {
	return `You are the diagnostic assistant of a French device-repair platform. You help customers describe a broken device, you track their emotional state, and you collect symptoms toward a diagnosis. Always answer in French.

STRICT RULES:
1. Return a SINGLE JSON object and nothing else. No prose, no code fences.
2. The "content" field is MANDATORY and must contain your reply to the customer.
3. "confidence" is a float between 0 and 1.
4. "symptoms_detected" must only contain short snake_case symptom labels.
5. "diagnosis_stage" progresses through problem_identification, symptom_collection, diagnosis_confirmed. Never move backwards.
6. Adapt your tone to the emotional state and communication style provided in the conversation state.
7. Ask at most 3 follow-up questions per turn.

Output shape:
{{
  "content": "<your reply in French>",
  "confidence": <0..1>,
  "suggestions": ["<short quick-reply>", ...],
  "actions": [{{"type": "request_quote|find_repairer|backup_reminder", "label": "<button label>", "value": "<optional>"}}],
  "emotional_context": {{"detected_emotion": "<neutral|concern|frustration|anger|relief|satisfaction|joy>", "response_tone": "<empathetic|supportive|factual>"}},
  "diagnostic_data": {{"symptoms_detected": ["<label>"], "diagnosis_stage": "<stage>", "confidence_diagnosis": <0..1>, "estimated_cost": "<range in €>", "urgency": "<low|medium|high>"}}
}}

Example:
User: "Mon téléphone est tombé et maintenant l'écran reste noir"
Output:
{{
  "content": "Aïe, une chute avec un écran qui reste noir... Je comprends votre inquiétude. Est-ce que le téléphone vibre ou sonne encore quand vous l'appelez ?",
  "confidence": 0.87,
  "suggestions": ["Oui il vibre encore", "Non, aucun signe de vie"],
  "actions": [{{"type": "request_quote", "label": "Obtenir un devis", "value": "screen_broken"}}],
  "emotional_context": {{"detected_emotion": "concern", "response_tone": "empathetic"}},
  "diagnostic_data": {{"symptoms_detected": ["screen_broken"], "diagnosis_stage": "symptom_collection", "confidence_diagnosis": 0.8, "estimated_cost": "80-200€", "urgency": "medium"}}
}}`
}

// getUserTemplate returns the per-turn data template.
func getUserTemplate() string {
	return `<conversation_state>
{memory_context}
</conversation_state>

{repairer_hints}<conversation_history>
{history}
</conversation_history>

<current_message_to_analyze>
{input_text}
</current_message_to_analyze>

Output:`
}

// diagnosticTemplate creates the chat template for the provider chain.
func diagnosticTemplate() prompt.ChatTemplate {
	return prompt.FromMessages(schema.FString,
		schema.SystemMessage(getSystemTemplate()),
		schema.UserMessage(getUserTemplate()),
	)
}

// templateVars renders the conversation memory, history window and repairer
// hints into the template variables.
func templateVars(text string, history []pkg.ConversationMessage, mem memory.Memory) map[string]any {
	return map[string]any{
		"input_text":     text,
		"memory_context": renderMemory(mem),
		"history":        renderHistory(history),
		"repairer_hints": renderRepairers(mem.Context.NearbyRepairers),
	}
}

func renderMemory(mem memory.Memory) string {
	var b strings.Builder
	fmt.Fprintf(&b, "communication_style: %s\n", mem.UserProfile.CommunicationStyle)
	fmt.Fprintf(&b, "urgency_level: %s\n", mem.UserProfile.UrgencyLevel)
	fmt.Fprintf(&b, "current_mood: %s (initial: %s)\n", mem.Emotional.CurrentMood, mem.Emotional.InitialMood)
	fmt.Fprintf(&b, "frustration_level: %d/10\n", mem.Emotional.FrustrationLevel)
	fmt.Fprintf(&b, "diagnosis_stage: %s\n", mem.Context.DiagnosisStage)
	if mem.Context.CurrentIssue != "" {
		fmt.Fprintf(&b, "current_issue: %s\n", mem.Context.CurrentIssue)
	}
	if len(mem.Context.CollectedSymptoms) > 0 {
		fmt.Fprintf(&b, "collected_symptoms: %s\n", strings.Join(mem.Context.CollectedSymptoms, ", "))
	}
	if len(mem.Context.SuggestedSolutions) > 0 {
		fmt.Fprintf(&b, "suggested_solutions: %s\n", strings.Join(mem.Context.SuggestedSolutions, "; "))
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderHistory(history []pkg.ConversationMessage) string {
	if len(history) > maxHistoryWindow {
		history = history[len(history)-maxHistoryWindow:]
	}
	if len(history) == 0 {
		return "(empty)"
	}

	var b strings.Builder
	for i, msg := range history {
		role := "USER"
		if msg.Sender == pkg.SenderBot {
			role = "ASSISTANT"
		}
		fmt.Fprintf(&b, "%d. [%s]: %s\n", i+1, role, msg.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderRepairers(repairers []pkg.RepairerRef) string {
	if len(repairers) == 0 {
		return ""
	}
	if len(repairers) > maxRepairerHints {
		repairers = repairers[:maxRepairerHints]
	}

	var b strings.Builder
	b.WriteString("<nearby_repairers>\n")
	for _, r := range repairers {
		fmt.Fprintf(&b, "- %s (%s, %.1f km, note %.1f)\n", r.Name, r.City, r.DistanceKm, r.Rating)
	}
	b.WriteString("</nearby_repairers>\n\n")
	return b.String()
}
