package pkg

import (
	"time"

	"github.com/bytedance/sonic"
)

// Core types shared between the diagnostic engine components.

// Urgency is the repair urgency tier attached to an intent.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// SessionStatus is the conversation session lifecycle state.
type SessionStatus string

const (
	StatusActive    SessionStatus = "active"
	StatusCompleted SessionStatus = "completed"
)

// SenderType identifies who produced a conversation message.
type SenderType string

const (
	SenderUser SenderType = "user"
	SenderBot  SenderType = "bot"
)

// CommunicationStyle is the inferred register of the user.
type CommunicationStyle string

const (
	StyleFormal    CommunicationStyle = "formal"
	StyleCasual    CommunicationStyle = "casual"
	StyleTechnical CommunicationStyle = "technical"
)

// Location is a [lat, lng] coordinate pair on the wire.
type Location struct {
	Lat float64
	Lng float64
}

// MarshalJSON encodes the location as a two-element array.
func (l Location) MarshalJSON() ([]byte, error) {
	return sonic.Marshal([2]float64{l.Lat, l.Lng})
}

// UnmarshalJSON decodes a [lat, lng] array.
func (l *Location) UnmarshalJSON(data []byte) error {
	var pair [2]float64
	if err := sonic.Unmarshal(data, &pair); err != nil {
		return err
	}
	l.Lat, l.Lng = pair[0], pair[1]
	return nil
}

// Session represents one conversation session owned by the session manager.
type Session struct {
	ConversationID    string        `json:"conversation_id"`
	SessionID         string        `json:"session_id"`
	UserID            string        `json:"user_id,omitempty"`
	Status            SessionStatus `json:"status"`
	CreatedAt         time.Time     `json:"created_at"`
	CompletedAt       *time.Time    `json:"completed_at,omitempty"`
	SatisfactionScore *float64      `json:"satisfaction_score,omitempty"`
}

// ConversationMessage is one turn in the append-only message log.
type ConversationMessage struct {
	Sender     SenderType     `json:"sender"`
	Content    string         `json:"content"`
	Confidence float64        `json:"confidence,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// SuggestedAction is an actionable directive the UI can render as a button.
type SuggestedAction struct {
	Type  string `json:"type"`
	Label string `json:"label"`
	Value string `json:"value,omitempty"`
}

// EmotionalContext carries the emotional annotations for one turn.
type EmotionalContext struct {
	DetectedEmotion string `json:"detected_emotion"`
	ResponseTone    string `json:"response_tone,omitempty"`
}

// DiagnosticData is the structured diagnostic fragment for one turn.
type DiagnosticData struct {
	SymptomsDetected    []string `json:"symptoms_detected"`
	DiagnosisStage      string   `json:"diagnosis_stage,omitempty"`
	ConfidenceDiagnosis float64  `json:"confidence_diagnosis,omitempty"`
	EstimatedCost       string   `json:"estimated_cost,omitempty"`
	Urgency             Urgency  `json:"urgency,omitempty"`
}

// ClassifiedResponse is the structured output of a classification, whether it
// came from the language-model provider or from the rule classifier.
type ClassifiedResponse struct {
	Content          string            `json:"content"`
	Confidence       float64           `json:"confidence"`
	Suggestions      []string          `json:"suggestions"`
	Actions          []SuggestedAction `json:"actions"`
	EmotionalContext EmotionalContext  `json:"emotional_context"`
	DiagnosticData   DiagnosticData    `json:"diagnostic_data"`
	Metadata         map[string]any    `json:"metadata,omitempty"`
}

// EngineResponse is the outbound payload for one processed message.
type EngineResponse struct {
	Response         string            `json:"response"`
	Confidence       float64           `json:"confidence"`
	Suggestions      []string          `json:"suggestions"`
	Actions          []SuggestedAction `json:"actions"`
	EmotionalContext EmotionalContext  `json:"emotional_context"`
	DiagnosticData   DiagnosticData    `json:"diagnostic_data"`
	Metadata         map[string]any    `json:"metadata"`
}

// RepairerRef is a nearby-repairer hint used for matching and actions.
type RepairerRef struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	City       string  `json:"city"`
	Rating     float64 `json:"rating"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	DistanceKm float64 `json:"distance_km,omitempty"`
}

// DiagnosticReport is a pure projection of the conversation memory.
type DiagnosticReport struct {
	Summary           string   `json:"summary"`
	Symptoms          []string `json:"symptoms"`
	Recommendations   []string `json:"recommendations"`
	EstimatedTimeline string   `json:"estimated_timeline"`
	ConfidenceLevel   float64  `json:"confidence_level"`
}

// ProviderConfig holds configuration for the language-model provider.
type ProviderConfig struct {
	Name        string  `json:"name"`
	Model       string  `json:"model"`
	APIKey      string  `json:"api_key"`
	BaseURL     string  `json:"base_url"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	TimeoutSec  int     `json:"timeout_seconds"`
}
