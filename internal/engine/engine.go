package engine

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"diagbot/internal/session"
	"diagbot/pkg"
)

// Actions accepted by the engine.
const (
	ActionStartConversation = "start_conversation"
	ActionSendMessage       = "send_message"
	ActionLocationUpdated   = "location_updated"
	ActionGenerateReport    = "generate_diagnostic_report"
	ActionEndConversation   = "end_conversation"
)

// FallbackResponse is the canned human-readable message attached to every
// failure. The caller-facing channel never receives a bare error code.
const FallbackResponse = "Je suis désolé, un problème technique m'empêche de répondre pour le moment. " +
	"Pouvez-vous reformuler ou réessayer dans un instant ?"

// Request is the action-discriminated payload the caller sends.
type Request struct {
	Action            string        `json:"action"`
	SessionID         string        `json:"session_id,omitempty"`
	ConversationID    string        `json:"conversation_id,omitempty"`
	UserID            string        `json:"user_id,omitempty"`
	Content           string        `json:"content,omitempty"`
	UserLocation      *pkg.Location `json:"user_location,omitempty"`
	SatisfactionScore *float64      `json:"satisfaction_score,omitempty"`
}

// Response is the engine's reply for any action. Fields irrelevant to the
// action are left empty.
type Response struct {
	Success          bool                  `json:"success"`
	ConversationID   string                `json:"conversation_id,omitempty"`
	Message          string                `json:"message,omitempty"`
	Response         string                `json:"response,omitempty"`
	Confidence       float64               `json:"confidence"`
	Suggestions      []string              `json:"suggestions,omitempty"`
	Actions          []pkg.SuggestedAction `json:"actions,omitempty"`
	EmotionalContext *pkg.EmotionalContext `json:"emotional_context,omitempty"`
	DiagnosticData   *pkg.DiagnosticData   `json:"diagnostic_data,omitempty"`
	Metadata         map[string]any        `json:"metadata,omitempty"`
	Report           *pkg.DiagnosticReport `json:"report,omitempty"`
	Error            string                `json:"error,omitempty"`
	FallbackResponse string                `json:"fallback_response,omitempty"`
}

// Engine dispatches caller actions to the session manager.
type Engine struct {
	sessions *session.Manager
}

// New creates an engine over a session manager.
func New(sessions *session.Manager) *Engine {
	return &Engine{sessions: sessions}
}

// Handle processes one request. It never returns a Go error: failures are
// reported in the response with a human-readable message.
func (e *Engine) Handle(ctx context.Context, req Request) *Response {
	switch req.Action {
	case ActionStartConversation:
		return e.startConversation(ctx, req)
	case ActionSendMessage:
		return e.sendMessage(ctx, req)
	case ActionLocationUpdated:
		return e.locationUpdated(ctx, req)
	case ActionGenerateReport:
		return e.generateReport(ctx, req)
	case ActionEndConversation:
		return e.endConversation(ctx, req)
	default:
		log.Warn().Str("action", req.Action).Msg("unrecognized action")
		return failure("action non reconnue : " + req.Action)
	}
}

func (e *Engine) startConversation(ctx context.Context, req Request) *Response {
	if req.SessionID == "" {
		return validationFailure("session_id est requis pour start_conversation")
	}

	out, err := e.sessions.Start(ctx, session.StartInput{
		SessionID: req.SessionID,
		UserID:    req.UserID,
		Location:  req.UserLocation,
	})
	if err != nil {
		return e.internalFailure(err)
	}

	return &Response{
		Success:        true,
		ConversationID: out.ConversationID,
		Message:        out.Message,
		Suggestions:    out.Suggestions,
		Actions:        out.Actions,
	}
}

func (e *Engine) sendMessage(ctx context.Context, req Request) *Response {
	if req.ConversationID == "" {
		return validationFailure("conversation_id est requis pour send_message")
	}
	if req.Content == "" {
		return validationFailure("content est requis pour send_message")
	}

	resp, err := e.sessions.ProcessMessage(ctx, req.ConversationID, req.Content, req.UserLocation)
	if err != nil {
		return e.sessionFailure(err)
	}

	return &Response{
		Success:          true,
		ConversationID:   req.ConversationID,
		Response:         resp.Response,
		Confidence:       resp.Confidence,
		Suggestions:      resp.Suggestions,
		Actions:          resp.Actions,
		EmotionalContext: &resp.EmotionalContext,
		DiagnosticData:   &resp.DiagnosticData,
		Metadata:         resp.Metadata,
	}
}

func (e *Engine) locationUpdated(ctx context.Context, req Request) *Response {
	if req.ConversationID == "" {
		return validationFailure("conversation_id est requis pour location_updated")
	}
	if req.UserLocation == nil {
		return validationFailure("user_location est requis pour location_updated")
	}

	if err := e.sessions.UpdateLocation(ctx, req.ConversationID, *req.UserLocation); err != nil {
		return e.sessionFailure(err)
	}

	return &Response{
		Success:        true,
		ConversationID: req.ConversationID,
		Message:        "Position mise à jour, je cherche les réparateurs à proximité.",
	}
}

func (e *Engine) generateReport(ctx context.Context, req Request) *Response {
	if req.ConversationID == "" {
		return validationFailure("conversation_id est requis pour generate_diagnostic_report")
	}

	rep, err := e.sessions.GenerateReport(ctx, req.ConversationID)
	if err != nil {
		return e.sessionFailure(err)
	}

	return &Response{
		Success:        true,
		ConversationID: req.ConversationID,
		Report:         &rep,
	}
}

func (e *Engine) endConversation(ctx context.Context, req Request) *Response {
	if req.ConversationID == "" {
		return validationFailure("conversation_id est requis pour end_conversation")
	}
	if req.SatisfactionScore == nil {
		return validationFailure("satisfaction_score est requis pour end_conversation")
	}
	if *req.SatisfactionScore < 0 || *req.SatisfactionScore > 100 {
		return validationFailure("satisfaction_score doit être compris entre 0 et 100")
	}

	if err := e.sessions.End(ctx, req.ConversationID, *req.SatisfactionScore); err != nil {
		return e.sessionFailure(err)
	}

	return &Response{
		Success:        true,
		ConversationID: req.ConversationID,
		Message:        "Merci pour votre retour, la conversation est clôturée.",
	}
}

func (e *Engine) sessionFailure(err error) *Response {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return failure("conversation introuvable")
	case errors.Is(err, session.ErrSessionCompleted):
		return failure("cette conversation est déjà clôturée")
	default:
		return e.internalFailure(err)
	}
}

func (e *Engine) internalFailure(err error) *Response {
	// The raw error stays in the logs; the caller gets a generic message.
	log.Error().Err(err).Msg("internal engine failure")
	return failure("erreur interne")
}

func validationFailure(msg string) *Response {
	return failure(msg)
}

func failure(msg string) *Response {
	return &Response{
		Success:          false,
		Error:            msg,
		FallbackResponse: FallbackResponse,
	}
}
