package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"diagbot/internal/archive"
	"diagbot/internal/composer"
	"diagbot/internal/memory"
	"diagbot/internal/report"
	"diagbot/internal/services"
	"diagbot/internal/storage"
	"diagbot/pkg"
)

var (
	// ErrSessionNotFound means the conversation id is unknown.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionCompleted means the conversation was already ended.
	ErrSessionCompleted = errors.New("session already completed")
)

// Classifier produces a structured response for one user message. It never
// fails: the orchestrator behind it falls back to the rule classifier.
type Classifier interface {
	Classify(ctx context.Context, text string, history []pkg.ConversationMessage, mem memory.Memory) pkg.ClassifiedResponse
}

// Manager owns the conversation lifecycle and is the only component that
// touches the store. Messages within one conversation are processed strictly
// sequentially; distinct conversations are independent.
type Manager struct {
	store     storage.Store
	classify  Classifier
	repairers *services.RepairerDirectory
	archive   *archive.Archive
	now       func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithArchive enables best-effort archiving of completed conversations.
func WithArchive(a *archive.Archive) Option {
	return func(m *Manager) { m.archive = a }
}

// WithClock overrides the time source, used by tests for the time-of-day
// welcome bands.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a session manager.
func NewManager(store storage.Store, classify Classifier, repairers *services.RepairerDirectory, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		classify:  classify,
		repairers: repairers,
		now:       time.Now,
		locks:     make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StartInput is the payload of start_conversation.
type StartInput struct {
	SessionID string
	UserID    string
	Location  *pkg.Location
}

// StartOutput is the result of start_conversation.
type StartOutput struct {
	ConversationID string                `json:"conversation_id"`
	Message        string                `json:"message"`
	Suggestions    []string              `json:"suggestions"`
	Actions        []pkg.SuggestedAction `json:"actions"`
}

// Start creates a new active session with an empty memory and returns the
// welcome payload. It performs no external calls beyond the store write.
func (m *Manager) Start(ctx context.Context, in StartInput) (*StartOutput, error) {
	now := m.now()
	conversationID := uuid.NewString()

	mem := memory.New()
	if in.Location != nil {
		mem.Context.NearbyRepairers = m.repairers.FindNearby(*in.Location, 5)
	}

	rec := &storage.Record{
		Session: pkg.Session{
			ConversationID: conversationID,
			SessionID:      in.SessionID,
			UserID:         in.UserID,
			Status:         pkg.StatusActive,
			CreatedAt:      now,
		},
		Memory:   mem,
		Messages: []pkg.ConversationMessage{},
	}

	welcome := welcomeMessage(now.Hour(), in.Location != nil)
	rec.Messages = append(rec.Messages, pkg.ConversationMessage{
		Sender:    pkg.SenderBot,
		Content:   welcome,
		CreatedAt: now,
	})

	if err := m.store.Save(ctx, conversationID, rec); err != nil {
		return nil, fmt.Errorf("failed to persist new session: %w", err)
	}

	log.Info().
		Str("conversation_id", conversationID).
		Str("session_id", in.SessionID).
		Bool("has_location", in.Location != nil).
		Msg("conversation started")

	return &StartOutput{
		ConversationID: conversationID,
		Message:        welcome,
		Suggestions: []string{
			"Mon écran est cassé",
			"Ma batterie ne tient plus",
			"Mon appareil ne s'allume plus",
			"Mon appareil est tombé dans l'eau",
		},
		Actions: []pkg.SuggestedAction{
			{Type: "share_location", Label: "Partager ma position"},
		},
	}, nil
}

// ProcessMessage classifies one user message, folds the result into the
// conversation memory, persists the turn and returns the composed payload.
// This is the only operation that performs a blocking external call.
func (m *Manager) ProcessMessage(ctx context.Context, conversationID, text string, loc *pkg.Location) (*pkg.EngineResponse, error) {
	unlock := m.lock(conversationID)
	defer unlock()

	rec, err := m.loadActive(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	if loc != nil {
		rec.Memory.Context.NearbyRepairers = m.repairers.FindNearby(*loc, 5)
	}

	start := m.now()
	classified := m.classify.Classify(ctx, text, rec.Messages, rec.Memory)
	rec.Memory = memory.Fold(rec.Memory, text, classified)
	response := composer.Compose(classified, rec.Memory)

	rec.Messages = append(rec.Messages,
		pkg.ConversationMessage{
			Sender:    pkg.SenderUser,
			Content:   text,
			CreatedAt: start,
		},
		pkg.ConversationMessage{
			Sender:     pkg.SenderBot,
			Content:    response.Response,
			Confidence: response.Confidence,
			Metadata:   response.Metadata,
			CreatedAt:  m.now(),
		},
	)

	if err := m.store.Save(ctx, conversationID, rec); err != nil {
		return nil, fmt.Errorf("failed to persist turn: %w", err)
	}

	log.Info().
		Str("conversation_id", conversationID).
		Float64("confidence", response.Confidence).
		Int("symptoms", len(rec.Memory.Context.CollectedSymptoms)).
		Str("stage", rec.Memory.Context.DiagnosisStage).
		Msg("message processed")

	return &response, nil
}

// UpdateLocation refreshes the nearby-repairer hints. Pure state update: it
// works on completed sessions too and only fails on an unknown conversation.
func (m *Manager) UpdateLocation(ctx context.Context, conversationID string, loc pkg.Location) error {
	unlock := m.lock(conversationID)
	defer unlock()

	rec, err := m.store.Load(ctx, conversationID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrSessionNotFound
		}
		return err
	}

	rec.Memory.Context.NearbyRepairers = m.repairers.FindNearby(loc, 5)
	if err := m.store.Save(ctx, conversationID, rec); err != nil {
		return fmt.Errorf("failed to persist location update: %w", err)
	}
	return nil
}

// GenerateReport projects the current memory into a diagnostic report.
// Calling it repeatedly without an intervening message yields identical
// reports.
func (m *Manager) GenerateReport(ctx context.Context, conversationID string) (pkg.DiagnosticReport, error) {
	rec, err := m.store.Load(ctx, conversationID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return pkg.DiagnosticReport{}, ErrSessionNotFound
		}
		return pkg.DiagnosticReport{}, err
	}
	return report.Generate(rec.Memory), nil
}

// End transitions the session to completed and records the satisfaction
// score. A second End on the same conversation is rejected.
func (m *Manager) End(ctx context.Context, conversationID string, satisfactionScore float64) error {
	unlock := m.lock(conversationID)
	defer unlock()

	rec, err := m.store.Load(ctx, conversationID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	if rec.Session.Status == pkg.StatusCompleted {
		return ErrSessionCompleted
	}

	now := m.now()
	rec.Session.Status = pkg.StatusCompleted
	rec.Session.CompletedAt = &now
	rec.Session.SatisfactionScore = &satisfactionScore
	rec.Memory.UserProfile.SatisfactionHistory = append(rec.Memory.UserProfile.SatisfactionHistory, satisfactionScore)

	if err := m.store.Save(ctx, conversationID, rec); err != nil {
		return fmt.Errorf("failed to persist session end: %w", err)
	}

	if m.archive != nil {
		entry := archive.Entry{
			ConversationID:    conversationID,
			EndedAt:           now,
			SatisfactionScore: satisfactionScore,
			MessageCount:      len(rec.Messages),
			Memory:            rec.Memory,
			Report:            report.Generate(rec.Memory),
		}
		if err := m.archive.Save(entry); err != nil {
			// Archiving is best effort and never fails the operation.
			log.Warn().Err(err).Str("conversation_id", conversationID).Msg("failed to archive conversation")
		}
	}

	log.Info().
		Str("conversation_id", conversationID).
		Float64("satisfaction", satisfactionScore).
		Msg("conversation ended")

	// The conversation is final, so its lock entry can go. A goroutine still
	// waiting on the old mutex proceeds and fails fast on the completed state.
	m.dropLock(conversationID)

	return nil
}

func (m *Manager) loadActive(ctx context.Context, conversationID string) (*storage.Record, error) {
	rec, err := m.store.Load(ctx, conversationID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if rec.Session.Status == pkg.StatusCompleted {
		return nil, ErrSessionCompleted
	}
	return rec, nil
}

// lock serializes processing per conversation id.
func (m *Manager) lock(conversationID string) func() {
	m.mu.Lock()
	l, ok := m.locks[conversationID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[conversationID] = l
	}
	m.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (m *Manager) dropLock(conversationID string) {
	m.mu.Lock()
	delete(m.locks, conversationID)
	m.mu.Unlock()
}

// welcomeMessage adapts the greeting to the time of day and appends a
// sentence when the caller shared coordinates.
func welcomeMessage(hour int, hasLocation bool) string {
	var greeting string
	switch {
	case hour >= 18:
		greeting = "Bonsoir !"
	case hour >= 12:
		greeting = "Bon après-midi !"
	default:
		greeting = "Bonjour !"
	}

	msg := greeting + " Je suis votre assistant de diagnostic. " +
		"Décrivez-moi le problème de votre appareil et je vous aiderai à identifier la panne et à estimer la réparation."
	if hasLocation {
		msg += " J'ai bien noté votre position : je pourrai vous proposer des réparateurs à proximité."
	}
	return msg
}
