package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog/log"

	"diagbot/internal/memory"
	"diagbot/pkg"
)

// Entry is the archived outcome of one completed conversation, kept for
// downstream repairer-matching and cost-estimation analytics.
type Entry struct {
	ConversationID    string               `json:"conversation_id"`
	EndedAt           time.Time            `json:"ended_at"`
	SatisfactionScore float64              `json:"satisfaction_score"`
	MessageCount      int                  `json:"message_count"`
	Memory            memory.Memory        `json:"memory"`
	Report            pkg.DiagnosticReport `json:"report"`
}

// Archive appends completed-conversation entries to JSON files on disk, one
// file per conversation.
type Archive struct {
	baseDir string
}

// New creates an archive rooted at baseDir.
func New(baseDir string) *Archive {
	return &Archive{baseDir: baseDir}
}

// Save appends an entry to the conversation's archive file.
func (a *Archive) Save(entry Entry) error {
	if err := os.MkdirAll(a.baseDir, 0755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	entries, err := a.load(entry.ConversationID)
	if err != nil {
		log.Warn().Err(err).Str("conversation_id", entry.ConversationID).Msg("failed to load existing archive, starting fresh")
		entries = []Entry{}
	}
	entries = append(entries, entry)

	data, err := sonic.ConfigDefault.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal archive entries: %w", err)
	}

	path := a.filePath(entry.ConversationID)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write archive file: %w", err)
	}

	log.Info().
		Str("conversation_id", entry.ConversationID).
		Int("symptoms", len(entry.Memory.Context.CollectedSymptoms)).
		Float64("satisfaction", entry.SatisfactionScore).
		Msg("conversation archived")

	return nil
}

// Load returns the archived entries for a conversation. A missing file is an
// empty archive, not an error.
func (a *Archive) Load(conversationID string) ([]Entry, error) {
	return a.load(conversationID)
}

func (a *Archive) load(conversationID string) ([]Entry, error) {
	path := a.filePath(conversationID)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return []Entry{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive file: %w", err)
	}

	var entries []Entry
	if err := sonic.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse archive file: %w", err)
	}
	return entries, nil
}

func (a *Archive) filePath(conversationID string) string {
	return filepath.Join(a.baseDir, conversationID+".json")
}
