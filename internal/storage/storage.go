package storage

import (
	"context"
	"errors"

	"diagbot/internal/memory"
	"diagbot/pkg"
)

// ErrNotFound is returned when no record exists for a conversation id.
var ErrNotFound = errors.New("conversation record not found")

// Record is the persisted state of one conversation: the session, its
// memory, and the append-only message log. The session manager serializes
// access per conversation, so a read-modify-write of the whole record is
// safe.
type Record struct {
	Session  pkg.Session               `json:"session"`
	Memory   memory.Memory             `json:"memory"`
	Messages []pkg.ConversationMessage `json:"messages"`
}

// Store is the external persistence collaborator of the session manager.
type Store interface {
	Load(ctx context.Context, conversationID string) (*Record, error)
	Save(ctx context.Context, conversationID string, rec *Record) error
	Delete(ctx context.Context, conversationID string) error
}
