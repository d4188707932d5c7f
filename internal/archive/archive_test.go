package archive

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diagbot/internal/memory"
	"diagbot/pkg"
)

func sampleEntry(score float64) Entry {
	mem := memory.New()
	mem.Context.CollectedSymptoms = []string{"screen_broken"}
	return Entry{
		ConversationID:    "conv-1",
		EndedAt:           time.Date(2026, 8, 28, 15, 0, 0, 0, time.UTC),
		SatisfactionScore: score,
		MessageCount:      6,
		Memory:            mem,
		Report: pkg.DiagnosticReport{
			Summary:  "1 symptôme identifié",
			Symptoms: []string{"screen_broken"},
		},
	}
}

func TestArchiveSaveAndLoad(t *testing.T) {
	a := New(t.TempDir())

	require.NoError(t, a.Save(sampleEntry(90)))

	entries, err := a.Load("conv-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 90.0, entries[0].SatisfactionScore)
	assert.Equal(t, []string{"screen_broken"}, entries[0].Memory.Context.CollectedSymptoms)
}

func TestArchiveAppends(t *testing.T) {
	a := New(t.TempDir())

	require.NoError(t, a.Save(sampleEntry(70)))
	require.NoError(t, a.Save(sampleEntry(95)))

	entries, err := a.Load("conv-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 70.0, entries[0].SatisfactionScore)
	assert.Equal(t, 95.0, entries[1].SatisfactionScore)
}

func TestArchiveLoadMissingIsEmpty(t *testing.T) {
	a := New(t.TempDir())

	entries, err := a.Load("never-seen")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestArchiveCreatesBaseDir(t *testing.T) {
	base := filepath.Join(t.TempDir(), "nested", "archive")
	a := New(base)

	require.NoError(t, a.Save(sampleEntry(80)))

	_, err := os.Stat(filepath.Join(base, "conv-1.json"))
	assert.NoError(t, err)
}
