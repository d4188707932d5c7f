package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diagbot/internal/archive"
	"diagbot/internal/memory"
	"diagbot/internal/services"
	"diagbot/internal/storage"
	"diagbot/pkg"
)

// stubClassifier returns canned responses without any provider round trip.
type stubClassifier struct {
	mu    sync.Mutex
	calls int
	resp  pkg.ClassifiedResponse
}

func (s *stubClassifier) Classify(_ context.Context, _ string, _ []pkg.ConversationMessage, _ memory.Memory) pkg.ClassifiedResponse {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.resp
}

func screenBrokenResponse() pkg.ClassifiedResponse {
	return pkg.ClassifiedResponse{
		Content:          "Je comprends, parlons de cet écran cassé.",
		Confidence:       0.9,
		Suggestions:      []string{"Depuis quand ?"},
		EmotionalContext: pkg.EmotionalContext{DetectedEmotion: "concern"},
		DiagnosticData: pkg.DiagnosticData{
			SymptomsDetected:    []string{"screen_broken"},
			DiagnosisStage:      "symptom_collection",
			ConfidenceDiagnosis: 0.8,
			EstimatedCost:       "80-200€",
			Urgency:             pkg.UrgencyMedium,
		},
	}
}

func fixedClock(hour int) func() time.Time {
	return func() time.Time {
		return time.Date(2026, 8, 28, hour, 30, 0, 0, time.UTC)
	}
}

func newTestManager(t *testing.T, opts ...Option) (*Manager, *stubClassifier) {
	t.Helper()
	stub := &stubClassifier{resp: screenBrokenResponse()}
	base := []Option{WithClock(fixedClock(10))}
	m := NewManager(storage.NewMemoryStore(), stub, services.NewRepairerDirectory(), append(base, opts...)...)
	return m, stub
}

func TestStartCreatesActiveSession(t *testing.T) {
	m, _ := newTestManager(t)

	out, err := m.Start(context.Background(), StartInput{SessionID: "sess-1", UserID: "user-1"})
	require.NoError(t, err)

	assert.NotEmpty(t, out.ConversationID)
	assert.Contains(t, out.Message, "Bonjour !")
	assert.Len(t, out.Suggestions, 4)
	require.Len(t, out.Actions, 1)
	assert.Equal(t, "share_location", out.Actions[0].Type)
}

func TestStartWelcomeTimeBands(t *testing.T) {
	cases := []struct {
		hour     int
		greeting string
	}{
		{9, "Bonjour !"},
		{12, "Bon après-midi !"},
		{17, "Bon après-midi !"},
		{18, "Bonsoir !"},
		{23, "Bonsoir !"},
	}
	for _, tc := range cases {
		assert.Contains(t, welcomeMessage(tc.hour, false), tc.greeting, "hour %d", tc.hour)
	}
}

func TestStartWithLocationMentionsRepairers(t *testing.T) {
	m, _ := newTestManager(t)

	out, err := m.Start(context.Background(), StartInput{
		SessionID: "sess-1",
		Location:  &pkg.Location{Lat: 48.8566, Lng: 2.3522},
	})
	require.NoError(t, err)
	assert.Contains(t, out.Message, "réparateurs à proximité")
}

func TestProcessMessageFoldsMemory(t *testing.T) {
	m, stub := newTestManager(t)
	ctx := context.Background()

	out, err := m.Start(ctx, StartInput{SessionID: "sess-1"})
	require.NoError(t, err)

	resp, err := m.ProcessMessage(ctx, out.ConversationID, "Mon écran est cassé", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, stub.calls)
	assert.Equal(t, "Je comprends, parlons de cet écran cassé.", resp.Response)
	assert.Equal(t, "symptom_collection", resp.Metadata["diagnosis_stage"])

	// Second turn sees the accumulated memory.
	resp, err = m.ProcessMessage(ctx, out.ConversationID, "Et il y a des fissures", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"screen_broken"}, resp.DiagnosticData.SymptomsDetected)
}

func TestProcessMessagePersistsHistory(t *testing.T) {
	store := storage.NewMemoryStore()
	stub := &stubClassifier{resp: screenBrokenResponse()}
	m := NewManager(store, stub, services.NewRepairerDirectory(), WithClock(fixedClock(10)))
	ctx := context.Background()

	out, err := m.Start(ctx, StartInput{SessionID: "sess-1"})
	require.NoError(t, err)

	_, err = m.ProcessMessage(ctx, out.ConversationID, "Mon écran est cassé", nil)
	require.NoError(t, err)

	rec, err := store.Load(ctx, out.ConversationID)
	require.NoError(t, err)
	// Welcome, user turn, bot turn.
	require.Len(t, rec.Messages, 3)
	assert.Equal(t, pkg.SenderBot, rec.Messages[0].Sender)
	assert.Equal(t, pkg.SenderUser, rec.Messages[1].Sender)
	assert.Equal(t, "Mon écran est cassé", rec.Messages[1].Content)
	assert.Equal(t, pkg.SenderBot, rec.Messages[2].Sender)
}

func TestProcessMessageUnknownConversation(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.ProcessMessage(context.Background(), "nope", "bonjour", nil)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestUpdateLocationAddsRepairerHints(t *testing.T) {
	store := storage.NewMemoryStore()
	stub := &stubClassifier{resp: screenBrokenResponse()}
	m := NewManager(store, stub, services.NewRepairerDirectory(), WithClock(fixedClock(10)))
	ctx := context.Background()

	out, err := m.Start(ctx, StartInput{SessionID: "sess-1"})
	require.NoError(t, err)

	require.NoError(t, m.UpdateLocation(ctx, out.ConversationID, pkg.Location{Lat: 45.7640, Lng: 4.8357}))

	rec, err := store.Load(ctx, out.ConversationID)
	require.NoError(t, err)
	require.Len(t, rec.Memory.Context.NearbyRepairers, 5)
	assert.Equal(t, "TechCare Lyon", rec.Memory.Context.NearbyRepairers[0].Name)
}

func TestGenerateReportIsIdempotent(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	out, err := m.Start(ctx, StartInput{SessionID: "sess-1"})
	require.NoError(t, err)
	_, err = m.ProcessMessage(ctx, out.ConversationID, "Mon écran est cassé", nil)
	require.NoError(t, err)

	first, err := m.GenerateReport(ctx, out.ConversationID)
	require.NoError(t, err)
	second, err := m.GenerateReport(ctx, out.ConversationID)
	require.NoError(t, err)

	firstJSON, err := sonic.Marshal(first)
	require.NoError(t, err)
	secondJSON, err := sonic.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, firstJSON, secondJSON)

	assert.Equal(t, []string{"screen_broken"}, first.Symptoms)
}

func TestEndCompletesSession(t *testing.T) {
	store := storage.NewMemoryStore()
	stub := &stubClassifier{resp: screenBrokenResponse()}
	m := NewManager(store, stub, services.NewRepairerDirectory(), WithClock(fixedClock(10)))
	ctx := context.Background()

	out, err := m.Start(ctx, StartInput{SessionID: "sess-1"})
	require.NoError(t, err)

	require.NoError(t, m.End(ctx, out.ConversationID, 90))

	rec, err := store.Load(ctx, out.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, pkg.StatusCompleted, rec.Session.Status)
	require.NotNil(t, rec.Session.CompletedAt)
	require.NotNil(t, rec.Session.SatisfactionScore)
	assert.Equal(t, 90.0, *rec.Session.SatisfactionScore)
	assert.Equal(t, []float64{90}, rec.Memory.UserProfile.SatisfactionHistory)

	// Completed conversations reject further messages and a second end.
	_, err = m.ProcessMessage(ctx, out.ConversationID, "encore un souci", nil)
	assert.ErrorIs(t, err, ErrSessionCompleted)
	assert.ErrorIs(t, m.End(ctx, out.ConversationID, 50), ErrSessionCompleted)
}

func TestEndArchivesConversation(t *testing.T) {
	arch := archive.New(t.TempDir())
	m, _ := newTestManager(t, WithArchive(arch))
	ctx := context.Background()

	out, err := m.Start(ctx, StartInput{SessionID: "sess-1"})
	require.NoError(t, err)
	_, err = m.ProcessMessage(ctx, out.ConversationID, "Mon écran est cassé", nil)
	require.NoError(t, err)

	require.NoError(t, m.End(ctx, out.ConversationID, 85))

	entries, err := arch.Load(out.ConversationID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 85.0, entries[0].SatisfactionScore)
	assert.Equal(t, 3, entries[0].MessageCount)
	assert.Equal(t, []string{"screen_broken"}, entries[0].Report.Symptoms)
}

func TestEndReleasesLockEntry(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	out, err := m.Start(ctx, StartInput{SessionID: "sess-1"})
	require.NoError(t, err)

	_, err = m.ProcessMessage(ctx, out.ConversationID, "Mon écran est cassé", nil)
	require.NoError(t, err)

	m.mu.Lock()
	_, held := m.locks[out.ConversationID]
	m.mu.Unlock()
	require.True(t, held)

	require.NoError(t, m.End(ctx, out.ConversationID, 90))

	m.mu.Lock()
	_, held = m.locks[out.ConversationID]
	m.mu.Unlock()
	assert.False(t, held, "completed conversations do not keep a lock entry")
}

func TestUpdateLocationOnCompletedSession(t *testing.T) {
	store := storage.NewMemoryStore()
	stub := &stubClassifier{resp: screenBrokenResponse()}
	m := NewManager(store, stub, services.NewRepairerDirectory(), WithClock(fixedClock(10)))
	ctx := context.Background()

	out, err := m.Start(ctx, StartInput{SessionID: "sess-1"})
	require.NoError(t, err)
	require.NoError(t, m.End(ctx, out.ConversationID, 90))

	// Refreshing repairer hints is a plain state update, completion does not
	// block it.
	require.NoError(t, m.UpdateLocation(ctx, out.ConversationID, pkg.Location{Lat: 48.8566, Lng: 2.3522}))

	rec, err := store.Load(ctx, out.ConversationID)
	require.NoError(t, err)
	assert.Len(t, rec.Memory.Context.NearbyRepairers, 5)
	assert.Equal(t, pkg.StatusCompleted, rec.Session.Status)
}

func TestEndUnknownConversation(t *testing.T) {
	m, _ := newTestManager(t)
	assert.ErrorIs(t, m.End(context.Background(), "nope", 50), ErrSessionNotFound)
}

func TestConcurrentMessagesOnOneConversation(t *testing.T) {
	store := storage.NewMemoryStore()
	stub := &stubClassifier{resp: screenBrokenResponse()}
	m := NewManager(store, stub, services.NewRepairerDirectory(), WithClock(fixedClock(10)))
	ctx := context.Background()

	out, err := m.Start(ctx, StartInput{SessionID: "sess-1"})
	require.NoError(t, err)

	const turns = 10
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.ProcessMessage(ctx, out.ConversationID, "Mon écran est cassé", nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rec, err := store.Load(ctx, out.ConversationID)
	require.NoError(t, err)
	// Welcome plus one user and one bot message per turn; per-conversation
	// serialization means no turn is lost.
	assert.Len(t, rec.Messages, 1+2*turns)
	assert.Equal(t, turns, stub.calls)
}
