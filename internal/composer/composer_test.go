package composer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"diagbot/internal/memory"
	"diagbot/pkg"
)

func TestComposeTruncatesSuggestions(t *testing.T) {
	resp := pkg.ClassifiedResponse{
		Content:     "réponse",
		Suggestions: []string{"a", "b", "c", "d", "e", "f"},
	}

	out := Compose(resp, memory.New())

	assert.Equal(t, []string{"a", "b", "c", "d"}, out.Suggestions)
	// The input is untouched.
	assert.Len(t, resp.Suggestions, 6)
}

func TestComposeDefaultsComplexity(t *testing.T) {
	out := Compose(pkg.ClassifiedResponse{Content: "ok"}, memory.New())
	assert.Equal(t, "medium", out.Metadata["complexity"])

	out = Compose(pkg.ClassifiedResponse{
		Content:  "ok",
		Metadata: map[string]any{"complexity": "simple", "ai_model": "rules"},
	}, memory.New())
	assert.Equal(t, "simple", out.Metadata["complexity"])
	assert.Equal(t, "rules", out.Metadata["ai_model"])
}

func TestComposeCarriesMemoryMetadata(t *testing.T) {
	mem := memory.New()
	mem.Emotional.FrustrationLevel = 7
	mem.Context.DiagnosisStage = "symptom_collection"

	out := Compose(pkg.ClassifiedResponse{Content: "ok"}, mem)

	assert.Equal(t, 7, out.Metadata["frustration_level"])
	assert.Equal(t, "symptom_collection", out.Metadata["diagnosis_stage"])
}

func TestComposeInjectsRepairerAction(t *testing.T) {
	mem := memory.New()
	mem.Context.NearbyRepairers = []pkg.RepairerRef{{ID: "rep001", Name: "TechFix Paris"}}

	out := Compose(pkg.ClassifiedResponse{Content: "ok"}, mem)

	if assert.Len(t, out.Actions, 1) {
		assert.Equal(t, "find_repairer", out.Actions[0].Type)
		assert.Equal(t, "Voir les réparateurs à proximité", out.Actions[0].Label)
	}
}

func TestComposeDoesNotDuplicateRepairerAction(t *testing.T) {
	mem := memory.New()
	mem.Context.NearbyRepairers = []pkg.RepairerRef{{ID: "rep001"}}

	resp := pkg.ClassifiedResponse{
		Content: "ok",
		Actions: []pkg.SuggestedAction{{Type: "find_repairer", Label: "déjà là"}},
	}
	out := Compose(resp, mem)

	assert.Len(t, out.Actions, 1)
}

func TestComposeNormalizesNilSlices(t *testing.T) {
	out := Compose(pkg.ClassifiedResponse{Content: "ok"}, memory.New())
	assert.NotNil(t, out.Suggestions)
	assert.NotNil(t, out.Actions)
}
