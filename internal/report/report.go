package report

import (
	"fmt"

	"diagbot/internal/memory"
	"diagbot/pkg"
)

// estimatedTimeline is the platform's standing repair-timeline commitment.
const estimatedTimeline = "2 à 5 jours ouvrés selon le réparateur"

// Generate projects the conversation memory into a diagnostic report. It is
// pure and idempotent: it never mutates the memory and identical memories
// produce identical reports.
func Generate(mem memory.Memory) pkg.DiagnosticReport {
	return pkg.DiagnosticReport{
		Summary:  summarize(mem),
		Symptoms: append([]string{}, mem.Context.CollectedSymptoms...),
		Recommendations: []string{
			"Consulter un réparateur agréé de la plateforme",
			"Demander un devis écrit avant toute réparation",
			"Sauvegarder vos données avant de confier l'appareil",
		},
		EstimatedTimeline: estimatedTimeline,
		ConfidenceLevel:   mem.Emotional.ConfidenceLevel,
	}
}

func summarize(mem memory.Memory) string {
	count := len(mem.Context.CollectedSymptoms)
	switch count {
	case 0:
		return "Aucun symptôme identifié pour le moment. Poursuivez la conversation pour affiner le diagnostic."
	case 1:
		return fmt.Sprintf("1 symptôme identifié au stade « %s ».", mem.Context.DiagnosisStage)
	default:
		return fmt.Sprintf("%d symptômes identifiés au stade « %s ».", count, mem.Context.DiagnosisStage)
	}
}
