package lexicon

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"diagbot/pkg"
)

// Entry defines one intent: the keywords that trigger it and the canned
// guidance attached to it. Entries are loaded once and never mutated.
type Entry struct {
	ID                 string      `yaml:"id"`
	Keywords           []string    `yaml:"keywords"`
	OpeningResponse    string      `yaml:"opening_response"`
	FollowUpQuestions  []string    `yaml:"follow_up_questions"`
	EstimatedCostRange string      `yaml:"estimated_cost_range"`
	Urgency            pkg.Urgency `yaml:"urgency"`
}

// Lexicon is an ordered, immutable intent table. Declaration order is the
// tie-break order for the rule classifier.
type Lexicon struct {
	entries []Entry
}

// Entries returns the entries in declaration order.
func (l *Lexicon) Entries() []Entry {
	return l.entries
}

// Find returns the entry with the given intent id.
func (l *Lexicon) Find(id string) (Entry, bool) {
	for _, e := range l.entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// New builds a lexicon from explicit entries after validating them.
func New(entries []Entry) (*Lexicon, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("lexicon cannot be empty")
	}
	seen := make(map[string]bool, len(entries))
	for i, e := range entries {
		if e.ID == "" {
			return nil, fmt.Errorf("entry %d has empty id", i)
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("duplicate intent id: %s", e.ID)
		}
		seen[e.ID] = true
		if len(e.Keywords) == 0 {
			return nil, fmt.Errorf("intent %s has no keywords", e.ID)
		}
		if e.OpeningResponse == "" {
			return nil, fmt.Errorf("intent %s has no opening response", e.ID)
		}
	}
	return &Lexicon{entries: entries}, nil
}

// LoadFile loads a lexicon from a YAML file.
func LoadFile(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading lexicon file: %w", err)
	}

	var doc struct {
		Intents []Entry `yaml:"intents"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("error parsing lexicon YAML: %w", err)
	}

	return New(doc.Intents)
}

// Default returns the built-in French device-repair intent table.
func Default() *Lexicon {
	lex, err := New(defaultEntries())
	if err != nil {
		// The built-in table is validated by tests, this cannot happen at runtime.
		panic(err)
	}
	return lex
}

func defaultEntries() []Entry {
	return []Entry{
		{
			ID:       "screen_broken",
			Keywords: []string{"écran", "cassé", "fissure", "brisé", "vitre", "noir"},
			OpeningResponse: "Je comprends, un écran endommagé c'est vraiment embêtant. " +
				"Rassurez-vous, c'est l'une des pannes les plus courantes et elle se répare très bien.",
			FollowUpQuestions: []string{
				"L'affichage fonctionne-t-il encore malgré la casse ?",
				"Le tactile répond-il normalement ?",
				"Voyez-vous des taches ou des lignes colorées sur l'écran ?",
			},
			EstimatedCostRange: "80-200€",
			Urgency:            pkg.UrgencyMedium,
		},
		{
			ID:       "battery_issue",
			Keywords: []string{"batterie", "charge", "chargeur", "autonomie", "décharge", "alimentation"},
			OpeningResponse: "Les soucis de batterie sont frustrants, je vais vous aider à y voir plus clair. " +
				"Quelques questions pour cerner le problème.",
			FollowUpQuestions: []string{
				"Depuis combien de temps l'autonomie a-t-elle baissé ?",
				"L'appareil charge-t-il quand il est branché ?",
				"La batterie semble-t-elle gonflée ou l'appareil déformé ?",
			},
			EstimatedCostRange: "50-120€",
			Urgency:            pkg.UrgencyMedium,
		},
		{
			ID:       "water_damage",
			Keywords: []string{"eau", "mouillé", "liquide", "tombé", "humidité"},
			OpeningResponse: "Un contact avec un liquide, il faut agir vite. " +
				"Éteignez l'appareil immédiatement et ne le rechargez surtout pas.",
			FollowUpQuestions: []string{
				"Quand le contact avec le liquide a-t-il eu lieu ?",
				"L'appareil était-il allumé à ce moment-là ?",
				"Fonctionne-t-il encore, même partiellement ?",
			},
			EstimatedCostRange: "100-350€",
			Urgency:            pkg.UrgencyHigh,
		},
		{
			ID:       "wont_turn_on",
			Keywords: []string{"allume", "démarre", "mort", "bouton", "bloqué"},
			OpeningResponse: "Un appareil qui ne démarre plus, c'est inquiétant, mais la cause est souvent bénigne. " +
				"Vérifions ensemble les pistes les plus probables.",
			FollowUpQuestions: []string{
				"Y a-t-il un voyant ou un signe de vie quand vous branchez le chargeur ?",
				"Le problème est-il apparu après une chute ou une mise à jour ?",
				"Avez-vous essayé un redémarrage forcé ?",
			},
			EstimatedCostRange: "60-250€",
			Urgency:            pkg.UrgencyHigh,
		},
		{
			ID:       "slow_performance",
			Keywords: []string{"lent", "rame", "lenteur", "plante", "freeze"},
			OpeningResponse: "Les ralentissements ont souvent une cause logicielle, c'est une bonne nouvelle. " +
				"Voyons d'où cela peut venir.",
			FollowUpQuestions: []string{
				"Les ralentissements sont-ils permanents ou seulement sur certaines applications ?",
				"Reste-t-il de l'espace de stockage disponible ?",
				"Le problème est-il apparu après une installation récente ?",
			},
			EstimatedCostRange: "40-90€",
			Urgency:            pkg.UrgencyLow,
		},
		{
			ID:       "overheating",
			Keywords: []string{"chauffe", "surchauffe", "chaud", "ventilateur", "brûlant"},
			OpeningResponse: "Une surchauffe ne doit pas être ignorée, elle peut abîmer les composants. " +
				"Quelques précisions m'aideront à évaluer la situation.",
			FollowUpQuestions: []string{
				"L'appareil chauffe-t-il même au repos ?",
				"Entendez-vous le ventilateur tourner en permanence ?",
				"L'appareil s'éteint-il tout seul quand il chauffe ?",
			},
			EstimatedCostRange: "50-150€",
			Urgency:            pkg.UrgencyMedium,
		},
	}
}
