package engine

import (
	"regexp"
	"strings"
)

var (
	// Above grade 1 the localised name is itself a template, e.g. $TacticalSuit_Class3_Name;
	reSuitTemplate = regexp.MustCompile(`(?i)^\$([^_]+)_Class([0-9]+)_Name;$`)
	reSuitSymbol   = regexp.MustCompile(`(?i)^([^_]+)_class([0-9]+)$`)
)

// suitLocalised maps a game language to the localised suit names by symbol.
var suitLocalised = map[string]map[string]string{
	"english": {
		"flightsuit":      "Flight Suit",
		"explorationsuit": "Artemis Suit",
		"tacticalsuit":    "Dominator Suit",
		"utilitysuit":     "Maverick Suit",
	},
	"german": {
		"flightsuit":      "Fluganzug",
		"explorationsuit": "Artemis-Anzug",
		"tacticalsuit":    "Dominator-Anzug",
		"utilitysuit":     "Maverick-Anzug",
	},
	"french": {
		"flightsuit":      "Combinaison de vol",
		"explorationsuit": "Combinaison Artemis",
		"tacticalsuit":    "Combinaison Dominator",
		"utilitysuit":     "Combinaison Maverick",
	},
	"spanish": {
		"flightsuit":      "Traje de vuelo",
		"explorationsuit": "Traje Artemis",
		"tacticalsuit":    "Traje Dominator",
		"utilitysuit":     "Traje Maverick",
	},
	"portuguese": {
		"flightsuit":      "Traje de voo",
		"explorationsuit": "Traje Artemis",
		"tacticalsuit":    "Traje Dominator",
		"utilitysuit":     "Traje Maverick",
	},
	"russian": {
		"flightsuit":      "Летный комбинезон",
		"explorationsuit": "Комбинезон Artemis",
		"tacticalsuit":    "Комбинезон Dominator",
		"utilitysuit":     "Комбинезон Maverick",
	},
}

// suitShortNames drops the generic "suit" part of a localised name.
var suitShortNames = map[string]string{
	"Flight Suit":    "Flight",
	"Artemis Suit":   "Artemis",
	"Dominator Suit": "Dominator",
	"Maverick Suit":  "Maverick",

	"Fluganzug":       "Flug",
	"Artemis-Anzug":   "Artemis",
	"Dominator-Anzug": "Dominator",
	"Maverick-Anzug":  "Maverick",

	"Combinaison de vol":    "Vol",
	"Combinaison Artemis":   "Artemis",
	"Combinaison Dominator": "Dominator",
	"Combinaison Maverick":  "Maverick",

	"Traje de vuelo":  "Vuelo",
	"Traje de voo":    "Voo",
	"Traje Artemis":   "Artemis",
	"Traje Dominator": "Dominator",
	"Traje Maverick":  "Maverick",

	"Летный комбинезон":    "Летный",
	"Комбинезон Artemis":   "Artemis",
	"Комбинезон Dominator": "Dominator",
	"Комбинезон Maverick":  "Maverick",
}

// languageKey reduces a Fileheader language such as `English\UK` to "english".
func languageKey(language string) string {
	if i := strings.IndexAny(language, `\/`); i >= 0 {
		language = language[:i]
	}
	return strings.ToLower(strings.TrimSpace(language))
}

// SuitShortName resolves a suit name in any of its journal forms to a short
// display name: "$TacticalSuit_Class3_Name;", "tacticalsuit_class3" and
// "Dominator Suit" all give "Dominator" for an English game.
func SuitShortName(name, language string) string {
	if m := reSuitTemplate.FindStringSubmatch(name); m != nil {
		name = m[1]
	} else if m := reSuitSymbol.FindStringSubmatch(name); m != nil {
		name = m[1]
	}

	if table, ok := suitLocalised[languageKey(language)]; ok {
		if loc, ok := table[strings.ToLower(name)]; ok {
			name = loc
		}
	}

	if short, ok := suitShortNames[name]; ok {
		return short
	}
	return name
}
