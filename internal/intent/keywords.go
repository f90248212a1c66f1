package intent

import (
	"strings"

	"github.com/AutonomosCdM/smartSalud-V2/pkg/api"
)

// Keyword sets for the deterministic tier, Spanish first since that is the
// primary patient language, plus common English equivalents. The numeric
// shorthands "1"/"2" mirror the reply buttons in the reminder message.
var (
	confirmWords   = []string{"sí", "si", "yes", "ok", "confirmo", "confirmar", "perfecto", "va", "dale", "1"}
	confirmPhrases = []string{"está bien", "esta bien", "de acuerdo"}

	cancelWords   = []string{"no", "nop", "cancelar", "cancel", "imposible", "2"}
	cancelPhrases = []string{"no puedo", "no voy"}

	reschedulePhrases = []string{"cambiar", "reagendar", "reschedule", "otro día", "otro dia", "otra hora", "mover", "posponer", "adelantar"}
)

// MatchKeywords is the terminal classifier tier. It matches normalized text
// against the language keyword sets and never fails: unmatched input yields
// unknown with low confidence.
func MatchKeywords(text string) api.Classification {
	normalized := strings.ToLower(strings.TrimSpace(text))

	if matchAny(normalized, confirmWords, confirmPhrases) {
		return keywordResult(api.IntentConfirm, KeywordConfidence)
	}
	if matchAny(normalized, cancelWords, cancelPhrases) {
		return keywordResult(api.IntentCancel, KeywordConfidence)
	}
	if containsAny(normalized, reschedulePhrases) {
		return keywordResult(api.IntentReschedule, KeywordConfidence)
	}

	return keywordResult(api.IntentUnknown, UnknownConfidence)
}

func keywordResult(label api.Intent, confidence float64) api.Classification {
	return api.Classification{Label: label, Confidence: confidence, Tier: api.TierKeyword}
}

// matchAny matches single words against whole tokens (with surrounding
// punctuation stripped) and phrases by containment.
func matchAny(normalized string, words, phrases []string) bool {
	for _, token := range strings.Fields(normalized) {
		token = strings.Trim(token, ".,;:!?¡¿\"'()")
		for _, w := range words {
			if token == w {
				return true
			}
		}
	}
	return containsAny(normalized, phrases)
}

func containsAny(normalized string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(normalized, p) {
			return true
		}
	}
	return false
}
