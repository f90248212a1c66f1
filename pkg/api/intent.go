package api

// Intent is the interpreted meaning of a free-text reply.
type Intent string

const (
	IntentConfirm    Intent = "confirm"
	IntentCancel     Intent = "cancel"
	IntentReschedule Intent = "reschedule"
	IntentUnknown    Intent = "unknown"
)

// ValidIntent reports whether s is one of the four accepted labels.
// Classifier tiers whose output fails this check are skipped, not retried.
func ValidIntent(s string) bool {
	switch Intent(s) {
	case IntentConfirm, IntentCancel, IntentReschedule, IntentUnknown:
		return true
	}
	return false
}

// Classifier tier numbers, in priority order.
const (
	TierPrimary   = 1
	TierSecondary = 2
	TierKeyword   = 3
)

// Classification is the result of one classifier invocation.
type Classification struct {
	Label      Intent  `json:"label"`
	Confidence float64 `json:"confidence"`
	Tier       int     `json:"tier"`
}
