// Package intent turns free-text replies into one of the four intents
// {confirm, cancel, reschedule, unknown} using a three-tier fallback chain:
// a primary remote model, a secondary hosted model, and a deterministic
// keyword matcher that never fails.
package intent

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/AutonomosCdM/smartSalud-V2/pkg/api"
)

// Fixed per-tier confidence constants.
const (
	PrimaryConfidence   = 0.9
	SecondaryConfidence = 0.7
	KeywordConfidence   = 0.6
	UnknownConfidence   = 0.3
)

// TierConfig configures one remote model tier. A tier is considered
// configured when Client is set, or when BaseURL and Model are both present.
type TierConfig struct {
	BaseURL string
	APIKey  string
	Model   string

	// Client overrides the HTTP-backed client, mainly for tests.
	Client ModelClient
}

func (tc TierConfig) configured() bool {
	return tc.Client != nil || (tc.BaseURL != "" && tc.Model != "")
}

// Config is the active classifier configuration. The classifier is stateless
// across calls: every Detect invocation resolves tier availability and
// clients fresh from this value, never from shared singletons.
type Config struct {
	Primary   TierConfig
	Secondary TierConfig

	// HTTPClient is shared by the remote tiers; http.DefaultClient if nil.
	HTTPClient *http.Client

	// Logger records tier fallbacks; slog.Default() if nil.
	Logger *slog.Logger
}

func (cfg Config) logger() *slog.Logger {
	if cfg.Logger != nil {
		return cfg.Logger
	}
	return slog.Default()
}

func (cfg Config) resolve(tc TierConfig) ModelClient {
	if tc.Client != nil {
		return tc.Client
	}
	return NewHTTPModelClient(tc.BaseURL, tc.APIKey, tc.Model, cfg.HTTPClient)
}

// ValidationError reports that a tier returned a label outside the fixed
// intent set. It triggers fallback to the next tier, never a retry.
type ValidationError struct {
	Tier  int
	Label string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("intent tier %d returned invalid label %q", e.Tier, e.Label)
}

// Detect classifies text. It tries the configured tiers strictly in priority
// order and always produces a result: the keyword tier is the terminal
// fallback and never raises.
func Detect(ctx context.Context, cfg Config, text string) api.Classification {
	log := cfg.logger()

	if cfg.Primary.configured() {
		res, err := runRemoteTier(ctx, cfg.resolve(cfg.Primary), api.TierPrimary, PrimaryConfidence, text)
		if err == nil {
			return res
		}
		log.Warn("intent tier failed, falling back",
			slog.Int("tier", api.TierPrimary), slog.Any("error", err))
	}

	if cfg.Secondary.configured() {
		res, err := runRemoteTier(ctx, cfg.resolve(cfg.Secondary), api.TierSecondary, SecondaryConfidence, text)
		if err == nil {
			return res
		}
		log.Warn("intent tier failed, falling back",
			slog.Int("tier", api.TierSecondary), slog.Any("error", err))
	}

	return MatchKeywords(text)
}

// runRemoteTier calls one remote model tier and validates its output against
// the fixed label set. Validation failures are reported as errors so the
// caller falls through; they are composed as values, not panics.
func runRemoteTier(ctx context.Context, client ModelClient, tier int, confidence float64, text string) (api.Classification, error) {
	label, err := client.Classify(ctx, text)
	if err != nil {
		return api.Classification{}, err
	}
	if !api.ValidIntent(label) {
		return api.Classification{}, &ValidationError{Tier: tier, Label: label}
	}
	return api.Classification{
		Label:      api.Intent(label),
		Confidence: confidence,
		Tier:       tier,
	}, nil
}
