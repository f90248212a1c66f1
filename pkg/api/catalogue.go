package api

import (
	"fmt"
	"time"
)

// StepDefinition is the static per-step policy loaded from the catalogue.
//
// MaxRetries counts retries beyond the first attempt, so a step is attempted
// at most MaxRetries+1 times. Wait steps have MaxRetries 0 and a long
// Timeout; their completion only ever comes from an external event.
type StepDefinition struct {
	Step               Step
	Wait               bool
	MaxRetries         int
	RetryDelay         time.Duration
	Timeout            time.Duration
	ExponentialBackoff bool
}

// Catalogue is the ordered, immutable definition of the confirmation process.
type Catalogue []StepDefinition

// DefaultCatalogue returns the standard eight-step confirmation catalogue.
//
// Active steps have short timeouts and exponential backoff; wait steps are
// single-attempt with multi-hour timeouts enforced only through externally
// injected TIMEOUT events (see Engine.ExpireOverdue).
func DefaultCatalogue() Catalogue {
	return Catalogue{
		{Step: StepSendInitialReminder, MaxRetries: 3, RetryDelay: 5 * time.Second, Timeout: 30 * time.Second, ExponentialBackoff: true},
		{Step: StepWaitInitialResponse, Wait: true, Timeout: 24 * time.Hour},
		{Step: StepProcessCancellation, MaxRetries: 3, RetryDelay: 2 * time.Second, Timeout: 10 * time.Second, ExponentialBackoff: true},
		{Step: StepSendAlternatives, MaxRetries: 3, RetryDelay: 5 * time.Second, Timeout: 30 * time.Second, ExponentialBackoff: true},
		{Step: StepWaitAlternativeResponse, Wait: true, Timeout: 12 * time.Hour},
		{Step: StepTriggerVoiceCall, MaxRetries: 2, RetryDelay: 10 * time.Second, Timeout: time.Minute, ExponentialBackoff: true},
		{Step: StepWaitVoiceOutcome, Wait: true, Timeout: 15 * time.Minute},
		{Step: StepEscalateToHuman, MaxRetries: 3, RetryDelay: 5 * time.Second, Timeout: 30 * time.Second, ExponentialBackoff: true},
	}
}

// Find returns the definition and index for the named step.
func (c Catalogue) Find(step Step) (StepDefinition, int, bool) {
	for i, def := range c {
		if def.Step == step {
			return def, i, true
		}
	}
	return StepDefinition{}, -1, false
}

// Validate checks that the catalogue is non-empty, has unique step names,
// and that every step carries a positive timeout.
func (c Catalogue) Validate() error {
	if len(c) == 0 {
		return fmt.Errorf("catalogue is empty")
	}
	seen := make(map[Step]bool, len(c))
	for _, def := range c {
		if def.Step == "" {
			return fmt.Errorf("catalogue contains an unnamed step")
		}
		if seen[def.Step] {
			return fmt.Errorf("duplicate step in catalogue: %s", def.Step)
		}
		seen[def.Step] = true
		if def.Timeout <= 0 {
			return fmt.Errorf("step %s has no timeout", def.Step)
		}
		if def.MaxRetries < 0 {
			return fmt.Errorf("step %s has negative max retries", def.Step)
		}
		if def.Wait && def.MaxRetries != 0 {
			return fmt.Errorf("wait step %s must not configure retries", def.Step)
		}
	}
	return nil
}
