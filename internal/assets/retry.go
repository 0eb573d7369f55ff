package assets

import (
	"context"
	"time"

	"github.com/lestrrat-go/backoff/v2"

	"github.com/temirov/trustx-migrate/internal/platform"
)

const (
	defaultMaxAttemptsConstant     = 3
	defaultInitialIntervalConstant = 500 * time.Millisecond
	defaultMaxIntervalConstant     = 5 * time.Second
	retryJitterFactorConstant      = 0.1
)

// RetryPolicy bounds how often a transient failure is retried.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy returns three attempts with exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     defaultMaxAttemptsConstant,
		InitialInterval: defaultInitialIntervalConstant,
		MaxInterval:     defaultMaxIntervalConstant,
	}
}

func (policy RetryPolicy) normalized() RetryPolicy {
	normalizedPolicy := policy
	if normalizedPolicy.MaxAttempts <= 0 {
		normalizedPolicy.MaxAttempts = defaultMaxAttemptsConstant
	}
	if normalizedPolicy.InitialInterval <= 0 {
		normalizedPolicy.InitialInterval = defaultInitialIntervalConstant
	}
	if normalizedPolicy.MaxInterval < normalizedPolicy.InitialInterval {
		normalizedPolicy.MaxInterval = normalizedPolicy.InitialInterval
	}
	return normalizedPolicy
}

// Do calls operation until it succeeds, fails with a non-retryable error, or exhausts the attempts.
// It returns the number of attempts made.
func (policy RetryPolicy) Do(retryContext context.Context, operation func(context.Context) error) (int, error) {
	normalizedPolicy := policy.normalized()
	controllerContext, cancel := context.WithCancel(retryContext)
	defer cancel()

	controller := backoff.Exponential(
		backoff.WithMinInterval(normalizedPolicy.InitialInterval),
		backoff.WithMaxInterval(normalizedPolicy.MaxInterval),
		backoff.WithJitterFactor(retryJitterFactorConstant),
	).Start(controllerContext)

	attempts := 0
	var lastError error
	for backoff.Continue(controller) {
		attempts++
		lastError = operation(retryContext)
		if lastError == nil || !platform.IsRetryable(lastError) || attempts >= normalizedPolicy.MaxAttempts {
			return attempts, lastError
		}
	}
	if lastError == nil {
		lastError = retryContext.Err()
	}
	return attempts, lastError
}

// StepRetrier applies one RetryPolicy to each step of a multi-step creation separately and counts
// every attempt. A step that has succeeded is never repeated by a later step's retries.
type StepRetrier struct {
	policy   RetryPolicy
	attempts int
}

// NewStepRetrier constructs a StepRetrier for a single asset migration.
func NewStepRetrier(policy RetryPolicy) *StepRetrier {
	return &StepRetrier{policy: policy.normalized()}
}

// Do runs one step under the retry policy.
func (retrier *StepRetrier) Do(stepContext context.Context, step func(context.Context) error) error {
	attempts, stepError := retrier.policy.Do(stepContext, step)
	retrier.attempts += attempts
	return stepError
}

// Attempts reports the total attempts made across all steps.
func (retrier *StepRetrier) Attempts() int {
	return retrier.attempts
}
