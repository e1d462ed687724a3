package engine

import (
	"time"

	"github.com/linkflow/engine/internal/history/types"
	"github.com/linkflow/engine/internal/worker/retry"
)

func toRetryPolicy(p *types.RetryPolicy) *retry.Policy {
	if p == nil {
		return retry.DefaultPolicy()
	}
	return &retry.Policy{
		InitialInterval:    p.InitialInterval,
		BackoffCoefficient: p.BackoffCoefficient,
		MaximumInterval:    p.MaxInterval,
		MaximumAttempts:    p.MaxAttempts,
		NonRetryableErrors: p.NonRetryableErrors,
	}
}

// ShouldRetryActivity decides whether a failed activity should be rescheduled
// for another attempt, consulting its own retry policy (falling back to the
// default policy when none was set at schedule time).
func (e *Engine) ShouldRetryActivity(ai *types.ActivityInfo, errorType, errorMessage string) bool {
	policy := toRetryPolicy(ai.RetryPolicy)
	return policy.ShouldRetry(ai.Attempt, errorType, errorMessage)
}

// NextActivityRetryDelay returns how long to wait before redispatching a
// failed activity for its next attempt.
func (e *Engine) NextActivityRetryDelay(ai *types.ActivityInfo) time.Duration {
	policy := toRetryPolicy(ai.RetryPolicy)
	return policy.NextRetryDelay(ai.Attempt)
}
