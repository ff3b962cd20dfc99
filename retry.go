package dispatch

import (
	"github.com/eapache/go-resiliency/retrier"
	"go.uber.org/atomic"

	"context"
	"time"
)

// RetryState tracks the attempts of one logical call. It is created at
// dispatch time, advanced only by the Policy, and discarded when the call
// resolves.
type RetryState struct {
	attempts atomic.Int64
	budget   int
}

// Attempts returns the number of attempts made so far
func (s *RetryState) Attempts() int64 {
	return s.attempts.Load()
}

// Remaining returns the attempts left in the budget, counting the first
// attempt plus the configured retries.
func (s *RetryState) Remaining() int64 {
	r := int64(s.budget) + 1 - s.attempts.Load()
	if r < 0 {
		return 0
	}
	return r
}

// Policy decides, after a failed attempt, whether to re-attempt and how
// long to wait. The schedule is constant per RetryDelay unless exponential
// backoff was requested.
type Policy struct {
	budget      int
	delay       time.Duration
	exponential bool
}

func newPolicy(cfg *RequestConfig) *Policy {
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = DefaultRetryDelay
	}
	return &Policy{
		budget:      cfg.Retries,
		delay:       delay,
		exponential: cfg.ExponentialBackoff,
	}
}

func (p *Policy) retrier() *retrier.Retrier {
	if p.exponential {
		return retrier.New(retrier.ExponentialBackoff(p.budget, p.delay), outcomeClassifier{})
	}
	return retrier.New(retrier.ConstantBackoff(p.budget, p.delay), outcomeClassifier{})
}

// outcomeClassifier maps failure Descriptors onto retrier actions:
// network, status, and timeout failures are worth another attempt; config,
// abort, and decode failures are surfaced immediately.
type outcomeClassifier struct{}

// Classify satisfies retrier.Classifier
func (outcomeClassifier) Classify(err error) retrier.Action {
	if err == nil {
		return retrier.Succeed
	}
	if d, ok := asDescriptor(err); ok && d.Retryable() {
		return retrier.Retry
	}
	return retrier.Fail
}

// Run executes work under the policy, at most budget+1 times, strictly
// sequentially. A context signaled during an inter-attempt delay suppresses
// all further attempts and surfaces an abort.
func (p *Policy) Run(ctx context.Context, state *RetryState, work func(context.Context) *Outcome) *Outcome {
	var final *Outcome

	// The retrier runs the work at least once, so final is always set; its
	// returned error is just the last failure and carries nothing new.
	_ = p.retrier().RunCtx(ctx, func(c context.Context) error {
		state.attempts.Inc()
		final = work(c)
		if final.Err != nil {
			return final.Err
		}
		return nil
	})

	if ctx.Err() != nil && final.Err != nil && final.Err.Kind != KindAbort {
		// Cancelled between attempts; the last failure is moot.
		return failure(abortErr(ctx.Err()))
	}
	return final
}
