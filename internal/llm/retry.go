package llm

import (
	"context"
	"time"

	"deepvision/internal/logging"
)

// shrinkNotice tells the model the retried prompt lost some context.
const shrinkNotice = "\n\n[注意：由于内容过长，部分上下文已被截断，请基于已有信息进行回答]"

// Attempt describes one completion attempt made by CompleteWithShrinkRetry,
// for metrics collection.
type Attempt struct {
	PromptLength int
	Elapsed      time.Duration
	Err          error
	Retry        bool
}

// ShrinkRetryOptions controls the oversized-prompt timeout recovery.
// When a completion times out and the prompt is longer than Threshold
// runes, the call is retried once with the prompt truncated to Ratio of
// its original length.
type ShrinkRetryOptions struct {
	Threshold int     // minimum prompt rune count to attempt a shrink retry
	Ratio     float64 // fraction of the prompt to keep

	// AttemptTimeout bounds each completion attempt on its own, so the
	// shrunk retry starts with a fresh deadline rather than whatever is
	// left after the first attempt timed out. Zero means the caller's
	// context alone bounds both attempts.
	AttemptTimeout time.Duration

	// Observe, when set, is called after every attempt.
	Observe func(Attempt)
}

// DefaultShrinkRetryOptions matches the interview pipeline defaults.
func DefaultShrinkRetryOptions() ShrinkRetryOptions {
	return ShrinkRetryOptions{
		Threshold:      5000,
		Ratio:          0.7,
		AttemptTimeout: 90 * time.Second,
	}
}

// CompleteWithShrinkRetry calls client.Complete and, on timeout with an
// oversized prompt, retries once with a truncated prompt plus a note that
// context was dropped. Any non-timeout error is returned as-is.
func CompleteWithShrinkRetry(ctx context.Context, client Client, prompt string, maxTokens int, opts ShrinkRetryOptions) (string, error) {
	// Lengths are rune based, prompts often carry CJK text
	runes := []rune(prompt)

	start := time.Now()
	result, err := completeOnce(ctx, client, prompt, maxTokens, opts.AttemptTimeout)
	if opts.Observe != nil {
		opts.Observe(Attempt{PromptLength: len(runes), Elapsed: time.Since(start), Err: err})
	}
	if err == nil {
		return result, nil
	}

	if !IsTimeout(err) || len(runes) <= opts.Threshold || opts.Ratio <= 0 || opts.Ratio >= 1 {
		return "", err
	}

	shrunk := string(runes[:int(float64(len(runes))*opts.Ratio)]) + shrinkNotice
	logging.API("timeout with %d char prompt, retrying with %d chars", len(runes), len([]rune(shrunk)))

	start = time.Now()
	result, err = completeOnce(ctx, client, shrunk, maxTokens, opts.AttemptTimeout)
	if opts.Observe != nil {
		opts.Observe(Attempt{PromptLength: len([]rune(shrunk)), Elapsed: time.Since(start), Err: err, Retry: true})
	}
	return result, err
}

func completeOnce(ctx context.Context, client Client, prompt string, maxTokens int, timeout time.Duration) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return client.Complete(ctx, prompt, maxTokens)
}
