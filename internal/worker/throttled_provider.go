package worker

import (
	"context"
	"strings"

	"github.com/harrison/swarm/internal/throttle"
)

// ThrottledProvider wraps a Provider with the shared front door of §4.1: every
// Chat call acquires the throttle first, then feeds back rate-limit headers
// and backoff/recovery signals from the result. This is the single place
// orchestrator-internal Provider.Chat calls actually pass through the
// throttle — Spawner-based worker dispatch has its own budget shaping in
// budget.go and is not subject to this front door.
type ThrottledProvider struct {
	inner Provider
	t     *throttle.Throttle
}

// NewThrottledProvider wraps inner with t.
func NewThrottledProvider(inner Provider, t *throttle.Throttle) *ThrottledProvider {
	return &ThrottledProvider{inner: inner, t: t}
}

func (p *ThrottledProvider) Chat(ctx context.Context, messages []ChatMessage, opts ChatOptions) (*ChatResponse, error) {
	if err := p.t.Acquire(ctx); err != nil {
		return nil, err
	}

	resp, err := p.inner.Chat(ctx, messages, opts)
	if err != nil {
		if isRateOrSpendLimited(err) {
			p.t.Backoff()
		}
		return resp, err
	}

	p.t.Recover()
	if resp != nil && resp.RateLimitInfo != nil {
		p.t.FeedRateLimitInfo(throttle.RateLimitInfo{
			RemainingRequests: resp.RateLimitInfo.RemainingRequests,
			RemainingTokens:   resp.RateLimitInfo.RemainingTokens,
			ResetSeconds:      resp.RateLimitInfo.ResetSeconds,
		})
	}
	return resp, nil
}

func isRateOrSpendLimited(err error) bool {
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "429") || strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "402") || strings.Contains(lower, "spend limit") ||
		strings.Contains(lower, "quota")
}
