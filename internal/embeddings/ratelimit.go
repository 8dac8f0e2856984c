package embeddings

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited throttles calls to a wrapped provider. Each EmbedDocuments
// or EmbedQuery call consumes one token.
type RateLimited struct {
	Provider
	limiter *rate.Limiter
}

// NewRateLimited wraps p with a token bucket of rps tokens per second.
func NewRateLimited(p Provider, rps float64, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{
		Provider: p,
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// EmbedDocuments waits for a token, then delegates.
func (r *RateLimited) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.Provider.EmbedDocuments(ctx, texts)
}

// EmbedQuery waits for a token, then delegates.
func (r *RateLimited) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.Provider.EmbedQuery(ctx, text)
}
