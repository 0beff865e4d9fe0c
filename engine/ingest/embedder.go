package ingest

import (
	"context"

	"github.com/docvault/docvault/pkg/fn"
	"github.com/docvault/docvault/pkg/resilience"
)

// limitedEmbedder paces and retries calls to an inner Embedder. Embedding
// APIs rate-limit by requests and tokens; pacing here keeps batch runs
// from tripping 429s in the first place.
type limitedEmbedder struct {
	inner Embedder
	lim   *resilience.Limiter
	retry fn.RetryOpts
}

// NewLimitedEmbedder wraps an Embedder with a token-bucket limiter and a
// retry policy.
func NewLimitedEmbedder(inner Embedder, lim *resilience.Limiter, retry fn.RetryOpts) Embedder {
	if retry.MaxAttempts <= 0 {
		retry = fn.DefaultRetry
	}
	return &limitedEmbedder{inner: inner, lim: lim, retry: retry}
}

func (l *limitedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := l.lim.Wait(ctx); err != nil {
		return nil, err
	}
	result := fn.Retry(ctx, l.retry, func(ctx context.Context) fn.Result[[]float32] {
		return fn.FromPair(l.inner.Embed(ctx, text))
	})
	return result.Unwrap()
}

func (l *limitedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := l.lim.Wait(ctx); err != nil {
		return nil, err
	}
	result := fn.Retry(ctx, l.retry, func(ctx context.Context) fn.Result[[][]float32] {
		return fn.FromPair(l.inner.EmbedBatch(ctx, texts))
	})
	return result.Unwrap()
}

func (l *limitedEmbedder) Dims() int { return l.inner.Dims() }
