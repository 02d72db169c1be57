package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Mode selects the encoding variant. Document and query vectors are not
// interchangeable.
type Mode string

const (
	// ModeDocument encodes stored records.
	ModeDocument Mode = "document"
	// ModeQuery encodes search queries.
	ModeQuery Mode = "query"
)

// defaultChainRetries is the per-provider attempt count before moving to
// the next provider in the chain.
const defaultChainRetries = 3

// defaultChainBackoff is the base delay between attempts, doubled each
// retry.
const defaultChainBackoff = 200 * time.Millisecond

// Attempt records the outcome of trying one provider, so a caller can see
// exactly which providers were exhausted before the result (or the final
// failure) was produced.
type Attempt struct {
	ProviderID string
	Tries      int
	Err        error
}

// Result is a produced vector tagged with the provider that computed it.
type Result struct {
	Vector     []float32
	ProviderID string
	Attempts   []Attempt
}

// ChainConfig configures retry behavior for the provider chain.
type ChainConfig struct {
	// MaxRetries is the attempt count per provider. Defaults to 3.
	MaxRetries int
	// BaseBackoff is the initial delay between attempts, doubled each
	// retry. Defaults to 200ms.
	BaseBackoff time.Duration
}

// Chain tries providers in order with bounded retry and backoff, moving to
// the next provider only when the previous one is exhausted. An optional
// cache short-circuits recomputation per (text, provider, mode).
type Chain struct {
	providers []Provider
	cache     Cache
	cfg       ChainConfig
	metrics   *Metrics
	logger    *zap.Logger
}

// NewChain creates a provider chain. providers run in the given order;
// cache may be nil.
func NewChain(cfg ChainConfig, cache Cache, logger *zap.Logger, providers ...Provider) (*Chain, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("%w: at least one provider required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultChainRetries
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = defaultChainBackoff
	}
	return &Chain{
		providers: providers,
		cache:     cache,
		cfg:       cfg,
		metrics:   NewMetrics(logger),
		logger:    logger,
	}, nil
}

// Primary returns the first provider in the chain.
func (c *Chain) Primary() Provider {
	return c.providers[0]
}

// EmbedDocument encodes text in document mode.
func (c *Chain) EmbedDocument(ctx context.Context, text string) (*Result, error) {
	return c.run(ctx, text, ModeDocument)
}

// EmbedQuery encodes text in query mode.
func (c *Chain) EmbedQuery(ctx context.Context, text string) (*Result, error) {
	return c.run(ctx, text, ModeQuery)
}

// run walks the chain. Each provider gets MaxRetries attempts with
// exponential backoff before the chain falls through to the next one; the
// per-provider outcomes accumulate in the result either way.
func (c *Chain) run(ctx context.Context, text string, mode Mode) (*Result, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}

	hash := TextHash(text)
	var attempts []Attempt

	for i, provider := range c.providers {
		if c.cache != nil {
			if vec, ok := c.cache.Get(ctx, hash, provider.ID(), mode); ok {
				return &Result{Vector: vec, ProviderID: provider.ID(), Attempts: attempts}, nil
			}
		}

		vec, tries, err := c.tryProvider(ctx, provider, text, mode)
		attempts = append(attempts, Attempt{ProviderID: provider.ID(), Tries: tries, Err: err})
		if err == nil {
			if c.cache != nil {
				c.cache.Put(ctx, hash, provider.ID(), mode, vec)
			}
			return &Result{Vector: vec, ProviderID: provider.ID(), Attempts: attempts}, nil
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		c.logger.Warn("embedding provider exhausted",
			zap.String("provider", provider.ID()),
			zap.Int("tries", tries),
			zap.Error(err))
		if i+1 < len(c.providers) {
			c.metrics.RecordFallback(ctx, provider.ID(), c.providers[i+1].ID())
		}
	}

	return nil, fmt.Errorf("%w: all providers exhausted after %d providers", ErrEmbeddingFailed, len(attempts))
}

// tryProvider runs one provider with bounded retry and backoff.
func (c *Chain) tryProvider(ctx context.Context, provider Provider, text string, mode Mode) ([]float32, int, error) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 1 {
			delay := c.cfg.BaseBackoff * (1 << (attempt - 2))
			select {
			case <-ctx.Done():
				return nil, attempt - 1, ctx.Err()
			case <-time.After(delay):
			}
		}

		var vec []float32
		var err error
		start := time.Now()
		switch mode {
		case ModeQuery:
			vec, err = provider.EmbedQuery(ctx, text)
			c.metrics.RecordGeneration(ctx, provider.ID(), "embed_query", time.Since(start), 1, err)
		default:
			var vecs [][]float32
			vecs, err = provider.EmbedDocuments(ctx, []string{text})
			if err == nil {
				if len(vecs) == 0 {
					err = fmt.Errorf("%w: empty response", ErrEmbeddingFailed)
				} else {
					vec = vecs[0]
				}
			}
			c.metrics.RecordGeneration(ctx, provider.ID(), "embed_documents", time.Since(start), 1, err)
		}
		if err == nil {
			return vec, attempt, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, attempt, err
		}
		lastErr = err
	}
	return nil, c.cfg.MaxRetries, lastErr
}

// TextHash returns the hex digest used as an embedding cache key component.
func TextHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
