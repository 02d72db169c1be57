package embeddings

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubProvider synthesizes deterministic vectors from the input text, with
// a distinct offset per mode so the two encodings differ.
type stubProvider struct {
	id        string
	failUntil int
	calls     int
}

func (s *stubProvider) vector(text string, mode Mode) []float32 {
	var seed float32
	for _, b := range []byte(text) {
		seed += float32(b)
	}
	offset := float32(0)
	if mode == ModeQuery {
		offset = 1000
	}
	return []float32{seed + offset, float32(len(text))}
}

func (s *stubProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	s.calls++
	if s.calls <= s.failUntil {
		return nil, fmt.Errorf("%w: simulated outage", ErrEmbeddingFailed)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = s.vector(t, ModeDocument)
	}
	return out, nil
}

func (s *stubProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	s.calls++
	if s.calls <= s.failUntil {
		return nil, fmt.Errorf("%w: simulated outage", ErrEmbeddingFailed)
	}
	return s.vector(text, ModeQuery), nil
}

func (s *stubProvider) ID() string     { return s.id }
func (s *stubProvider) Dimension() int { return 2 }
func (s *stubProvider) Close() error   { return nil }

func fastChainConfig() ChainConfig {
	return ChainConfig{MaxRetries: 2, BaseBackoff: time.Millisecond}
}

func TestChain_PrimarySuccess(t *testing.T) {
	primary := &stubProvider{id: "stub/primary"}
	secondary := &stubProvider{id: "stub/secondary"}
	chain, err := NewChain(fastChainConfig(), nil, nil, primary, secondary)
	require.NoError(t, err)

	res, err := chain.EmbedDocument(context.Background(), "invoice text")
	require.NoError(t, err)
	assert.Equal(t, "stub/primary", res.ProviderID)
	assert.Equal(t, 0, secondary.calls)
	require.Len(t, res.Attempts, 1)
	assert.Equal(t, 1, res.Attempts[0].Tries)
	assert.NoError(t, res.Attempts[0].Err)
}

func TestChain_FallsBackToSecondary(t *testing.T) {
	primary := &stubProvider{id: "stub/primary", failUntil: 10}
	secondary := &stubProvider{id: "stub/secondary"}
	chain, err := NewChain(fastChainConfig(), nil, nil, primary, secondary)
	require.NoError(t, err)

	res, err := chain.EmbedDocument(context.Background(), "invoice text")
	require.NoError(t, err)

	// The vector is tagged with the provider that actually produced it.
	assert.Equal(t, "stub/secondary", res.ProviderID)
	require.Len(t, res.Attempts, 2)
	assert.Equal(t, "stub/primary", res.Attempts[0].ProviderID)
	assert.Equal(t, 2, res.Attempts[0].Tries)
	assert.Error(t, res.Attempts[0].Err)
	assert.Equal(t, "stub/secondary", res.Attempts[1].ProviderID)
}

func TestChain_AllProvidersExhausted(t *testing.T) {
	primary := &stubProvider{id: "stub/primary", failUntil: 10}
	secondary := &stubProvider{id: "stub/secondary", failUntil: 10}
	chain, err := NewChain(fastChainConfig(), nil, nil, primary, secondary)
	require.NoError(t, err)

	_, err = chain.EmbedDocument(context.Background(), "invoice text")
	require.ErrorIs(t, err, ErrEmbeddingFailed)
	assert.Equal(t, 2, primary.calls)
	assert.Equal(t, 2, secondary.calls)
}

func TestChain_CacheHitSkipsProvider(t *testing.T) {
	primary := &stubProvider{id: "stub/primary"}
	chain, err := NewChain(fastChainConfig(), NewMemoryCache(), nil, primary)
	require.NoError(t, err)
	ctx := context.Background()

	first, err := chain.EmbedDocument(ctx, "invoice text")
	require.NoError(t, err)
	second, err := chain.EmbedDocument(ctx, "invoice text")
	require.NoError(t, err)

	assert.Equal(t, first.Vector, second.Vector)
	assert.Equal(t, 1, primary.calls, "second call must come from the cache")
}

func TestChain_DocumentModeIsDeterministic(t *testing.T) {
	chain, err := NewChain(fastChainConfig(), nil, nil, &stubProvider{id: "stub"})
	require.NoError(t, err)
	ctx := context.Background()

	a, err := chain.EmbedDocument(ctx, "same canonical text")
	require.NoError(t, err)
	b, err := chain.EmbedDocument(ctx, "same canonical text")
	require.NoError(t, err)
	assert.Equal(t, a.Vector, b.Vector)
}

func TestChain_ModeAsymmetry(t *testing.T) {
	chain, err := NewChain(fastChainConfig(), nil, nil, &stubProvider{id: "stub"})
	require.NoError(t, err)
	ctx := context.Background()

	doc, err := chain.EmbedDocument(ctx, "cloud computing costs")
	require.NoError(t, err)
	query, err := chain.EmbedQuery(ctx, "cloud computing costs")
	require.NoError(t, err)

	assert.NotEqual(t, doc.Vector, query.Vector,
		"query-mode and document-mode vectors of the same text must differ")
}

func TestChain_CacheKeysSeparateModes(t *testing.T) {
	primary := &stubProvider{id: "stub"}
	chain, err := NewChain(fastChainConfig(), NewMemoryCache(), nil, primary)
	require.NoError(t, err)
	ctx := context.Background()

	doc, err := chain.EmbedDocument(ctx, "text")
	require.NoError(t, err)
	query, err := chain.EmbedQuery(ctx, "text")
	require.NoError(t, err)

	assert.NotEqual(t, doc.Vector, query.Vector)
	assert.Equal(t, 2, primary.calls, "modes must not share cache entries")
}

func TestChain_EmptyText(t *testing.T) {
	chain, err := NewChain(fastChainConfig(), nil, nil, &stubProvider{id: "stub"})
	require.NoError(t, err)

	_, err = chain.EmbedDocument(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestChain_NoProviders(t *testing.T) {
	_, err := NewChain(ChainConfig{}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestChain_CancelledContext(t *testing.T) {
	primary := &stubProvider{id: "stub", failUntil: 10}
	chain, err := NewChain(ChainConfig{MaxRetries: 5, BaseBackoff: time.Minute}, nil, nil, primary)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = chain.EmbedDocument(ctx, "text")
	assert.ErrorIs(t, err, context.Canceled)
}
