package embeddings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider_Unknown(t *testing.T) {
	_, err := NewProvider(ProviderConfig{Provider: "quantum"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewProvider_TEI(t *testing.T) {
	p, err := NewProvider(ProviderConfig{
		Provider: "tei",
		Model:    "BAAI/bge-large-en-v1.5",
		BaseURL:  "http://localhost:8080",
	})
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, "tei/BAAI/bge-large-en-v1.5", p.ID())
	assert.Equal(t, 1024, p.Dimension())
}

func TestNewProvider_TEIRequiresBaseURL(t *testing.T) {
	_, err := NewProvider(ProviderConfig{Provider: "tei", Model: "m"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
