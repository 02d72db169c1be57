package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTEIServer fakes a text-embeddings-inference server, recording the
// inputs of each request.
func newTEIServer(t *testing.T, inputs *[][]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Inputs []string `json:"inputs"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		*inputs = append(*inputs, req.Inputs)

		vectors := make([][]float32, len(req.Inputs))
		for i := range vectors {
			vectors[i] = []float32{0.1, 0.2, 0.3}
		}
		require.NoError(t, json.NewEncoder(w).Encode(vectors))
	}))
}

func TestTEIProvider_EmbedDocuments(t *testing.T) {
	var inputs [][]string
	srv := newTEIServer(t, &inputs)
	defer srv.Close()

	p, err := NewTEIProvider(TEIConfig{BaseURL: srv.URL, Model: "BAAI/bge-large-en-v1.5"})
	require.NoError(t, err)

	vectors, err := p.EmbedDocuments(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)

	// Document mode sends the text as-is, no instruction prefix.
	require.Len(t, inputs, 1)
	assert.Equal(t, []string{"first", "second"}, inputs[0])
}

func TestTEIProvider_QueryPrefix(t *testing.T) {
	var inputs [][]string
	srv := newTEIServer(t, &inputs)
	defer srv.Close()

	p, err := NewTEIProvider(TEIConfig{BaseURL: srv.URL, Model: "BAAI/bge-large-en-v1.5"})
	require.NoError(t, err)

	_, err = p.EmbedQuery(context.Background(), "cloud computing costs")
	require.NoError(t, err)

	require.Len(t, inputs, 1)
	require.Len(t, inputs[0], 1)
	assert.True(t, strings.HasPrefix(inputs[0][0], queryPrefix),
		"query mode must carry the BGE instruction prefix")
	assert.True(t, strings.HasSuffix(inputs[0][0], "cloud computing costs"))
}

func TestTEIProvider_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p, err := NewTEIProvider(TEIConfig{BaseURL: srv.URL, Model: "BAAI/bge-large-en-v1.5"})
	require.NoError(t, err)

	_, err = p.EmbedQuery(context.Background(), "text")
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}

func TestTEIProvider_RequiresBaseURL(t *testing.T) {
	_, err := NewTEIProvider(TEIConfig{Model: "BAAI/bge-large-en-v1.5"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestTEIProvider_EmptyInput(t *testing.T) {
	p, err := NewTEIProvider(TEIConfig{BaseURL: "http://localhost:9999", Model: "m"})
	require.NoError(t, err)

	_, err = p.EmbedDocuments(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
	_, err = p.EmbedQuery(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestTEIProvider_Dimension(t *testing.T) {
	tests := []struct {
		model string
		want  int
	}{
		{"BAAI/bge-large-en-v1.5", 1024},
		{"BAAI/bge-base-en-v1.5", 768},
		{"BAAI/bge-small-en-v1.5", 384},
		{"some-unknown-large-model", 1024},
		{"some-unknown-model", 384},
	}
	for _, tt := range tests {
		p, err := NewTEIProvider(TEIConfig{BaseURL: "http://localhost:9999", Model: tt.model})
		require.NoError(t, err)
		assert.Equal(t, tt.want, p.Dimension(), tt.model)
		assert.Equal(t, "tei/"+tt.model, p.ID())
	}
}
