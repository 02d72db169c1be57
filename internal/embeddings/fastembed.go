//go:build cgo

package embeddings

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	fastembed "github.com/anush008/fastembed-go"
)

// FastEmbedConfig holds configuration for the FastEmbed provider.
type FastEmbedConfig struct {
	// Model is the embedding model to use.
	// Supported: BAAI/bge-small-en-v1.5 (default), BAAI/bge-base-en-v1.5,
	// sentence-transformers/all-MiniLM-L6-v2, etc.
	Model string

	// CacheDir is the directory to cache model files.
	CacheDir string

	// MaxLength is the maximum input sequence length. Defaults to 512.
	MaxLength int
}

// modelMapping maps friendly model names to fastembed model constants.
var modelMapping = map[string]fastembed.EmbeddingModel{
	"BAAI/bge-small-en-v1.5":                 fastembed.BGESmallENV15,
	"BAAI/bge-small-en":                      fastembed.BGESmallEN,
	"BAAI/bge-base-en-v1.5":                  fastembed.BGEBaseENV15,
	"BAAI/bge-base-en":                       fastembed.BGEBaseEN,
	"BAAI/bge-small-zh-v1.5":                 fastembed.BGESmallZH,
	"sentence-transformers/all-MiniLM-L6-v2": fastembed.AllMiniLML6V2,
}

// modelDimensions maps fastembed models to their embedding dimensions.
var modelDimensions = map[fastembed.EmbeddingModel]int{
	fastembed.BGESmallENV15: 384,
	fastembed.BGESmallEN:    384,
	fastembed.BGEBaseENV15:  768,
	fastembed.BGEBaseEN:     768,
	fastembed.BGESmallZH:    512,
	fastembed.AllMiniLML6V2: 384,
}

// sharedRuntime is the process-wide ONNX model state. Model initialization
// is expensive (download plus runtime setup), so it happens once per model,
// lazily on first use, and the loaded model is shared read-only between
// providers until the last one closes it.
type sharedRuntime struct {
	once  sync.Once
	model *fastembed.FlagEmbedding
	err   error
	refs  int
}

var (
	runtimesMu sync.Mutex
	runtimes   = map[string]*sharedRuntime{}
)

// acquireRuntime returns the shared runtime for a model+cache key,
// creating the entry (but not the model) if absent.
func acquireRuntime(key string) *sharedRuntime {
	runtimesMu.Lock()
	defer runtimesMu.Unlock()
	rt, ok := runtimes[key]
	if !ok {
		rt = &sharedRuntime{}
		runtimes[key] = rt
	}
	rt.refs++
	return rt
}

// releaseRuntime drops one reference and destroys the model at zero.
func releaseRuntime(key string) error {
	runtimesMu.Lock()
	defer runtimesMu.Unlock()
	rt, ok := runtimes[key]
	if !ok {
		return nil
	}
	rt.refs--
	if rt.refs > 0 {
		return nil
	}
	delete(runtimes, key)
	if rt.model != nil {
		return rt.model.Destroy()
	}
	return nil
}

// FastEmbedProvider generates embeddings using local ONNX models. The
// underlying model loads lazily on the first embed call.
type FastEmbedProvider struct {
	key       string
	opts      *fastembed.InitOptions
	runtime   *sharedRuntime
	modelName string
	dimension int

	closeOnce sync.Once
	closeErr  error
}

// NewFastEmbedProvider creates a FastEmbed embedding provider. The model
// file is not touched until the first embed call.
func NewFastEmbedProvider(cfg FastEmbedConfig) (*FastEmbedProvider, error) {
	model, ok := modelMapping[cfg.Model]
	if !ok {
		model = fastembed.EmbeddingModel(cfg.Model)
		if _, known := modelDimensions[model]; !known {
			return nil, fmt.Errorf("%w: unsupported model %q (supported: BAAI/bge-small-en-v1.5, BAAI/bge-base-en-v1.5, sentence-transformers/all-MiniLM-L6-v2)", ErrInvalidConfig, cfg.Model)
		}
	}

	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(".", "local_cache")
	}
	maxLength := cfg.MaxLength
	if maxLength == 0 {
		maxLength = 512
	}
	showProgress := false

	key := string(model) + "|" + cacheDir
	return &FastEmbedProvider{
		key: key,
		opts: &fastembed.InitOptions{
			Model:                model,
			CacheDir:             cacheDir,
			MaxLength:            maxLength,
			ShowDownloadProgress: &showProgress,
		},
		runtime:   acquireRuntime(key),
		modelName: cfg.Model,
		dimension: modelDimensions[model],
	}, nil
}

// load initializes the shared model exactly once across all goroutines.
// The ONNX runtime library is resolved first; fastembed picks it up via
// ONNX_PATH when it initializes the session.
func (p *FastEmbedProvider) load(ctx context.Context) (*fastembed.FlagEmbedding, error) {
	p.runtime.once.Do(func() {
		libPath, err := EnsureONNXRuntime(ctx)
		if err != nil {
			p.runtime.err = err
			return
		}
		if os.Getenv("ONNX_PATH") == "" {
			os.Setenv("ONNX_PATH", libPath)
		}
		p.runtime.model, p.runtime.err = fastembed.NewFlagEmbedding(p.opts)
	})
	if p.runtime.err != nil {
		return nil, fmt.Errorf("initializing FastEmbed: %w", p.runtime.err)
	}
	return p.runtime.model, nil
}

// EmbedDocuments encodes texts in document mode. The model's passage
// prefix is applied internally, keeping document vectors distinct from
// query vectors.
func (p *FastEmbedProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	model, err := p.load(ctx)
	if err != nil {
		return nil, err
	}

	vectors, err := model.PassageEmbed(texts, 256)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	return vectors, nil
}

// EmbedQuery encodes a single text in query mode, with the model's query
// instruction prefix applied internally.
func (p *FastEmbedProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	model, err := p.load(ctx)
	if err != nil {
		return nil, err
	}

	vector, err := model.QueryEmbed(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	return vector, nil
}

// ID identifies the provider and model.
func (p *FastEmbedProvider) ID() string {
	return "fastembed/" + p.modelName
}

// Dimension returns the embedding dimension for the current model.
func (p *FastEmbedProvider) Dimension() int {
	return p.dimension
}

// Close releases this provider's reference to the shared model.
func (p *FastEmbedProvider) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = releaseRuntime(p.key)
	})
	return p.closeErr
}

var _ Provider = (*FastEmbedProvider)(nil)
