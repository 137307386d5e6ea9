package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mserrors "github.com/Aman-CERP/mixsearch/internal/errors"
	"github.com/Aman-CERP/mixsearch/internal/tokenize"
)

// ProviderType names an embedding backend.
type ProviderType string

const (
	// ProviderNone disables embeddings; search is lexical only.
	ProviderNone ProviderType = "none"

	// ProviderStatic uses hash-based embeddings.
	ProviderStatic ProviderType = "static"

	// ProviderOllama uses the Ollama HTTP API.
	ProviderOllama ProviderType = "ollama"
)

// ParseProviderType parses a provider name. Empty means ProviderNone.
func ParseProviderType(s string) (ProviderType, error) {
	switch p := ProviderType(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return ProviderNone, nil
	case ProviderNone, ProviderStatic, ProviderOllama:
		return p, nil
	default:
		return "", fmt.Errorf("unknown embedding provider %q (want none, static or ollama)", s)
	}
}

// Config selects and configures an embedder.
type Config struct {
	Provider ProviderType  `yaml:"provider" json:"provider"`
	Model    string        `yaml:"model" json:"model"`
	Host     string        `yaml:"host" json:"host"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`
	// CacheSize is the query embedding cache size; 0 uses the default and
	// a negative value disables caching.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
	// FallbackToStatic uses the static embedder when Ollama cannot start.
	FallbackToStatic bool `yaml:"fallback_to_static" json:"fallback_to_static"`
}

// DefaultConfig returns the embedding defaults: static hashing, cached.
func DefaultConfig() Config {
	return Config{
		Provider:  ProviderStatic,
		Model:     DefaultOllamaModel,
		Host:      DefaultOllamaHost,
		Timeout:   DefaultTimeout,
		CacheSize: DefaultEmbeddingCacheSize,
	}
}

// NewEmbedder creates the embedder described by cfg, wrapped in a cache
// unless CacheSize is negative. tok is used by the static embedder and may
// be nil.
func NewEmbedder(ctx context.Context, cfg Config, tok *tokenize.Tokenizer) (Embedder, error) {
	var embedder Embedder

	switch cfg.Provider {
	case ProviderStatic:
		embedder = newStatic(tok)
	case ProviderOllama:
		oc := DefaultOllamaConfig()
		if cfg.Host != "" {
			oc.Host = cfg.Host
		}
		if cfg.Model != "" {
			oc.Model = cfg.Model
		}
		if cfg.Timeout > 0 {
			oc.Timeout = cfg.Timeout
		}
		e, err := NewOllamaEmbedder(ctx, oc)
		if err != nil {
			if !cfg.FallbackToStatic {
				return nil, err
			}
			slogFallback(err)
			embedder = newStatic(tok)
		} else {
			embedder = e
		}
	case ProviderNone, "":
		return nil, mserrors.New(mserrors.ErrCodeProviderUnavailable, "embeddings are disabled", nil)
	default:
		return nil, mserrors.ConfigError(fmt.Sprintf("unknown embedding provider %q", cfg.Provider), nil)
	}

	if cfg.CacheSize < 0 {
		return embedder, nil
	}
	return NewCachedEmbedder(embedder, cfg.CacheSize), nil
}

// NewProvider returns a lazily initialized provider for cfg, or nil when
// embeddings are disabled.
func NewProvider(cfg Config, tok *tokenize.Tokenizer) *Lazy {
	if cfg.Provider == ProviderNone || cfg.Provider == "" {
		return nil
	}
	return NewLazy(func(ctx context.Context) (Embedder, error) {
		return NewEmbedder(ctx, cfg, tok)
	})
}

func newStatic(tok *tokenize.Tokenizer) *StaticEmbedder {
	if tok == nil {
		return NewStaticEmbedder()
	}
	return NewStaticEmbedderWithTokenizer(tok)
}

func slogFallback(err error) {
	slog.Warn("embedder_fallback_static",
		slog.String("reason", err.Error()))
}
