package memory

import (
	"context"
	"fmt"

	chromem "github.com/philippgille/chromem-go"
)

// EmbedderFunc adapts a plain function to the Embedder interface.
type EmbedderFunc func(ctx context.Context, text string) ([]float32, error)

// EmbedQuery implements Embedder.
func (f EmbedderFunc) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return f(ctx, text)
}

// NewOpenAIEmbedder embeds with the OpenAI embeddings API.
func NewOpenAIEmbedder(apiKey, model string) Embedder {
	embeddingModel := chromem.EmbeddingModelOpenAI3Small
	if model != "" {
		embeddingModel = chromem.EmbeddingModelOpenAI(model)
	}
	return EmbedderFunc(chromem.NewEmbeddingFuncOpenAI(apiKey, embeddingModel))
}

// NewOllamaEmbedder embeds with a local Ollama instance.
func NewOllamaEmbedder(baseURL, model string) Embedder {
	if model == "" {
		model = "nomic-embed-text"
	}
	return EmbedderFunc(chromem.NewEmbeddingFuncOllama(model, baseURL))
}

// NewEmbedder selects an embedder for the configured backend.
func NewEmbedder(provider, apiKey, model, ollamaHost string) (Embedder, error) {
	switch provider {
	case "openai":
		if apiKey == "" {
			return nil, fmt.Errorf("openai embedding backend requires an api key")
		}
		return NewOpenAIEmbedder(apiKey, model), nil
	case "ollama":
		return NewOllamaEmbedder(ollamaHost, model), nil
	default:
		return nil, fmt.Errorf("unknown embedding backend %q", provider)
	}
}
