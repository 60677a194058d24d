// Package embedding provides a pluggable interface for text embedding providers.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// ErrNoModel is returned when no embedding model is configured. Jobs and
// similarity queries fail immediately on it, before any item is processed.
var ErrNoModel = errors.New("no embedding model configured")

// Provider generates embedding vectors from text under a specific model.
//
// Fingerprint identifies the model configuration; vectors produced under
// different fingerprints are never comparable and the index treats a
// fingerprint change as invalidating prior embeddings.
type Provider interface {
	Fingerprint() string
	Embed(ctx context.Context, text string) ([]float32, error)
}

// --- Ollama provider ---

// OllamaProvider uses a local Ollama instance for embeddings.
type OllamaProvider struct {
	baseURL string
	model   string
	client  *http.Client
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaResponse struct {
	Embedding []float32 `json:"embedding"`
}

// NewOllamaProvider creates a provider using Ollama's embeddings API.
func NewOllamaProvider(baseURL, model string) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaProvider{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *OllamaProvider) Fingerprint() string { return "ollama/" + p.model }

func (p *OllamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	body, _ := json.Marshal(ollamaRequest{Model: p.model, Prompt: text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama error %d: %s", resp.StatusCode, string(b))
	}

	var result ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return result.Embedding, nil
}

// --- OpenAI-compatible provider ---

// OpenAIProvider uses any OpenAI-compatible embedding API.
type OpenAIProvider struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

type openaiEmbedRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

type openaiEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// NewOpenAIProvider creates a provider using an OpenAI-compatible API.
func NewOpenAIProvider(baseURL, apiKey, model string) *OpenAIProvider {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	return &OpenAIProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *OpenAIProvider) Fingerprint() string { return "openai/" + p.model }

func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	body, _ := json.Marshal(openaiEmbedRequest{Input: text, Model: p.model})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("openai error %d: %s", resp.StatusCode, string(b))
	}

	var result openaiEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if len(result.Data) == 0 || len(result.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return result.Data[0].Embedding, nil
}

// --- Factory ---

// NewFromEnv creates a provider from environment variables.
// MEMVAULT_EMBED_PROVIDER: "ollama" | "openai" | "" (disabled)
// MEMVAULT_EMBED_MODEL: model name
// MEMVAULT_EMBED_URL: base URL override
// OPENAI_API_KEY: for the openai provider
//
// Returns nil when no provider is configured; callers surface that as
// ErrNoModel.
func NewFromEnv() Provider {
	provider := os.Getenv("MEMVAULT_EMBED_PROVIDER")
	model := os.Getenv("MEMVAULT_EMBED_MODEL")
	url := os.Getenv("MEMVAULT_EMBED_URL")

	switch provider {
	case "ollama":
		if model == "" {
			model = "nomic-embed-text"
		}
		if url == "" {
			url = os.Getenv("OLLAMA_HOST")
		}
		return NewOllamaProvider(url, model)
	case "openai":
		return NewOpenAIProvider(url, os.Getenv("OPENAI_API_KEY"), model)
	default:
		return nil // embeddings disabled
	}
}
