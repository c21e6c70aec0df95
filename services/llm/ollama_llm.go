// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianAssist/services/orchestrator/datatypes"
)

var tracer = otel.Tracer("assistant.llm.ollama")

const DefaultOllamaModel = "llama3.1"

// OllamaClient talks to a local Ollama server.
type OllamaClient struct {
	httpClient     *http.Client
	baseURL        string
	model          string
	embeddingModel string
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []datatypes.Message `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  map[string]any      `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message datatypes.Message `json:"message"`
	Done    bool              `json:"done"`
	Error   string            `json:"error,omitempty"`
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewOllamaClient builds a client. BaseURL falls back to OLLAMA_BASE_URL
// and the model to OLLAMA_MODEL.
func NewOllamaClient(cfg Config) (*OllamaClient, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = os.Getenv("OLLAMA_BASE_URL")
	}
	if baseURL == "" {
		return nil, fmt.Errorf("OLLAMA_BASE_URL environment variable not set")
	}
	model := cfg.Model
	if model == "" {
		model = os.Getenv("OLLAMA_MODEL")
	}
	if model == "" {
		slog.Warn("OLLAMA_MODEL not set, using default", "model", DefaultOllamaModel)
		model = DefaultOllamaModel
	}
	embeddingModel := cfg.EmbeddingModel
	if embeddingModel == "" {
		embeddingModel = "nomic-embed-text"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	slog.Info("Initializing Ollama client", "base_url", baseURL, "model", model)
	return &OllamaClient{
		httpClient:     cfg.httpClient(5 * time.Minute),
		baseURL:        baseURL,
		model:          model,
		embeddingModel: embeddingModel,
	}, nil
}

func (o *OllamaClient) Chat(ctx context.Context, messages []datatypes.Message, params GenerationParams) (string, error) {
	ctx, span := tracer.Start(ctx, "OllamaClient.Chat")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", o.model), attribute.Int("llm.num_messages", len(messages)))

	payload := ollamaChatRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   false,
		Options:  ollamaOptions(params),
	}
	var out ollamaChatResponse
	if err := o.post(ctx, "/api/chat", "chat", payload, &out); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	if out.Message.Role != "" && out.Message.Role != datatypes.RoleAssistant {
		slog.Warn("Ollama chat response role was not assistant", "role", out.Message.Role)
	}
	return out.Message.Content, nil
}

// Embed calls /api/embed with the configured embedding model.
func (o *OllamaClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, span := tracer.Start(ctx, "OllamaClient.Embed")
	defer span.End()

	var out ollamaEmbedResponse
	if err := o.post(ctx, "/api/embed", "embed", ollamaEmbedRequest{Model: o.embeddingModel, Input: texts}, &out); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if len(out.Embeddings) != len(texts) {
		return nil, backendErr("ollama", "embed", 0,
			fmt.Errorf("expected %d embeddings, got %d", len(texts), len(out.Embeddings)))
	}
	return out.Embeddings, nil
}

func (o *OllamaClient) post(ctx context.Context, path, op string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request to Ollama: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create %s request to Ollama: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return backendErr("ollama", op, 0, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return backendErr("ollama", op, resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && resp.StatusCode == http.StatusNotFound &&
			strings.Contains(errResp.Error, "not found") {
			return backendErr("ollama", op, resp.StatusCode,
				fmt.Errorf("model '%s' not found, run 'ollama pull %s'", o.model, o.model))
		}
		return backendErr("ollama", op, resp.StatusCode, fmt.Errorf("%s", strings.TrimSpace(string(respBody))))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return backendErr("ollama", op, resp.StatusCode, fmt.Errorf("failed to parse response: %w", err))
	}
	return nil
}

func ollamaOptions(params GenerationParams) map[string]any {
	options := map[string]any{
		"temperature": float32(0.2),
		"top_k":       20,
		"top_p":       float32(0.9),
		"num_predict": 8192,
	}
	if params.Temperature != nil {
		options["temperature"] = *params.Temperature
	}
	if params.TopK != nil {
		options["top_k"] = *params.TopK
	}
	if params.TopP != nil {
		options["top_p"] = *params.TopP
	}
	if params.MaxTokens != nil {
		options["num_predict"] = *params.MaxTokens
	}
	if len(params.Stop) > 0 {
		options["stop"] = params.Stop
	}
	return options
}

var (
	_ LLMClient = (*OllamaClient)(nil)
	_ Embedder  = (*OllamaClient)(nil)
)
