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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/awnumar/memguard"

	"github.com/AleutianAI/AleutianAssist/services/orchestrator/datatypes"
)

const (
	anthropicAPIVersion   = "2023-06-01"
	anthropicBaseURL      = "https://api.anthropic.com/v1/messages"
	DefaultClaudeModel    = "claude-3-5-sonnet-20240620"
	defaultClaudeMaxToken = 1024
)

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      []systemBlock      `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float32           `json:"temperature,omitempty"`
	TopP        *float32           `json:"top_p,omitempty"`
	TopK        *int               `json:"top_k,omitempty"`
	StopSeqs    []string           `json:"stop_sequences,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type systemBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicResponse struct {
	Content []anthropicContent `json:"content"`
	Error   *anthropicError    `json:"error,omitempty"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// AnthropicClient talks to the Anthropic Messages API. The API key is kept
// in an encrypted memguard enclave and only decrypted for the duration of
// a request.
type AnthropicClient struct {
	httpClient *http.Client
	baseURL    string
	model      string
	key        *memguard.Enclave
}

// NewAnthropicClient builds a client. The key comes from cfg, then
// ANTHROPIC_API_KEY, then the mounted anthropic_api_key secret.
func NewAnthropicClient(cfg Config) (*AnthropicClient, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = readSecret("ANTHROPIC_API_KEY", "anthropic_api_key")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY is missing")
	}
	model := cfg.Model
	if model == "" {
		model = os.Getenv("CLAUDE_MODEL")
	}
	if model == "" {
		model = DefaultClaudeModel
		slog.Info("CLAUDE_MODEL not set, using default", "model", model)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = anthropicBaseURL
	}
	return &AnthropicClient{
		httpClient: cfg.httpClient(60 * time.Second),
		baseURL:    baseURL,
		model:      model,
		key:        memguard.NewEnclave([]byte(apiKey)),
	}, nil
}

func (a *AnthropicClient) Chat(ctx context.Context, messages []datatypes.Message, params GenerationParams) (string, error) {
	payload := anthropicRequest{
		Model:       a.model,
		MaxTokens:   defaultClaudeMaxToken,
		Temperature: params.Temperature,
		TopP:        params.TopP,
		TopK:        params.TopK,
		StopSeqs:    params.Stop,
	}
	if params.MaxTokens != nil {
		payload.MaxTokens = *params.MaxTokens
	}
	var system []string
	for _, m := range messages {
		if strings.EqualFold(m.Role, datatypes.RoleSystem) {
			system = append(system, m.Content)
			continue
		}
		payload.Messages = append(payload.Messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}
	if len(system) > 0 {
		payload.System = []systemBlock{{Type: "text", Text: strings.Join(system, "\n\n")}}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	key, err := a.key.Open()
	if err != nil {
		return "", backendErr("anthropic", "chat", 0, fmt.Errorf("failed to open key enclave: %w", err))
	}
	req.Header.Set("x-api-key", key.String())
	key.Destroy()
	req.Header.Set("anthropic-version", anthropicAPIVersion)
	req.Header.Set("content-type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", backendErr("anthropic", "chat", 0, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", backendErr("anthropic", "chat", resp.StatusCode, err)
	}
	var apiResp anthropicResponse
	parseErr := json.Unmarshal(respBody, &apiResp)
	if resp.StatusCode != http.StatusOK {
		if parseErr == nil && apiResp.Error != nil {
			return "", backendErr("anthropic", "chat", resp.StatusCode,
				fmt.Errorf("%s: %s", apiResp.Error.Type, apiResp.Error.Message))
		}
		return "", backendErr("anthropic", "chat", resp.StatusCode, fmt.Errorf("%s", strings.TrimSpace(string(respBody))))
	}
	if parseErr != nil {
		return "", backendErr("anthropic", "chat", resp.StatusCode, fmt.Errorf("failed to parse response JSON: %w", parseErr))
	}

	var text strings.Builder
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", backendErr("anthropic", "chat", resp.StatusCode, errors.New("response contained no text block"))
	}
	return text.String(), nil
}

var _ LLMClient = (*AnthropicClient)(nil)
