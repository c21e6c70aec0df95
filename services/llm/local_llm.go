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
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianAssist/services/orchestrator/datatypes"
)

// LlamaCppClient talks to a llama.cpp server's /completion endpoint. Chat
// turns are flattened into a role-prefixed transcript.
type LlamaCppClient struct {
	httpClient *http.Client
	baseURL    string
}

type llamaCppRequest struct {
	Prompt      string   `json:"prompt"`
	NPredict    int      `json:"n_predict"`
	Temperature *float32 `json:"temperature,omitempty"`
	TopK        *int     `json:"top_k,omitempty"`
	TopP        *float32 `json:"top_p,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type llamaCppResponse struct {
	Content string `json:"content"`
}

// NewLlamaCppClient builds a client. BaseURL falls back to
// LLM_SERVICE_URL_BASE.
func NewLlamaCppClient(cfg Config) (*LlamaCppClient, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = os.Getenv("LLM_SERVICE_URL_BASE")
	}
	if baseURL == "" {
		return nil, fmt.Errorf("LLM_SERVICE_URL_BASE environment variable not set")
	}
	return &LlamaCppClient{
		httpClient: cfg.httpClient(5 * time.Minute),
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}, nil
}

func (l *LlamaCppClient) Chat(ctx context.Context, messages []datatypes.Message, params GenerationParams) (string, error) {
	payload := llamaCppRequest{
		Prompt:      transcript(messages),
		NPredict:    512,
		Temperature: params.Temperature,
		TopK:        params.TopK,
		TopP:        params.TopP,
		Stop:        append([]string{"\nUser:"}, params.Stop...),
	}
	if params.MaxTokens != nil {
		payload.NPredict = *params.MaxTokens
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal completion request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/completion", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return "", backendErr("llamacpp", "completion", 0, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", backendErr("llamacpp", "completion", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", backendErr("llamacpp", "completion", resp.StatusCode, fmt.Errorf("%s", strings.TrimSpace(string(respBody))))
	}
	var out llamaCppResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", backendErr("llamacpp", "completion", resp.StatusCode, fmt.Errorf("failed to parse response: %w", err))
	}
	return strings.TrimSpace(out.Content), nil
}

// transcript renders messages as "System: ...", "User: ...",
// "Assistant: ..." blocks ending with an open assistant turn.
func transcript(messages []datatypes.Message) string {
	var b strings.Builder
	for _, m := range messages {
		switch m.Role {
		case datatypes.RoleSystem:
			b.WriteString("System: ")
		case datatypes.RoleAssistant:
			b.WriteString("Assistant: ")
		default:
			b.WriteString("User: ")
		}
		b.WriteString(m.Content)
		b.WriteString("\n\n")
	}
	b.WriteString("Assistant:")
	return b.String()
}

var _ LLMClient = (*LlamaCppClient)(nil)
