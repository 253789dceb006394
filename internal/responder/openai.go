package responder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIBackend serves personas from any OpenAI-compatible chat completions
// endpoint (OpenAI, Groq, a local Ollama).
type OpenAIBackend struct {
	baseURL     string
	apiKey      string
	model       string
	temperature *float64
	client      *http.Client
}

// NewOpenAIBackend prepares a chat completions client. An empty baseURL
// targets api.openai.com.
func NewOpenAIBackend(baseURL, apiKey, model string, temperature *float64, client *http.Client) (*OpenAIBackend, error) {
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("responder: openai model is required")
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &OpenAIBackend{
		baseURL:     baseURL,
		apiKey:      strings.TrimSpace(apiKey),
		model:       model,
		temperature: temperature,
		client:      client,
	}, nil
}

// Bind returns a responder that speaks as p.
func (b *OpenAIBackend) Bind(p Persona) (Responder, error) {
	return &openAIResponder{backend: b, persona: p}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type openAIResponder struct {
	backend *OpenAIBackend
	persona Persona
}

func (r *openAIResponder) Generate(ctx context.Context, turns []Turn) (string, error) {
	if len(turns) == 0 {
		return "", fmt.Errorf("openai: empty conversation")
	}
	messages := make([]chatMessage, 0, len(turns)+1)
	messages = append(messages, chatMessage{Role: "system", Content: r.persona.Instructions})
	for _, turn := range turns {
		role := "user"
		if turn.Role != "" && turn.Role == r.persona.Role {
			role = "assistant"
		}
		messages = append(messages, chatMessage{Role: role, Content: turn.Content})
	}
	payload, err := json.Marshal(chatRequest{
		Model:       r.backend.model,
		Messages:    messages,
		Temperature: r.backend.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("openai: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.backend.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("openai: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.backend.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.backend.apiKey)
	}
	resp, err := r.backend.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("openai: request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("openai: read response: %w", err)
	}
	var decoded chatResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("openai: status %d: invalid JSON response", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		detail := http.StatusText(resp.StatusCode)
		if decoded.Error != nil && decoded.Error.Message != "" {
			detail = decoded.Error.Message
		}
		return "", fmt.Errorf("openai: status %d: %s", resp.StatusCode, detail)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("openai: response has no choices")
	}
	text := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("openai: empty response")
	}
	return text, nil
}
