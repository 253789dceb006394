package responder

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiBackend serves personas from the Gemini API.
type GeminiBackend struct {
	client      *genai.Client
	model       string
	temperature *float32
}

// NewGeminiBackend creates a Gemini API client for the given model.
func NewGeminiBackend(ctx context.Context, apiKey, model string, temperature *float64) (*GeminiBackend, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("responder: gemini api key is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("responder: gemini model is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("responder: create gemini client: %w", err)
	}
	b := &GeminiBackend{client: client, model: model}
	if temperature != nil {
		t := float32(*temperature)
		b.temperature = &t
	}
	return b, nil
}

// Bind returns a responder that speaks as p.
func (b *GeminiBackend) Bind(p Persona) (Responder, error) {
	return &geminiResponder{backend: b, persona: p}, nil
}

type geminiResponder struct {
	backend *GeminiBackend
	persona Persona
}

func (r *geminiResponder) Generate(ctx context.Context, turns []Turn) (string, error) {
	if len(turns) == 0 {
		return "", fmt.Errorf("gemini: empty conversation")
	}
	contents := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		role := genai.Role(genai.RoleUser)
		if turn.Role != "" && turn.Role == r.persona.Role {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Content, role))
	}
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(r.persona.Instructions, genai.RoleUser),
		Temperature:       r.backend.temperature,
	}
	resp, err := r.backend.client.Models.GenerateContent(ctx, r.backend.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini: generate: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("gemini: empty response")
	}
	return text, nil
}
