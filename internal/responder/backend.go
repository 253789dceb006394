package responder

import (
	"context"
	"fmt"

	"github.com/KaioH3/negotiation-agent/internal/catalog"
	"github.com/KaioH3/negotiation-agent/internal/config"
)

// NewBackend builds the backend selected by a resolved responder config.
func NewBackend(ctx context.Context, rc config.ResponderConfig, cat *catalog.Catalog) (Backend, error) {
	switch rc.Provider {
	case config.ProviderSimulated:
		return NewSimulatedBackend(cat), nil
	case config.ProviderGemini:
		key := rc.APIKey()
		if key == "" {
			return nil, fmt.Errorf("responder: %s is not set", rc.APIKeyEnv)
		}
		backend, err := NewGeminiBackend(ctx, key, rc.Model, rc.Temperature)
		if err != nil {
			return nil, err
		}
		return backend, nil
	case config.ProviderOpenAI:
		key := rc.APIKey()
		if key == "" && rc.BaseURL == "" {
			return nil, fmt.Errorf("responder: %s is not set", rc.APIKeyEnv)
		}
		backend, err := NewOpenAIBackend(rc.BaseURL, key, rc.Model, rc.Temperature, nil)
		if err != nil {
			return nil, err
		}
		return backend, nil
	default:
		return nil, fmt.Errorf("responder: unsupported provider %q", rc.Provider)
	}
}
