package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/johnquangdev/timeline-assistant/pkg/config"
)

// SettingsReader reads persisted settings
type SettingsReader interface {
	Get(ctx context.Context, key string) (string, bool, error)
}

// Factory builds a provider by name
type Factory func(name string) (Provider, error)

// NewFactory returns a factory backed by configuration
func NewFactory(cfg *config.LLMConfig, sampler FrameSampler) Factory {
	return func(name string) (Provider, error) {
		switch name {
		case ProviderGemini:
			return NewGeminiClient(cfg)
		case ProviderOpenAI:
			return NewOpenAIClient(cfg, sampler)
		case ProviderLocal:
			return NewLocalClient(cfg, sampler)
		case ProviderManaged:
			return NewManagedClient(cfg)
		case "":
			return nil, ErrNoProvider
		default:
			return nil, fmt.Errorf("%w: unknown provider %q", ErrNoProvider, name)
		}
	}
}

// Resolver picks the active provider on every call so a settings change
// takes effect for the next batch without a restart
type Resolver struct {
	settings    SettingsReader
	settingsKey string
	fallback    string
	build       Factory
}

// NewResolver creates a resolver. fallback is used when no setting is persisted.
func NewResolver(settings SettingsReader, settingsKey, fallback string, build Factory) *Resolver {
	return &Resolver{
		settings:    settings,
		settingsKey: settingsKey,
		fallback:    fallback,
		build:       build,
	}
}

// Active returns the name of the provider that would be resolved now
func (r *Resolver) Active(ctx context.Context) (string, error) {
	if r.settings != nil {
		value, ok, err := r.settings.Get(ctx, r.settingsKey)
		if err != nil {
			return "", fmt.Errorf("failed to read provider setting: %w", err)
		}
		if ok && strings.TrimSpace(value) != "" {
			return strings.ToLower(strings.TrimSpace(value)), nil
		}
	}
	return strings.ToLower(strings.TrimSpace(r.fallback)), nil
}

// Resolve builds the active provider
func (r *Resolver) Resolve(ctx context.Context) (Provider, error) {
	name, err := r.Active(ctx)
	if err != nil {
		return nil, err
	}
	return r.build(name)
}

// IsKnownProvider reports whether name is a supported provider
func IsKnownProvider(name string) bool {
	switch name {
	case ProviderGemini, ProviderOpenAI, ProviderLocal, ProviderManaged:
		return true
	}
	return false
}
