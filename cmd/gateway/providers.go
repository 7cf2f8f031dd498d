package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/dreamscapes/gateway/config"
	"github.com/dreamscapes/gateway/providers"
	claude "github.com/dreamscapes/gateway/providers/anthropic"
	"github.com/dreamscapes/gateway/providers/gemini"
	"github.com/dreamscapes/gateway/providers/openaicompat"
	"github.com/dreamscapes/gateway/types"
)

// buildProvider constructs the vendor adapter named by cfg.Kind and the
// descriptor ProviderManager ranks and gates it by.
func buildProvider(cfg config.ProviderConfig, logger *zap.Logger) (providers.Provider, types.ProviderDescriptor, error) {
	descriptor := types.ProviderDescriptor{
		Name:     cfg.Name,
		Priority: cfg.Priority,
		Enabled:  cfg.Enabled,
		Limits: types.ProviderLimits{
			MaxTokens:  cfg.MaxTokens,
			RPM:        cfg.RPM,
			Concurrent: cfg.Concurrent,
		},
		Capabilities: types.ProviderCapabilities{
			Streaming: cfg.Streaming,
			JSONMode:  cfg.JSONMode,
		},
		OptimalTemperature: cfg.OptimalTemperature,
	}

	switch cfg.Kind {
	case "anthropic":
		p := claude.New(providers.ClaudeConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		}, logger)
		return p, descriptor, nil

	case "gemini":
		p := gemini.New(providers.GeminiConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		}, logger)
		return p, descriptor, nil

	case "openai_compat":
		p := openaicompat.New(openaicompat.Config{
			ProviderName: cfg.Name,
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.Model,
			Timeout:      cfg.Timeout,
		}, logger)
		return p, descriptor, nil

	default:
		return nil, types.ProviderDescriptor{}, fmt.Errorf("unknown provider kind %q for provider %q", cfg.Kind, cfg.Name)
	}
}
