package main

import (
	"context"
	"fmt"

	"github.com/oskarlindberg/agentcore/internal/provider"
	"github.com/oskarlindberg/agentcore/internal/provider/anthropic"
	"github.com/oskarlindberg/agentcore/internal/provider/bedrock"
	"github.com/oskarlindberg/agentcore/internal/provider/cohere"
	"github.com/oskarlindberg/agentcore/internal/provider/google"
	"github.com/oskarlindberg/agentcore/internal/provider/mockprovider"
	"github.com/oskarlindberg/agentcore/internal/provider/openaicompat"
)

// buildProvider constructs the single provider.Provider a node runs
// against, per cfg.Kind. Every driver this module ships a home for is
// reachable from here; picking one is the only provider-selection
// mechanism a node has (the fallback-chain-of-providers idea some of the
// pack's chat gateways implement is explicitly out of scope here — spec
// §4.C's agent loop runs against a single provider.Provider for a turn).
func buildProvider(ctx context.Context, cfg ProviderConfig) (provider.Provider, error) {
	switch cfg.Kind {
	case "", "anthropic":
		return anthropic.New(anthropic.Config{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.DefaultModel,
			MaxRetries:   cfg.MaxRetries,
			RetryDelay:   cfg.RetryDelay,
		})

	case "openai", "ollama", "openrouter":
		return openaicompat.New(openaicompat.Config{
			APIKey:          cfg.APIKey,
			BaseURL:         cfg.BaseURL,
			DefaultModel:    cfg.DefaultModel,
			ProviderName:    cfg.Kind,
			MaxRetries:      cfg.MaxRetries,
			RetryDelay:      cfg.RetryDelay,
			AzureEndpoint:   cfg.AzureEndpoint,
			AzureAPIVersion: cfg.AzureAPIVersion,
		}), nil

	case "google":
		return google.New(ctx, google.Config{
			APIKey:       cfg.APIKey,
			DefaultModel: cfg.DefaultModel,
			MaxRetries:   cfg.MaxRetries,
			RetryDelay:   cfg.RetryDelay,
		})

	case "bedrock":
		return bedrock.New(ctx, bedrock.Config{
			Region:          cfg.AWSRegion,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretKey,
			SessionToken:    cfg.AWSSessionToken,
			DefaultModel:    cfg.DefaultModel,
			MaxRetries:      cfg.MaxRetries,
			RetryDelay:      cfg.RetryDelay,
		})

	case "cohere":
		return cohere.New(cohere.Config{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.DefaultModel,
			MaxRetries:   cfg.MaxRetries,
			RetryDelay:   cfg.RetryDelay,
		})

	case "mock":
		if cfg.MockScriptPath != "" {
			return mockprovider.NewFromYAML(cfg.MockScriptPath)
		}
		return mockprovider.New(mockprovider.Turn{Text: "this node is running against the mock provider"}), nil

	default:
		return nil, fmt.Errorf("unknown provider kind %q", cfg.Kind)
	}
}
