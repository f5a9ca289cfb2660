package openaicompat

import "time"

// NewOllama builds a Driver against a local Ollama instance, which speaks
// the OpenAI chat-completions wire format but needs no API key.
func NewOllama(baseURL, defaultModel string) *Driver {
	if baseURL == "" {
		baseURL = "http://localhost:11434/v1"
	}
	return New(Config{
		BaseURL:      baseURL,
		DefaultModel: defaultModel,
		ProviderName: "ollama",
	})
}

// NewOpenRouter builds a Driver against OpenRouter's OpenAI-compatible
// aggregation endpoint.
func NewOpenRouter(apiKey, defaultModel string) *Driver {
	return New(Config{
		APIKey:       apiKey,
		BaseURL:      "https://openrouter.ai/api/v1",
		DefaultModel: defaultModel,
		ProviderName: "openrouter",
		MaxRetries:   3,
		RetryDelay:   time.Second,
	})
}

// NewAzure builds a Driver against an Azure OpenAI deployment. Azure uses
// api-key header auth and an api-version query parameter rather than a
// bearer token; defaultModel should be the deployment name.
func NewAzure(apiKey, endpoint, apiVersion, defaultModel string) *Driver {
	if apiVersion == "" {
		apiVersion = "2024-02-15-preview"
	}
	return New(Config{
		APIKey:          apiKey,
		AzureEndpoint:   endpoint,
		AzureAPIVersion: apiVersion,
		DefaultModel:    defaultModel,
		ProviderName:    "azure",
		MaxRetries:      3,
		RetryDelay:      time.Second,
	})
}
