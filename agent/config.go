package agent

import "os"

// ProviderOpenAI selects the OpenAI-compatible chat completions client.
const ProviderOpenAI = "openai"

// Config holds model provider parameters.
type Config struct {
	Provider  string `json:"provider,omitempty"`
	Model     string `json:"model,omitempty"`
	BaseURL   string `json:"base_url,omitempty"`
	APIKey    string `json:"api_key,omitempty"`
	APIKeyEnv string `json:"api_key_env,omitempty"`
}

// DefaultConfig returns the default agent configuration.
func DefaultConfig() Config {
	return Config{
		Provider:  ProviderOpenAI,
		Model:     "gpt-4.1",
		APIKeyEnv: "OPENAI_API_KEY",
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Provider != "" {
		c.Provider = source.Provider
	}
	if source.Model != "" {
		c.Model = source.Model
	}
	if source.BaseURL != "" {
		c.BaseURL = source.BaseURL
	}
	if source.APIKey != "" {
		c.APIKey = source.APIKey
	}
	if source.APIKeyEnv != "" {
		c.APIKeyEnv = source.APIKeyEnv
	}
}

// ResolveAPIKey returns the explicit key, falling back to the environment
// variable named by APIKeyEnv.
func (c *Config) ResolveAPIKey() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	if c.APIKeyEnv != "" {
		return os.Getenv(c.APIKeyEnv)
	}
	return ""
}
