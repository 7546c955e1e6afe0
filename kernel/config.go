package kernel

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tailored-agentic-units/chainspeak/agent"
	"github.com/tailored-agentic-units/chainspeak/gateway"
	"github.com/tailored-agentic-units/chainspeak/hub"
	"github.com/tailored-agentic-units/chainspeak/notify"
	"github.com/tailored-agentic-units/chainspeak/session"
	"github.com/tailored-agentic-units/chainspeak/store"
)

// DefaultSystemPrompt is the assistant persona sent ahead of every prompt.
const DefaultSystemPrompt = `You are Lyra, an 18-year-old female AI assistant. You speak cheerfully but respectfully, and you are very eager to help the user with anything related to Chainspeak. Whenever you need to perform an action (e.g. fetch data, translate a phrase, run a Chainspeak function), you choose from the Chainspeak toolset. Refer to yourself as "Lyra" (not "ChatGPT") and always maintain the persona of a friendly, knowledgeable, 18-year-old girl.`

// DefaultApology is sent to the user when a turn fails.
const DefaultApology = "😥 Sorry, something went wrong. Please try again later."

// Config holds initialization parameters for all kernel subsystems.
// Each subsystem section delegates to that subsystem's config-driven constructor.
type Config struct {
	Agent        agent.Config   `json:"agent"`
	Session      session.Config `json:"session"`
	Store        store.Config   `json:"store"`
	Notify       notify.Config  `json:"notify"`
	Hub          hub.Config     `json:"hub"`
	Gateway      gateway.Config `json:"gateway"`
	SystemPrompt string         `json:"system_prompt,omitempty"`
	Apology      string         `json:"apology,omitempty"`
	Observer     string         `json:"observer,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults for all subsystems.
func DefaultConfig() Config {
	return Config{
		Agent:        agent.DefaultConfig(),
		Session:      session.DefaultConfig(),
		Store:        store.DefaultConfig(),
		Notify:       notify.DefaultConfig(),
		Hub:          hub.DefaultConfig(),
		Gateway:      gateway.DefaultConfig(),
		SystemPrompt: DefaultSystemPrompt,
		Apology:      DefaultApology,
		Observer:     "slog",
	}
}

// Merge applies non-zero values from source into c, delegating to each
// subsystem's Merge method.
func (c *Config) Merge(source *Config) {
	c.Agent.Merge(&source.Agent)
	c.Session.Merge(&source.Session)
	c.Store.Merge(&source.Store)
	c.Notify.Merge(&source.Notify)
	c.Hub.Merge(&source.Hub)
	c.Gateway.Merge(&source.Gateway)

	if source.SystemPrompt != "" {
		c.SystemPrompt = source.SystemPrompt
	}
	if source.Apology != "" {
		c.Apology = source.Apology
	}
	if source.Observer != "" {
		c.Observer = source.Observer
	}
}

// LoadConfig reads a JSON config file, merges it with defaults, and returns
// the resulting Config.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}
