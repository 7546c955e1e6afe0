package session

// DefaultGreeting is sent to a user on first contact.
const DefaultGreeting = "👋 Hello! I’m your assistant. How can I help you today?"

// Config holds session management parameters.
type Config struct {
	MaxHistory int    `json:"max_history,omitempty"`
	KeyPrefix  string `json:"key_prefix,omitempty"`
	Greeting   string `json:"greeting,omitempty"`
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		MaxHistory: 20,
		KeyPrefix:  "session:",
		Greeting:   DefaultGreeting,
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.MaxHistory > 0 {
		c.MaxHistory = source.MaxHistory
	}
	if source.KeyPrefix != "" {
		c.KeyPrefix = source.KeyPrefix
	}
	if source.Greeting != "" {
		c.Greeting = source.Greeting
	}
}

// Key returns the store key of a user's session.
func (c *Config) Key(userID string) string {
	return c.KeyPrefix + userID
}
