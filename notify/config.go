package notify

// Config holds outbound delivery parameters.
type Config struct {
	Domain        string  `json:"domain,omitempty"`
	RatePerSecond float64 `json:"rate_per_second,omitempty"` // negative disables throttling; 0 keeps the default
	Burst         int     `json:"burst,omitempty"`
}

// DefaultConfig returns the default delivery configuration.
func DefaultConfig() Config {
	return Config{
		Domain:        "c.us",
		RatePerSecond: 1,
		Burst:         5,
	}
}

// Merge applies non-zero values from source into c. A negative
// RatePerSecond is kept so it can switch throttling off.
func (c *Config) Merge(source *Config) {
	if source.Domain != "" {
		c.Domain = source.Domain
	}
	if source.RatePerSecond != 0 {
		c.RatePerSecond = source.RatePerSecond
	}
	if source.Burst > 0 {
		c.Burst = source.Burst
	}
}

// Wrap applies the configured throttling to n.
func (c *Config) Wrap(n Notifier) Notifier {
	if c.RatePerSecond <= 0 {
		return n
	}
	return NewRateLimited(n, c.RatePerSecond, c.Burst)
}
