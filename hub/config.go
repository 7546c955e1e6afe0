package hub

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration is a time.Duration that reads and writes JSON as a duration
// string ("5m", "30s").
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Config holds hub parameters.
type Config struct {
	Name              string   `json:"name,omitempty"`
	ChannelBufferSize int      `json:"channel_buffer_size,omitempty"`
	IdleTimeout       Duration `json:"idle_timeout,omitempty"`
	ShutdownTimeout   Duration `json:"shutdown_timeout,omitempty"`
}

// DefaultConfig returns the default hub configuration.
func DefaultConfig() Config {
	return Config{
		Name:              "inbound",
		ChannelBufferSize: 32,
		IdleTimeout:       Duration(5 * time.Minute),
		ShutdownTimeout:   Duration(30 * time.Second),
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Name != "" {
		c.Name = source.Name
	}
	if source.ChannelBufferSize > 0 {
		c.ChannelBufferSize = source.ChannelBufferSize
	}
	if source.IdleTimeout > 0 {
		c.IdleTimeout = source.IdleTimeout
	}
	if source.ShutdownTimeout > 0 {
		c.ShutdownTimeout = source.ShutdownTimeout
	}
}
