package gateway

// Config holds gateway parameters.
type Config struct {
	Addr           string `json:"addr,omitempty"`
	SendBuffer     int    `json:"send_buffer,omitempty"`      // frames queued per websocket client
	MaxMessageSize int64  `json:"max_message_size,omitempty"` // bytes per inbound websocket frame
}

// DefaultConfig returns the default gateway configuration.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		SendBuffer:     64,
		MaxMessageSize: 32768,
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Addr != "" {
		c.Addr = source.Addr
	}
	if source.SendBuffer > 0 {
		c.SendBuffer = source.SendBuffer
	}
	if source.MaxMessageSize > 0 {
		c.MaxMessageSize = source.MaxMessageSize
	}
}
