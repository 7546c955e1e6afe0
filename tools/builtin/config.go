package builtin

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/tailored-agentic-units/chainspeak/core/protocol"
	"github.com/tailored-agentic-units/chainspeak/store"
	"github.com/tailored-agentic-units/chainspeak/tools"
)

var errMissingKey = errors.New("key is required")

// ConfigKey is the store key of a per-user configuration value.
func ConfigKey(userID, key string) string {
	return userID + ":" + key
}

// EchoText returns its text argument unchanged.
func EchoText() tools.Unit {
	return tools.Unit{
		Tool: &protocol.Tool{
			Name:        "echo_text",
			Description: "Echoes back provided text.",
			Parameters: protocol.ObjectSchema(map[string]any{
				"text": protocol.StringProperty("Text to echo back."),
			}, "text"),
		},
		Handler: func(_ context.Context, call tools.Call) (tools.Result, error) {
			var args struct {
				Text string `json:"text"`
			}
			if err := call.Bind(&args); err != nil {
				return tools.Result{}, err
			}
			return tools.OK(map[string]string{"result": args.Text}), nil
		},
	}
}

// GetConfig reads a configuration value stored for the calling user.
func GetConfig(s *store.Store) tools.Unit {
	return tools.Unit{
		Tool: &protocol.Tool{
			Name:        "get_config",
			Description: "Retrieves stored configuration values.",
			Parameters: protocol.ObjectSchema(map[string]any{
				"key": protocol.StringProperty("Configuration key to retrieve."),
			}, "key"),
		},
		Handler: func(_ context.Context, call tools.Call) (tools.Result, error) {
			var args struct {
				Key string `json:"key"`
			}
			if err := call.Bind(&args); err != nil {
				return tools.Result{}, err
			}
			if args.Key == "" {
				return tools.Result{}, errMissingKey
			}

			value, ok := s.Get(ConfigKey(call.UserID, args.Key))
			if !ok {
				value = json.RawMessage("null")
			}
			return tools.OK(map[string]json.RawMessage{"value": value}), nil
		},
	}
}

// WriteConfig stores a configuration value for the calling user.
func WriteConfig(s *store.Store) tools.Unit {
	return tools.Unit{
		Tool: &protocol.Tool{
			Name:        "write_config",
			Description: "Stores a configuration value for a given key.",
			Parameters: protocol.ObjectSchema(map[string]any{
				"key":   protocol.StringProperty("Configuration key to set."),
				"value": protocol.StringProperty("Configuration value to store."),
			}, "key", "value"),
		},
		Handler: func(ctx context.Context, call tools.Call) (tools.Result, error) {
			var args struct {
				Key   string `json:"key"`
				Value string `json:"value"`
			}
			if err := call.Bind(&args); err != nil {
				return tools.Result{}, err
			}
			if args.Key == "" {
				return tools.Result{}, errMissingKey
			}

			if err := s.Set(ctx, ConfigKey(call.UserID, args.Key), args.Value); err != nil {
				return tools.Result{}, err
			}
			return tools.OK(map[string]string{"value": args.Value}), nil
		},
	}
}
