package protocol

// Tool defines a function that can be called by the model.
// Parameters uses JSON Schema format to describe the function's input.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ObjectSchema builds a closed JSON-schema object
// ({type: object, properties, required, additionalProperties: false}).
func ObjectSchema(properties map[string]any, required ...string) map[string]any {
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}
}

// StringProperty describes a string-typed schema property.
func StringProperty(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}
