package providers

// CleanSchemaForProvider strips JSON Schema keywords a given provider's tool
// validator rejects or ignores, recursing into nested object/array schemas.
// Gemini is strict about unknown keywords; Anthropic and OpenAI are lenient
// but $schema/additionalProperties add nothing and bloat the request.
func CleanSchemaForProvider(provider string, schema map[string]interface{}) map[string]interface{} {
	if schema == nil {
		return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	}
	return cleanSchemaValue(provider, schema).(map[string]interface{})
}

func cleanSchemaValue(provider string, v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, sub := range val {
			if isDroppedSchemaKey(provider, k) {
				continue
			}
			out[k] = cleanSchemaValue(provider, sub)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, sub := range val {
			out[i] = cleanSchemaValue(provider, sub)
		}
		return out
	default:
		return v
	}
}

func isDroppedSchemaKey(provider, key string) bool {
	switch key {
	case "$schema", "$id", "title":
		return true
	case "additionalProperties":
		// Gemini rejects this keyword outright; other providers tolerate it
		// but it doesn't affect validation, so drop it everywhere for parity.
		return true
	case "format":
		// Gemini only recognizes a handful of string formats and 400s on
		// anything else a tool schema might declare (e.g. "uri", "email").
		return provider == "gemini" || provider == "openrouter"
	}
	return false
}

// CleanToolSchemas converts our internal ToolDefinition list into the
// OpenAI-compatible wire format, cleaning each tool's parameter schema for
// the target provider along the way.
func CleanToolSchemas(provider string, tools []ToolDefinition) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(tools))
	for _, t := range tools {
		out = append(out, map[string]interface{}{
			"type": "function",
			"function": map[string]interface{}{
				"name":        t.Function.Name,
				"description": t.Function.Description,
				"parameters":  CleanSchemaForProvider(provider, t.Function.Parameters),
			},
		})
	}
	return out
}
