package builtin

// Helpers for reading loosely typed node configuration values. Workflow
// definitions arrive as decoded JSON, so numbers may be float64 or int and
// absent keys are common.

func strVal(cfg map[string]any, key string) string {
	if v, ok := cfg[key].(string); ok {
		return v
	}
	return ""
}

func numVal(cfg map[string]any, key string) (float64, bool) {
	switch v := cfg[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func boolVal(cfg map[string]any, key string) bool {
	v, _ := cfg[key].(bool)
	return v
}

func mapVal(cfg map[string]any, key string) map[string]any {
	if v, ok := cfg[key].(map[string]any); ok {
		return v
	}
	return nil
}

func sliceVal(cfg map[string]any, key string) []any {
	if v, ok := cfg[key].([]any); ok {
		return v
	}
	return nil
}
