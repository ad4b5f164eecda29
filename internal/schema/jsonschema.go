package schema

// JSONSchema combines the listing and entity fragments into the object
// schema sent to the model. Internal fields are left out and a
// field_confidence object is added.
func (r *Registry) JSONSchema() map[string]any {
	props := make(map[string]any)
	confProps := make(map[string]any)
	for _, f := range r.ExtractableFields() {
		prop := kindSchema(f.Kind)
		prop["description"] = f.Description
		props[f.Name] = prop
		confProps[f.Name] = map[string]any{"type": "number", "minimum": 0, "maximum": 1}
	}
	props["field_confidence"] = map[string]any{
		"type":        "object",
		"description": "Confidence between 0 and 1 for every field you filled in",
		"properties":  confProps,
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
	}
}

func kindSchema(k Kind) map[string]any {
	switch k {
	case KindStringList:
		return map[string]any{"type": []any{"array", "null"}, "items": map[string]any{"type": "string"}}
	case KindObject:
		return map[string]any{"type": []any{"object", "null"}}
	default:
		return map[string]any{"type": []any{string(k), "null"}}
	}
}
