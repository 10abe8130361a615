// Package tools exposes the scheduling and reporting cores to the model as
// named, schema-described functions, filtered by the caller's role.
package tools

// Schema is the JSON Schema of a tool's arguments as sent to the model.
type Schema struct {
	Type        string              `json:"type"`
	Description string              `json:"description,omitempty"`
	Properties  map[string]Property `json:"properties"`
	Required    []string            `json:"required,omitempty"`
}

// Property describes one argument.
type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// ObjectSchema builds an object schema with the given properties.
func ObjectSchema(props map[string]Property, required ...string) Schema {
	if props == nil {
		props = map[string]Property{}
	}
	return Schema{Type: "object", Properties: props, Required: required}
}

func StringProperty(desc string) Property {
	return Property{Type: "string", Description: desc}
}

// Map renders the schema as a plain map for provider SDKs that take
// untyped JSON documents.
func (s Schema) Map() map[string]any {
	props := make(map[string]any, len(s.Properties))
	for name, p := range s.Properties {
		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = append([]string(nil), p.Enum...)
		}
		props[name] = prop
	}
	out := map[string]any{
		"type":       s.Type,
		"properties": props,
	}
	if s.Description != "" {
		out["description"] = s.Description
	}
	if len(s.Required) > 0 {
		out["required"] = append([]string(nil), s.Required...)
	}
	return out
}
