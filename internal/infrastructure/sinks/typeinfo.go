package sinks

// ConfigField describes one configuration key a sink type reads.
type ConfigField struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // "string", "number", "bool", "duration", "list", "object"
	Required    bool   `json:"required"`
	Description string `json:"description"`
	Example     string `json:"example,omitempty"`
}

// SinkTypeInfo describes a sink type and the configuration it expects.
// Exposed via GET /api/sinks/info and GET /api/sinks/types/:type.
type SinkTypeInfo struct {
	Type        string        `json:"type"`
	Description string        `json:"description"`
	Fields      []ConfigField `json:"fields"`
}
