package schema

// GraphDefinition is the JSON-serializable workflow graph format. Callers
// supply it when a preset template does not fit; the agent compiles it into
// an executable graph after validation.
type GraphDefinition struct {
	Name     string           `json:"name,omitempty"`
	Entry    string           `json:"entry"`
	Fallback string           `json:"fallback,omitempty"`
	Nodes    []NodeDefinition `json:"nodes"`
	Edges    []EdgeDefinition `json:"edges"`
	Metadata map[string]any   `json:"metadata,omitempty"`
}

// NodeDefinition describes a single node in a graph definition.
type NodeDefinition struct {
	Name       string         `json:"name"`
	Capability string         `json:"capability"`        // registered adapter name
	Params     map[string]any `json:"params,omitempty"`  // capability-specific parameters
	Hooks      []string       `json:"hooks,omitempty"`   // custom handler names resolved from config
	Timeout    string         `json:"timeout,omitempty"` // node-level timeout (e.g. "30s")
}

// EdgeDefinition describes a directed transition between two nodes.
// Predicate absence means the edge is unconditional. OnError marks the edge
// as the failure route out of From; error edges are only considered after a
// failed node execution.
type EdgeDefinition struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Predicate string `json:"predicate,omitempty"`
	Engine    string `json:"engine,omitempty"` // expr (default) | cel
	OnError   bool   `json:"on_error,omitempty"`
}
