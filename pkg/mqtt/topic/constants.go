package topic

// Standard MQTT wildcard definitions. Device topics are matched exactly, so
// neither may appear in a topic table.
const (
	// Wildcard is the single-level wildcard "+".
	Wildcard = "+"

	// MultiWildcard is the multi-level wildcard "#".
	MultiWildcard = "#"
)
