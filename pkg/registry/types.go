package registry

// KindDescriptor carries everything the client knows about one fullKind
type KindDescriptor struct {
	// Kind is the short resource kind, e.g. "Deployment"
	Kind string `json:"kind"`
	// Plural is the lowercase URL segment, e.g. "deployments"
	Plural string `json:"plural"`
	// Group is the API group, empty for the core group
	Group string `json:"group,omitempty"`
	// Version is the served API version, e.g. "v1"
	Version string `json:"version"`
	// Namespaced reports whether the resource scope includes a namespace
	Namespaced bool `json:"namespaced"`
	// APIPrefix is the absolute base URL up to and including
	// "/api/<v>" or "/apis/<g>/<v>", without a trailing slash
	APIPrefix string `json:"apiPrefix"`
	// Verbs is the verb set the server advertises for the resource
	Verbs []string `json:"verbs,omitempty"`
}

// APIVersion renders the descriptor's group/version the way a resource
// document spells it: "v1" for core, "apps/v1" for grouped kinds.
func (d KindDescriptor) APIVersion() string {
	if d.Group == "" {
		return d.Version
	}
	return d.Group + "/" + d.Version
}

// FullKind builds the registry key for a group and short kind.
// Grouped kinds are qualified as "<group>.<kind>"; core kinds stay bare.
func FullKind(group, kind string) string {
	if group == "" {
		return kind
	}
	return group + "." + kind
}
