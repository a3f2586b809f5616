package models

// Artifact one observed file from an inventory scan. Treat as immutable.
type Artifact struct {
	Path      string  `json:"path"`
	Name      string  `json:"name"`
	Publisher *string `json:"publisher,omitempty"`
	Hash      string  `json:"hash,omitempty"`
	Version   string  `json:"version,omitempty"`
	Source    string  `json:"source,omitempty"`
	Size      int64   `json:"size,omitempty"`

	// EmptyPath is set by path deduplication when the artifact had no path to key on.
	EmptyPath bool `json:"emptyPath,omitempty"`
}

// Label identifies the artifact in logs and statistics without exposing its full path.
func (a Artifact) Label() string {
	if a.Name != "" {
		return a.Name
	}
	if a.Hash != "" {
		return a.Hash
	}
	return "(unnamed)"
}
