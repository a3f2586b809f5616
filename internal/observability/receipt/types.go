// Package receipt writes one audit record per ruleforge command run.
package receipt

// SchemaVersion of the receipt document
const SchemaVersion = "1.0"

// Receipt is the evidence left behind by a command.
type Receipt struct {
	SchemaVersion string             `json:"schema_version"`
	OpID          string             `json:"op_id"`
	TsStart       string             `json:"ts_start"`
	TsEnd         string             `json:"ts_end"`
	Command       string             `json:"command"`
	Args          []string           `json:"args"`
	ArgsRedacted  bool               `json:"args_redacted,omitempty"`
	Result        Result             `json:"result"`
	Inputs        []FileRef          `json:"inputs,omitempty"`
	Output        *FileRef           `json:"output,omitempty"`
	Generation    *GenerationSummary `json:"generation,omitempty"`
	Merge         *MergeSummary      `json:"merge,omitempty"`
	Health        *HealthSummary     `json:"health,omitempty"`
	Diff          *DiffSummary       `json:"diff,omitempty"`
}

// Result status is "success" or "fail".
type Result struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// FileRef pins a file the command read or wrote.
type FileRef struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256,omitempty"`
}

type GenerationSummary struct {
	Artifacts      int `json:"artifacts"`
	PublisherRules int `json:"publisher_rules"`
	HashRules      int `json:"hash_rules"`
	PathRules      int `json:"path_rules"`
	Skipped        int `json:"skipped"`
	Duplicates     int `json:"duplicates"`
	Errors         int `json:"errors"`
}

type MergeSummary struct {
	Strategy  string `json:"strategy"`
	Added     int    `json:"added"`
	Replaced  int    `json:"replaced"`
	Discarded int    `json:"discarded"`
	Errors    int    `json:"errors"`
}

type HealthSummary struct {
	Checks   string `json:"checks,omitempty"` // preset name or file
	Score    int    `json:"score"`
	Status   string `json:"status"`
	Critical int    `json:"critical"`
	Warning  int    `json:"warning"`
	Info     int    `json:"info"`
}

type DiffSummary struct {
	NewItems     int    `json:"new_items,omitempty"`
	RemovedItems int    `json:"removed_items,omitempty"`
	Changes      int    `json:"changes,omitempty"`
	MaxSeverity  string `json:"max_severity,omitempty"`
}
