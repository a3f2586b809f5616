package models

// SkippedItem why one artifact produced no rule
type SkippedItem struct {
	Identity string `json:"identity"`
	Reason   string `json:"reason"`
}

// GenerationStatistics counters produced alongside every synthesis run
type GenerationStatistics struct {
	PublisherRules int           `json:"publisherRules"`
	HashRules      int           `json:"hashRules"`
	PathRules      int           `json:"pathRules"`
	Skipped        int           `json:"skipped"`
	Errors         int           `json:"errors"`
	Duplicates     int           `json:"duplicates"`
	SkippedItems   []SkippedItem `json:"skippedItems,omitempty"`
}

// RecordRule counts a produced rule by type.
func (s *GenerationStatistics) RecordRule(r Rule) {
	switch r.Type {
	case RuleTypePublisher:
		s.PublisherRules++
	case RuleTypeHash:
		s.HashRules++
	case RuleTypePath:
		s.PathRules++
	}
}

// RecordSkip counts an artifact that yielded no rule.
func (s *GenerationStatistics) RecordSkip(identity, reason string) {
	s.Skipped++
	s.SkippedItems = append(s.SkippedItems, SkippedItem{Identity: identity, Reason: reason})
}

// TotalRules across all types.
func (s GenerationStatistics) TotalRules() int {
	return s.PublisherRules + s.HashRules + s.PathRules
}
