package artifact

import (
	"strings"

	"github.com/ruleforge/ruleforge/internal/models"
)

// DedupeByPath keeps the first artifact per normalized path. Artifacts with an
// empty path are never collapsed; they survive flagged with EmptyPath.
func DedupeByPath(in []models.Artifact) ([]models.Artifact, int) {
	return dedupe(in, func(a *models.Artifact) (string, bool) {
		key := PathKey(a.Path)
		if key == "" {
			a.EmptyPath = true
			return "", false
		}
		return key, true
	})
}

// DedupeByHash keeps the first artifact per content hash. Artifacts without a
// hash always survive.
func DedupeByHash(in []models.Artifact) ([]models.Artifact, int) {
	return dedupe(in, func(a *models.Artifact) (string, bool) {
		h := models.NormalizeHash(a.Hash)
		return h, h != ""
	})
}

// DedupeByPublisherName keeps the first artifact per (publisher pattern, name).
// Artifacts without a resolvable publisher always survive.
func DedupeByPublisherName(in []models.Artifact) ([]models.Artifact, int) {
	return dedupe(in, func(a *models.Artifact) (string, bool) {
		pub := ExtractPublisher(a.Publisher)
		if pub == nil {
			return "", false
		}
		return strings.ToLower(*pub) + "\x00" + strings.ToLower(a.Name), true
	})
}

// dedupe is first-seen-wins; keyFn returns false for artifacts that are never collapsed.
func dedupe(in []models.Artifact, keyFn func(*models.Artifact) (string, bool)) ([]models.Artifact, int) {
	out := make([]models.Artifact, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	dupes := 0
	for _, a := range in {
		key, ok := keyFn(&a)
		if ok {
			if _, dup := seen[key]; dup {
				dupes++
				continue
			}
			seen[key] = struct{}{}
		}
		out = append(out, a)
	}
	return out, dupes
}
