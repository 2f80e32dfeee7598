package storage

import (
	"strings"

	"github.com/google/uuid"
)

func generateID() string {
	return uuid.NewString()
}

// appendUnique adds id to ids unless it is already present, so replaying a
// back-reference write leaves the set unchanged.
func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

// removeID returns ids without any occurrence of id. A new slice is returned
// so callers working on cloned records never alias the original.
func removeID(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	return out
}

func containsID(ids []string, id string) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}

// uniqueIDs trims ids, drops blanks, and removes duplicates keeping the first
// occurrence.
func uniqueIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		trimmed := strings.TrimSpace(id)
		if trimmed == "" {
			continue
		}
		out = appendUnique(out, trimmed)
	}
	return out
}

func cloneIDs(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return append([]string(nil), ids...)
}
