package curated

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/ethereum-phunks/phunk-indexer/internal/adapter"
)

// Registry defines the interface for curated allow-list lookups
type Registry interface {
	// Contains checks if the given hash id is on the allow-list
	Contains(hashID string) bool

	// Size returns the number of allow-list entries
	Size() int
}

// ListData represents the structure of the curated list file: either a bare
// JSON array of hash ids or an object with an "items" array
type ListData struct {
	Items []string `json:"items"`
}

// registry is the internal implementation of Registry
type registry struct {
	// Fast lookup set of normalized entries
	entries map[string]bool
}

// Loader loads a curated registry from a JSON file
type Loader struct {
	fs   adapter.FileSystem
	json adapter.JSON
}

// NewLoader creates a new curated registry loader
func NewLoader(fs adapter.FileSystem, json adapter.JSON) *Loader {
	return &Loader{fs: fs, json: json}
}

// Load reads and indexes the curated list. Matching is tolerant of letter
// case and embedded whitespace on both sides.
func (l *Loader) Load(filePath string) (Registry, error) {
	data, err := l.fs.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read curated list file: %w", err)
	}

	var items []string
	if err := l.json.Unmarshal(data, &items); err != nil {
		var wrapped ListData
		if err := l.json.Unmarshal(data, &wrapped); err != nil {
			return nil, fmt.Errorf("failed to parse curated list JSON: %w", err)
		}
		items = wrapped.Items
	}

	reg := &registry{entries: make(map[string]bool, len(items))}
	for _, item := range items {
		normalized := Normalize(item)
		if normalized == "" {
			continue
		}
		reg.entries[normalized] = true
	}

	return reg, nil
}

// Contains checks if the given hash id is on the allow-list
func (r *registry) Contains(hashID string) bool {
	if r == nil {
		return false
	}
	return r.entries[Normalize(hashID)]
}

// Size returns the number of allow-list entries
func (r *registry) Size() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}

// Normalize lowercases an entry and strips all whitespace, so semantically
// identical payloads compare equal regardless of formatting
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
