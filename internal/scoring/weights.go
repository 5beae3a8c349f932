// ABOUTME: Scoring weight table loaded from TOML configuration
// ABOUTME: Keeps the weighted-sum inputs swappable without touching the engine

package scoring

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Weights holds the per-attribute contributions to a lead's score.
type Weights struct {
	QualifyingClaim   int `toml:"qualifying_claim"`
	Eligible          int `toml:"eligible"`
	HighUrgency       int `toml:"high_urgency"`
	DocumentsComplete int `toml:"documents_complete"`
}

// DefaultWeights returns the built-in weight table, used when no weights
// file is configured.
func DefaultWeights() Weights {
	return Weights{
		QualifyingClaim:   50,
		Eligible:          25,
		HighUrgency:       15,
		DocumentsComplete: 10,
	}
}

// LoadWeights reads a weight table from a TOML file. Attributes absent from
// the file contribute zero; a missing file is an error so a typoed path
// doesn't silently zero the funnel.
func LoadWeights(path string) (Weights, error) {
	var w Weights
	data, err := os.ReadFile(path)
	if err != nil {
		return w, fmt.Errorf("reading weights file: %w", err)
	}
	if err := toml.Unmarshal(data, &w); err != nil {
		return w, fmt.Errorf("parsing weights file: %w", err)
	}
	return w, nil
}
