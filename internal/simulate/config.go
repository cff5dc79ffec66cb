// Package simulate drives a rating engine with synthetic judges whose
// preferences follow hidden strengths, and reports how quickly the
// estimated order recovers the hidden one.
package simulate

import (
	"fmt"
	"time"
)

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL     string        // Base URL of the service when driving it over HTTP
	Collections int           // Number of independent collections
	Items       int           // Items per collection
	Rounds      int           // Judgments per collection
	Checkpoint  int           // Rounds between progress samples; 0 samples only at the end
	Spread      float64       // Standard deviation of hidden strengths
	TieBand     float64       // Width of the probability band judged as a tie
	Scale       float64       // Logistic spread of the simulated judges
	Seed        uint64        // Seed for strengths and judge draws; 0 uses the clock
	Workers     int           // Collections simulated concurrently
	Timeout     time.Duration // HTTP request timeout
	Verbose     bool          // Log every checkpoint
}

// DefaultConfig returns a small, quick simulation.
func DefaultConfig() Config {
	return Config{
		BaseURL:     "http://localhost:9080",
		Collections: 3,
		Items:       20,
		Rounds:      600,
		Checkpoint:  100,
		Spread:      200,
		TieBand:     0.1,
		Scale:       480,
		Workers:     3,
		Timeout:     10 * time.Second,
	}
}

// Validate rejects configurations that cannot run.
func (c Config) Validate() error {
	switch {
	case c.Collections < 1:
		return fmt.Errorf("%w: collections must be at least 1", ErrInvalidConfig)
	case c.Items < 2:
		return fmt.Errorf("%w: items must be at least 2", ErrInvalidConfig)
	case c.Rounds < 1:
		return fmt.Errorf("%w: rounds must be at least 1", ErrInvalidConfig)
	case c.Checkpoint < 0:
		return fmt.Errorf("%w: checkpoint must not be negative", ErrInvalidConfig)
	case c.TieBand < 0 || c.TieBand >= 1:
		return fmt.Errorf("%w: tie band must be within [0,1)", ErrInvalidConfig)
	case c.Scale <= 0:
		return fmt.Errorf("%w: scale must be positive", ErrInvalidConfig)
	case c.Workers < 1:
		return fmt.Errorf("%w: workers must be at least 1", ErrInvalidConfig)
	}
	return nil
}

// Item is a synthetic item with the strength judges secretly use.
type Item struct {
	ID       string  `json:"id"`
	Strength float64 `json:"strength"`
}

// Checkpoint is one progress sample of a collection.
type Checkpoint struct {
	Round       int     `json:"round"`
	Convergence float64 `json:"convergence"`
	Spearman    float64 `json:"spearman"`
}

// CollectionReport summarises one simulated collection.
type CollectionReport struct {
	Collection  string       `json:"collection"`
	Items       int          `json:"items"`
	Judgments   int          `json:"judgments"`
	Ties        int          `json:"ties"`
	Explore     int          `json:"explore"`
	Failed      int          `json:"failed"`
	Checkpoints []Checkpoint `json:"checkpoints"`
	Final       Checkpoint   `json:"final"`
}

// Report is the result of a simulation run.
type Report struct {
	Collections []CollectionReport `json:"collections"`
	Duration    time.Duration      `json:"duration"`
}

// MeanSpearman averages the final rank correlation over collections.
func (r Report) MeanSpearman() float64 {
	if len(r.Collections) == 0 {
		return 0
	}
	var sum float64
	for _, c := range r.Collections {
		sum += c.Final.Spearman
	}
	return sum / float64(len(r.Collections))
}
