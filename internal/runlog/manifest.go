// Package runlog persists the identifiers a generator run produced, so
// downstream consumers can filter backend data to the current run only.
package runlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
)

// Manifest is the run registry artifact: which customers and clocks belong
// to the run. Downstream consumers use it purely as a membership filter.
type Manifest struct {
	RunID        string    `json:"run_id"`
	RunTimestamp time.Time `json:"run_timestamp"`
	CustomerIDs  []string  `json:"customer_ids"`
	ClockIDs     []string  `json:"clock_ids"`

	customerSet map[string]bool
}

const manifestFile = "run_manifest.json"

// ManifestPath returns the manifest location under configDir.
func ManifestPath(configDir string) string {
	return filepath.Join(configDir, manifestFile)
}

// NewManifest creates a manifest for a fresh run.
func NewManifest(customerIDs, clockIDs []string) *Manifest {
	return &Manifest{
		RunID:        ulid.Make().String(),
		RunTimestamp: time.Now().UTC(),
		CustomerIDs:  customerIDs,
		ClockIDs:     clockIDs,
	}
}

// Save writes the manifest to configDir.
func (m *Manifest) Save(configDir string) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run manifest: %w", err)
	}
	path := ManifestPath(configDir)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write run manifest %s: %w", path, err)
	}
	return nil
}

// Load reads the manifest written by a generator run.
func Load(configDir string) (*Manifest, error) {
	path := ManifestPath(configDir)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read run manifest %s: %w", path, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse run manifest %s: %w", path, err)
	}
	return &m, nil
}

// ContainsCustomer reports whether the customer belongs to this run.
func (m *Manifest) ContainsCustomer(customerID string) bool {
	if m.customerSet == nil {
		m.customerSet = make(map[string]bool, len(m.CustomerIDs))
		for _, id := range m.CustomerIDs {
			m.customerSet[id] = true
		}
	}
	return m.customerSet[customerID]
}
