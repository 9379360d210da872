package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/kestrelapp/kestrel-sync/internal/model"
)

// fileSnapshots is the CLI's learning-snapshot port: the learning
// services drop their exported blob at <data-dir>/learning.json and
// pick restored blobs up from the same place. The engine never looks
// inside it.
type fileSnapshots struct {
	path string
}

// ExportSnapshot reads the snapshot file. A missing file means the
// learning services have nothing to persist yet; that is not an error.
func (f *fileSnapshots) ExportSnapshot() (*model.LearningSnapshot, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read learning snapshot: %w", err)
	}

	var snap model.LearningSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse learning snapshot: %w", err)
	}

	return &snap, nil
}

// ImportSnapshot writes a restored snapshot back for the learning
// services to consume.
func (f *fileSnapshots) ImportSnapshot(snap *model.LearningSnapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal learning snapshot: %w", err)
	}

	if err := os.WriteFile(f.path, data, 0644); err != nil {
		return fmt.Errorf("write learning snapshot: %w", err)
	}

	return nil
}
