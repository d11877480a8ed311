package provenance

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// renameFunc is replaceable so tests can simulate a failed rename.
var renameFunc = os.Rename

// Write serializes step to path in one pass. The file is written to a
// temporary sibling, synced and renamed over any previous provenance file.
func Write(path string, step Step) error {
	data, err := json.MarshalIndent(step, "", "    ")
	if err != nil {
		return fmt.Errorf("encode provenance: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("create provenance directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".provenance-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write provenance: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync provenance: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close provenance: %w", err)
	}
	if err := renameFunc(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// Read loads a provenance file.
func Read(path string) (Step, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path is built from the output layout
	if err != nil {
		return Step{}, fmt.Errorf("read provenance: %w", err)
	}
	var step Step
	if err := json.Unmarshal(data, &step); err != nil {
		return Step{}, fmt.Errorf("decode provenance: %w", err)
	}
	return step, nil
}
