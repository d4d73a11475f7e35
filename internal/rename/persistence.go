package rename

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// queueFile is the on-disk shape of the persisted rename queue,
// mirroring the config package's one-document-per-file convention.
type queueFile struct {
	Entries []QueueEntry `yaml:"entries"`
}

// LoadQueueFile reads a persisted queue from path. A missing file is
// not an error: it simply means no renames were pending at last
// shutdown.
func LoadQueueFile(path string) ([]QueueEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read rename queue %s: %w", path, err)
	}
	var doc queueFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse rename queue %s: %w", path, err)
	}
	return doc.Entries, nil
}

// SaveQueueFile atomically rewrites the persisted queue at path (temp
// file + rename), matching the config package's atomic-write discipline
// so a crash mid-write never leaves a half-written queue file.
func SaveQueueFile(path string, entries []QueueEntry) error {
	data, err := yaml.Marshal(queueFile{Entries: entries})
	if err != nil {
		return fmt.Errorf("marshal rename queue: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure rename queue directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp rename queue file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp rename queue file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp rename queue file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp rename queue file to %s: %w", path, err)
	}
	return nil
}
