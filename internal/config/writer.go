package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// atomicWriteYAML marshals doc and writes it to path via a temp file in
// the same directory followed by os.Rename, so readers never observe a
// partially written document. The temp file is removed best-effort on
// any failure, matching spec.md §7's "atomic writers clean up temporary
// files best-effort" policy.
func atomicWriteYAML(path string, doc any) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	return atomicWriteBytes(path, data)
}

func atomicWriteBytes(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed away

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file %s: %w", tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename %s to %s: %w", tmpPath, path, err)
	}
	return nil
}

// WriteSettings atomically rewrites settings.yml.
func WriteSettings(path string, doc SettingsDocument) error {
	return atomicWriteYAML(path, doc)
}

// WriteMangaEquivalents atomically rewrites manga_equivalents.yml. It is
// also used by the metadata coordinator's two-phase-commit catalog
// update (spec.md §4.11/§5): callers read -> plan -> validate -> call
// this.
func WriteMangaEquivalents(path string, doc MangaEquivalentsDocument) error {
	return atomicWriteYAML(path, doc)
}

func WriteSceneTags(path string, doc SceneTagsDocument) error {
	return atomicWriteYAML(path, doc)
}

func WriteSourcePriority(path string, doc SourcePriorityDocument) error {
	return atomicWriteYAML(path, doc)
}

func readYAML(path string, out any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return true, fmt.Errorf("parse %s: %w", path, err)
	}
	return true, nil
}
