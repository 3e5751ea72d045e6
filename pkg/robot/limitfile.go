package robot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultLimitsFile is where calibration writes the limit table.
const DefaultLimitsFile = "so101_limits.json"

// LimitFile stores a LimitTable on disk. Files ending in .yaml or .yml are
// YAML, everything else is JSON.
type LimitFile struct {
	Path string
}

func (f LimitFile) isYAML() bool {
	ext := strings.ToLower(filepath.Ext(f.Path))
	return ext == ".yaml" || ext == ".yml"
}

// Exists reports whether the file is present.
func (f LimitFile) Exists() bool {
	_, err := os.Stat(f.Path)
	return err == nil
}

// Load reads and checks a limit table.
func (f LimitFile) Load() (*LimitTable, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read limit file: %w", err)
	}

	t := &LimitTable{}
	if f.isYAML() {
		err = yaml.Unmarshal(data, t)
	} else {
		err = json.Unmarshal(data, t)
	}
	if err != nil {
		return nil, fmt.Errorf("parse limit file %s: %w", f.Path, err)
	}
	if t.Zero == nil || t.Limits == nil {
		return nil, fmt.Errorf("limit file %s: missing zero or limits", f.Path)
	}
	for id, e := range t.Limits {
		if !e.Valid() {
			return nil, fmt.Errorf("limit file %s: joint %d: min %d > max %d", f.Path, id, e.Min, e.Max)
		}
	}
	return t, nil
}

// Save writes the table as one atomic replacement of the file: readers see
// either the old table or the new one, never a partial write.
func (f LimitFile) Save(t *LimitTable) error {
	var (
		data []byte
		err  error
	)
	if f.isYAML() {
		data, err = yaml.Marshal(t)
	} else {
		data, err = json.MarshalIndent(t, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encode limit table: %w", err)
	}

	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.Path)+"-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	_, err = tmp.Write(data)
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Chmod(tmp.Name(), 0644)
	}
	if err != nil {
		return fmt.Errorf("write limit file: %w", err)
	}

	if err := os.Rename(tmp.Name(), f.Path); err != nil {
		return fmt.Errorf("replace limit file: %w", err)
	}
	return nil
}

// IsNotExist reports whether err means the limit file is missing.
func IsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
