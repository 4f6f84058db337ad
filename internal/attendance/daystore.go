package attendance

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// DayKey formats a wall-clock date as the key used in day file names.
func DayKey(t time.Time) string {
	return t.Format("20060102")
}

// DayStore persists one check-in map per calendar date as a flat JSON object
// of student ID to epoch-second timestamp. The file is shared with the web
// process, which only ever reads it, so every save replaces the file wholesale
// via a temp file and rename.
type DayStore struct {
	dir string
}

// NewDayStore creates a store rooted at dir, creating it if needed.
func NewDayStore(dir string) (*DayStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("attendance dir: %w", err)
	}
	return &DayStore{dir: dir}, nil
}

// Path returns the file backing the given day key.
func (d *DayStore) Path(day string) string {
	return filepath.Join(d.dir, "attendance_"+day+".json")
}

// Load returns the persisted check-in map for the given day key, creating an
// empty persisted map if none exists. A corrupt file degrades to an empty map
// with the error reported to the caller; it is never fatal.
func (d *DayStore) Load(day string) (map[string]int64, error) {
	path := d.Path(day)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		empty := map[string]int64{}
		if werr := d.Save(day, empty); werr != nil {
			return empty, werr
		}
		log.Printf("attendance: created day file for %s", day)
		return empty, nil
	}
	if err != nil {
		return map[string]int64{}, fmt.Errorf("read day file %s: %w", path, err)
	}

	records := map[string]int64{}
	if err := json.Unmarshal(data, &records); err != nil {
		return map[string]int64{}, fmt.Errorf("corrupt day file %s: %w", path, err)
	}
	return records, nil
}

// Save persists the full map for the given day key, replacing prior content.
// The write goes to a temp file in the same directory and is renamed into
// place so a concurrent reader sees either the old or the new content.
func (d *DayStore) Save(day string, records map[string]int64) error {
	if records == nil {
		records = map[string]int64{}
	}
	data, err := json.MarshalIndent(records, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal day %s: %w", day, err)
	}

	tmp, err := os.CreateTemp(d.dir, ".attendance-*.json")
	if err != nil {
		return fmt.Errorf("temp day file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write day file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close day file: %w", err)
	}
	if err := os.Rename(tmp.Name(), d.Path(day)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace day file: %w", err)
	}
	return nil
}
