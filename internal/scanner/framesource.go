package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// DirSource reads frames from a spool directory filled by an external
// capture process. Each call consumes the oldest file; an empty directory
// yields ErrNoFrame.
type DirSource struct {
	dir string
}

// NewDirSource creates the source, creating the spool directory if needed.
func NewDirSource(dir string) (*DirSource, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("frame dir: %w", err)
	}
	return &DirSource{dir: dir}, nil
}

// Next returns and removes the oldest spooled frame.
func (d *DirSource) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, fmt.Errorf("read frame dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	if len(names) == 0 {
		return nil, ErrNoFrame
	}
	sort.Strings(names)

	path := filepath.Join(d.dir, names[0])
	frame, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read frame: %w", err)
	}
	if err := os.Remove(path); err != nil {
		return nil, fmt.Errorf("consume frame: %w", err)
	}
	return frame, nil
}
