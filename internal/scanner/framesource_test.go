package scanner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDirSource_ConsumesOldestFirst(t *testing.T) {
	dir := t.TempDir()
	src, err := NewDirSource(filepath.Join(dir, "frames"))
	if err != nil {
		t.Fatalf("NewDirSource: %v", err)
	}

	spool := filepath.Join(dir, "frames")
	if err := os.WriteFile(filepath.Join(spool, "frame_0002.jpg"), []byte("second"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(spool, "frame_0001.jpg"), []byte("first"), 0o644); err != nil {
		t.Fatal(err)
	}

	frame, err := src.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if string(frame) != "first" {
		t.Errorf("got %q, want the oldest frame first", frame)
	}

	frame, err = src.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if string(frame) != "second" {
		t.Errorf("got %q, want second", frame)
	}

	if _, err := src.Next(context.Background()); !errors.Is(err, ErrNoFrame) {
		t.Errorf("empty spool should return ErrNoFrame, got %v", err)
	}
}

func TestDirSource_CreatesSpoolDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "frames")
	if _, err := NewDirSource(dir); err != nil {
		t.Fatalf("NewDirSource: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("spool dir not created: %v", err)
	}
}
