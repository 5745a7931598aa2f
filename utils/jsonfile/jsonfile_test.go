package jsonfile

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "doc.json")

	in := map[string]int{"a": 1, "b": 2}
	if err := Write(path, in); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var out map[string]int
	if err := Read(path, &out); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if out["a"] != 1 || out["b"] != 2 {
		t.Errorf("round trip = %v", out)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %d entries", len(entries))
	}
}

func TestReadMissing(t *testing.T) {
	var out map[string]int
	err := Read(filepath.Join(t.TempDir(), "missing.json"), &out)
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist, got %v", err)
	}
}
