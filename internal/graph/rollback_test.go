package graph

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func TestSnapshotRestoresPreviousContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "task.md")
	if err := os.WriteFile(path, []byte("before"), 0o644); err != nil {
		t.Fatal(err)
	}

	snap, err := Take(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("after"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := snap.Restore(zap.NewNop()); err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "before" {
		t.Errorf("restored content = %q", content)
	}
}

func TestSnapshotOfMissingFileUnlinksOnRestore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.md")

	snap, err := Take(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("created"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := snap.Restore(zap.NewNop()); err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("file created after snapshot survived restore")
	}
}
