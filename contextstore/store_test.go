package contextstore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGetContextNoInit(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	ctx := s.GetContext()
	if !strings.Contains(ctx, "init.md") {
		t.Fatalf("expected missing-init note, got: %s", ctx)
	}
}

func TestUpdateAndGetContext(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Update("read main.go successfully"); err != nil {
		t.Fatal(err)
	}
	ctx := s.GetContext()
	if !strings.Contains(ctx, "read main.go successfully") {
		t.Fatalf("expected observation in context, got: %s", ctx)
	}
}

func TestUpdateRecordsErrors(t *testing.T) {
	dir := t.TempDir()
	s, _ := New(dir)
	if err := s.Update("command failed: file not found"); err != nil {
		t.Fatal(err)
	}
	ctx := s.GetContext()
	if !strings.Contains(ctx, "Important error history") {
		t.Fatalf("expected error history section, got: %s", ctx)
	}
}

func TestSaveLargeOutputDedup(t *testing.T) {
	dir := t.TempDir()
	s, _ := New(dir)
	payload := []byte("a large blob of tool output text")

	p1, err := s.SaveLargeOutput(payload, "output.txt")
	if err != nil {
		t.Fatal(err)
	}
	p2, err := s.SaveLargeOutput(payload, "output.txt")
	if err != nil {
		t.Fatal(err)
	}
	if p1 != p2 {
		t.Fatalf("expected dedup to return same path, got %q and %q", p1, p2)
	}

	entries, _ := os.ReadDir(filepath.Join(dir, ".aacode", "context"))
	count := 0
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "output") {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one archived file, found %d", count)
	}
}

func TestPrioritizeFiles(t *testing.T) {
	files := []string{"notes.txt", "README.md", "main.go", "config.yaml"}
	sorted := PrioritizeFiles(files)
	if sorted[0] != "README.md" {
		t.Fatalf("expected README.md first, got %v", sorted)
	}
}
