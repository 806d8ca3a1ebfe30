package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kandada/aacode/safety"
)

func TestReadWriteEditRoundTrip(t *testing.T) {
	dir := t.TempDir()
	write := NewWriteTool(dir)
	read := NewReadTool(dir)
	edit := NewEditTool(dir)

	res, err := write(context.Background(), map[string]any{"path": "a.txt", "content": "hello world\n"})
	if err != nil || !res.Success {
		t.Fatalf("write failed: %v %v", err, res.Error)
	}

	res, err = read(context.Background(), map[string]any{"path": "a.txt"})
	if err != nil || !res.Success {
		t.Fatalf("read failed: %v %v", err, res.Error)
	}
	if res.Output != "hello world\n" {
		t.Fatalf("unexpected content: %q", res.Output)
	}

	res, err = edit(context.Background(), map[string]any{"path": "a.txt", "old_text": "world", "new_text": "go"})
	if err != nil || !res.Success {
		t.Fatalf("edit failed: %v %v", err, res.Error)
	}

	res, _ = read(context.Background(), map[string]any{"path": "a.txt"})
	if res.Output != "hello go\n" {
		t.Fatalf("expected edit applied, got %q", res.Output)
	}
}

func TestReadRejectsPathOutsideProject(t *testing.T) {
	dir := t.TempDir()
	read := NewReadTool(dir)
	res, err := read(context.Background(), map[string]any{"path": "../../etc/passwd"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Fatal("expected path traversal to be rejected")
	}
}

func TestEditRequiresUniqueMatch(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "a.txt"), []byte("foo foo"), 0644)
	edit := NewEditTool(dir)

	res, _ := edit(context.Background(), map[string]any{"path": "a.txt", "old_text": "foo", "new_text": "bar"})
	if res.Success {
		t.Fatal("expected ambiguous match to fail without replace_all")
	}

	res, err := edit(context.Background(), map[string]any{"path": "a.txt", "old_text": "foo", "new_text": "bar", "replace_all": true})
	if err != nil || !res.Success {
		t.Fatalf("expected replace_all to succeed: %v %v", err, res.Error)
	}
}

func TestListDirSkipsDotfiles(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "visible.txt"), []byte("x"), 0644)
	os.WriteFile(filepath.Join(dir, ".hidden"), []byte("x"), 0644)
	os.Mkdir(filepath.Join(dir, "sub"), 0755)

	list := NewListTool(dir)
	res, err := list(context.Background(), map[string]any{})
	if err != nil || !res.Success {
		t.Fatalf("list failed: %v %v", err, res.Error)
	}
	if !strings.Contains(res.Output, "visible.txt") || !strings.Contains(res.Output, "sub/") {
		t.Fatalf("unexpected listing: %q", res.Output)
	}
	if strings.Contains(res.Output, ".hidden") {
		t.Fatalf("expected dotfiles to be skipped: %q", res.Output)
	}
}

func TestGrepSearchFindsMatches(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "a.go"), []byte("func Foo() {}\nfunc bar() {}\n"), 0644)

	grep := NewGrepTool(dir)
	res, err := grep(context.Background(), map[string]any{"pattern": `func [A-Z]\w+`})
	if err != nil || !res.Success {
		t.Fatalf("grep failed: %v %v", err, res.Error)
	}
	if !strings.Contains(res.Output, "a.go:1:func Foo() {}") {
		t.Fatalf("expected a match for Foo, got %q", res.Output)
	}
	if strings.Contains(res.Output, "bar") {
		t.Fatalf("did not expect lowercase match: %q", res.Output)
	}
}

func TestBashToolBlocksDangerousCommand(t *testing.T) {
	dir := t.TempDir()
	guard := safety.New(dir)
	bash := NewBashTool(dir, guard, nil)

	res, err := bash(context.Background(), map[string]any{"command": "rm -rf /"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Fatal("expected dangerous command to be blocked")
	}
}

func TestBashToolRunsSafeCommand(t *testing.T) {
	dir := t.TempDir()
	guard := safety.New(dir)
	bash := NewBashTool(dir, guard, nil)

	res, err := bash(context.Background(), map[string]any{"command": "echo hello"})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || !strings.Contains(res.Output, "hello") {
		t.Fatalf("expected successful echo, got %+v", res)
	}
}

func TestBashToolAsksConfirmationForUnlisted(t *testing.T) {
	dir := t.TempDir()
	guard := safety.New(dir)
	called := false
	confirm := func(cmd string, d safety.Decision) bool {
		called = true
		return true
	}
	bash := NewBashTool(dir, guard, confirm)

	res, err := bash(context.Background(), map[string]any{"command": "sudo reboot"})
	if err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Fatal("expected confirm to be consulted")
	}
	_ = res
}
