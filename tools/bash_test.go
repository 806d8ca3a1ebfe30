package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kandada/aacode/safety"
)

func TestBashToolBlocksDangerousCommandWithMandatedPrefix(t *testing.T) {
	dir := t.TempDir()
	guard := safety.New(dir)
	tool := NewBashTool(dir, guard, nil)

	res, err := tool(context.Background(), map[string]any{"command": "rm -rf /"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Fatal("expected a known-destructive command to be blocked")
	}
	if !strings.HasPrefix(res.Error, "命令被安全护栏拒绝") {
		t.Fatalf("expected blocked observation to start with the mandated prefix, got %q", res.Error)
	}
}

func TestBashToolAllowsWarningLevelCommandWithoutConfirmer(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "script.sh"), []byte("#!/bin/sh\n"), 0644); err != nil {
		t.Fatal(err)
	}
	guard := safety.New(dir)
	tool := NewBashTool(dir, guard, nil)

	// chmod 777 is warning-level, not dangerous — spec.md §4.1 says warnings
	// are allowed by default in non-interactive mode, so this must reach
	// actual execution instead of being rejected by the guard.
	res, err := tool(context.Background(), map[string]any{"command": "chmod 777 script.sh"})
	if err != nil {
		t.Fatal(err)
	}
	if strings.HasPrefix(res.Error, "命令被安全护栏拒绝") {
		t.Fatalf("expected warning-level command to bypass the guard without a confirmer, got %q", res.Error)
	}
}
