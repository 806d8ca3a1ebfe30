package todo

import (
	"os"
	"strings"
	"testing"
)

func TestCreateAddCompleteFlow(t *testing.T) {
	dir := t.TempDir()
	m, err := New(dir, 20)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := m.CreateTodoList("build a widget", "widget"); err != nil {
		t.Fatal(err)
	}

	if err := m.AddTodoItem("write the parser", PriorityHigh, "impl"); err != nil {
		t.Fatal(err)
	}

	ok, err := m.MarkTodoCompleted("write the parser")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected item to be marked completed")
	}

	data, _ := readFile(t, m.CurrentFile())
	if !strings.Contains(data, "- [x]") {
		t.Fatalf("expected a completed checkbox, got:\n%s", data)
	}
	if strings.Count(data, "write the parser") < 2 {
		t.Fatalf("expected completed item to appear in both Pending (toggled) and Completed sections, got:\n%s", data)
	}
}

func TestAddExecutionRecordCap(t *testing.T) {
	dir := t.TempDir()
	m, _ := New(dir, 3)
	m.CreateTodoList("task", "proj")

	for i := 0; i < 10; i++ {
		if err := m.AddExecutionRecord("record entry"); err != nil {
			t.Fatal(err)
		}
	}

	data, _ := readFile(t, m.CurrentFile())
	count := strings.Count(data, "record entry")
	if count != 3 {
		t.Fatalf("expected record cap of 3, got %d", count)
	}
}

func TestUpdateTodoItemPreservesPriority(t *testing.T) {
	dir := t.TempDir()
	m, _ := New(dir, 20)
	m.CreateTodoList("task", "proj")
	m.AddTodoItem("old text", PriorityHigh, "impl")

	ok, err := m.UpdateTodoItem("old text", "new text")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected update to succeed")
	}

	data, _ := readFile(t, m.CurrentFile())
	if !strings.Contains(data, "new text") {
		t.Fatalf("expected updated text, got:\n%s", data)
	}
	if !strings.Contains(data, "**impl**") {
		t.Fatalf("expected category to be preserved, got:\n%s", data)
	}
}

func readFile(t *testing.T, path string) (string, error) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data), nil
}
