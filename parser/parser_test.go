package parser

import "testing"

func TestParseJSONFence(t *testing.T) {
	resp := "Here's my plan.\n```json\n{\"thought\": \"need to check the file\", \"actions\": [{\"action\": \"read_file\", \"action_input\": {\"path\": \"main.go\"}}]}\n```"
	r := Parse(resp)
	if r.Thought != "need to check the file" {
		t.Fatalf("unexpected thought: %q", r.Thought)
	}
	if len(r.Actions) != 1 || r.Actions[0].Action != "read_file" {
		t.Fatalf("unexpected actions: %+v", r.Actions)
	}
	if r.Actions[0].Input["path"] != "main.go" {
		t.Fatalf("unexpected input: %+v", r.Actions[0].Input)
	}
}

func TestParseSingleActionCompatField(t *testing.T) {
	resp := `{"thought": "single action form", "action": "run_shell", "action_input": {"command": "ls"}}`
	r := Parse(resp)
	if len(r.Actions) != 1 || r.Actions[0].Action != "run_shell" {
		t.Fatalf("unexpected actions: %+v", r.Actions)
	}
}

func TestParseLabeledText(t *testing.T) {
	resp := "Thought: I should list the directory first\nAction: list_dir\nAction Input: {\"path\": \".\"}\n"
	r := Parse(resp)
	if r.Thought != "I should list the directory first" {
		t.Fatalf("unexpected thought: %q", r.Thought)
	}
	if len(r.Actions) != 1 || r.Actions[0].Action != "list_dir" {
		t.Fatalf("unexpected actions: %+v", r.Actions)
	}
}

func TestParseLabeledTrailingComma(t *testing.T) {
	resp := "Thought: fix trailing comma\nAction: write_file\nAction Input: {\"path\": \"a.txt\", \"content\": \"hi\",}\n"
	r := Parse(resp)
	if len(r.Actions) != 1 {
		t.Fatalf("expected one action, got %+v", r.Actions)
	}
	if r.Actions[0].Input["content"] != "hi" {
		t.Fatalf("unexpected input: %+v", r.Actions[0].Input)
	}
}

func TestParseMultipleActions(t *testing.T) {
	resp := "Thought: do two things\nAction 1: read_file\nAction Input 1: {\"path\": \"a.txt\"}\nAction 2: read_file\nAction Input 2: {\"path\": \"b.txt\"}\n"
	r := Parse(resp)
	if len(r.Actions) != 2 {
		t.Fatalf("expected 2 actions, got %+v", r.Actions)
	}
}

func TestParseMalformedActionInput(t *testing.T) {
	resp := "Thought: oops\nAction: read_file\nAction Input: {path: a.txt}\n"
	r := Parse(resp)
	if len(r.Actions) != 1 {
		t.Fatalf("expected one action even with bad json, got %+v", r.Actions)
	}
	if _, ok := r.Actions[0].Input["_error"]; !ok {
		t.Fatalf("expected _error key for malformed JSON, got %+v", r.Actions[0].Input)
	}
}

func TestParseFallbackNoStructure(t *testing.T) {
	resp := "I am just thinking out loud with no structured action at all."
	r := Parse(resp)
	if len(r.Actions) != 0 {
		t.Fatalf("expected no actions, got %+v", r.Actions)
	}
	if r.Thought == "" {
		t.Fatal("expected fallback thought to be non-empty")
	}
}

func TestParseNonJSONKeyValueInput(t *testing.T) {
	resp := "Thought: key value style\nAction: run_shell\nAction Input: command=ls, cwd=/tmp\n"
	r := Parse(resp)
	if len(r.Actions) != 1 {
		t.Fatalf("expected one action, got %+v", r.Actions)
	}
	if r.Actions[0].Input["command"] != "ls" {
		t.Fatalf("unexpected input: %+v", r.Actions[0].Input)
	}
}
