package agent

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestDispatchSubtaskRunsAndReportsStatus(t *testing.T) {
	caller := &scriptedCaller{responses: []string{
		`{"thought":"subtask done"}`,
		"YES",
	}}
	d, dir := newTestDriver(t, caller)
	d.EnableSubtasks(dir)

	res, err := d.registry.Execute(context.Background(), "dispatch_subtask", map[string]any{"task": "do a small thing"})
	if err != nil || !res.Success {
		t.Fatalf("expected dispatch to succeed, got %+v err=%v", res, err)
	}
	id, _ := res.Extra["id"].(string)
	if id == "" {
		t.Fatal("expected a subtask id in Extra")
	}

	var status string
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		out, err := d.registry.Execute(context.Background(), "check_subtask_status", map[string]any{"id": id})
		if err != nil || !out.Success {
			t.Fatalf("expected status check to succeed, got %+v err=%v", out, err)
		}
		status = out.Output
		if !strings.Contains(status, "status: running") {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if strings.Contains(status, "status: running") {
		t.Fatal("expected subtask to finish within the deadline")
	}
	if err := d.WaitForSubtasks(); err != nil {
		t.Fatalf("expected WaitForSubtasks to succeed, got %v", err)
	}
}

func TestCheckSubtaskStatusRejectsUnknownID(t *testing.T) {
	d, dir := newTestDriver(t, &scriptedCaller{})
	d.EnableSubtasks(dir)

	res, err := d.registry.Execute(context.Background(), "check_subtask_status", map[string]any{"id": "nope"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Fatal("expected an unknown subtask id to fail")
	}
}
