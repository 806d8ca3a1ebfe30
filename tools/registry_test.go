package tools

import (
	"context"
	"strings"
	"testing"
)

func testSchema() Schema {
	return Schema{
		Name:        "read_file",
		Description: "Read the contents of a file for inspection.",
		Parameters: []Parameter{
			{Name: "path", Type: TypeString, Required: true, Description: "file path", Aliases: []string{"filepath", "file_path"}},
			{Name: "limit", Type: TypeInt, Description: "max lines"},
		},
	}
}

func TestValidateMissingRequired(t *testing.T) {
	s := testSchema()
	valid, errMsg, _ := s.Validate(map[string]any{})
	if valid {
		t.Fatal("expected validation to fail for missing required param")
	}
	if !strings.Contains(errMsg, "path") {
		t.Fatalf("expected error to mention missing param, got %q", errMsg)
	}
}

func TestValidateAliasResolution(t *testing.T) {
	s := testSchema()
	valid, _, _ := s.Validate(map[string]any{"filepath": "a.go"})
	if !valid {
		t.Fatal("expected alias 'filepath' to satisfy required 'path'")
	}
}

func TestValidateUnknownParamWarns(t *testing.T) {
	s := testSchema()
	valid, _, warning := s.Validate(map[string]any{"path": "a.go", "limti": 5})
	if !valid {
		t.Fatal("unknown params should not block validation")
	}
	if warning == "" {
		t.Fatal("expected a warning about the unrecognized parameter")
	}
}

func TestValidateTypeMismatch(t *testing.T) {
	s := testSchema()
	valid, errMsg, _ := s.Validate(map[string]any{"path": 5})
	if valid {
		t.Fatal("expected type mismatch to fail validation")
	}
	if !strings.Contains(errMsg, "path") {
		t.Fatalf("expected error to name the bad param, got %q", errMsg)
	}
}

func TestNormalizeParams(t *testing.T) {
	s := testSchema()
	out := s.NormalizeParams(map[string]any{"file_path": "a.go"})
	if out["path"] != "a.go" {
		t.Fatalf("expected alias normalized to path, got %v", out)
	}
}

func TestToolNotFoundSuggestsSimilar(t *testing.T) {
	r := New()
	r.Register(testSchema(), func(ctx context.Context, params map[string]any) (Result, error) {
		return Result{Success: true}, nil
	})
	r.Register(WriteSchema, func(ctx context.Context, params map[string]any) (Result, error) {
		return Result{Success: true}, nil
	})

	_, errMsg, _ := r.ValidateCall("read_fil", map[string]any{"path": "a.go"})
	if !strings.Contains(errMsg, "read_file") {
		t.Fatalf("expected a suggestion for the near-miss tool name, got %q", errMsg)
	}
	if !strings.Contains(errMsg, "可用工具列表") {
		t.Fatalf("expected the full tool listing in the error, got %q", errMsg)
	}
}

func TestExecuteNormalizesBeforeDispatch(t *testing.T) {
	r := New()
	var seen map[string]any
	r.Register(testSchema(), func(ctx context.Context, params map[string]any) (Result, error) {
		seen = params
		return Result{Success: true}, nil
	})

	_, err := r.Execute(context.Background(), "read_file", map[string]any{"filepath": "a.go"})
	if err != nil {
		t.Fatal(err)
	}
	if seen["path"] != "a.go" {
		t.Fatalf("expected alias normalized before dispatch, got %v", seen)
	}
}
