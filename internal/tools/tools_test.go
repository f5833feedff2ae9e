package tools

import (
	"context"
	"errors"
	"testing"
)

func echoTool(name string) *Tool {
	return &Tool{
		Name:        name,
		Description: "echoes its input",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text": map[string]any{"type": "string"},
			},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			text, _ := args["text"].(string)
			return text, nil
		},
	}
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(echoTool("echo")); err != nil {
		t.Fatalf("first Register() error: %v", err)
	}
	err := r.Register(echoTool("echo"))
	if !errors.Is(err, ErrDuplicateTool) {
		t.Errorf("second Register() = %v, want ErrDuplicateTool", err)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestRegistry_RegisterEmptyName(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&Tool{}); err == nil {
		t.Error("Register() with empty name should fail")
	}
}

func TestRegistry_ListOrder(t *testing.T) {
	r := NewRegistry()
	names := []string{"zulu", "alpha", "mike"}
	for _, n := range names {
		if err := r.Register(echoTool(n)); err != nil {
			t.Fatalf("Register(%s) error: %v", n, err)
		}
	}

	list := r.List()
	if len(list) != len(names) {
		t.Fatalf("List() len = %d, want %d", len(list), len(names))
	}
	for i, want := range names {
		if list[i].Name != want {
			t.Errorf("List()[%d] = %q, want %q (registration order)", i, list[i].Name, want)
		}
	}
}

func TestRegistry_Specs(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(echoTool("echo")); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	specs := r.Specs()
	if len(specs) != 1 {
		t.Fatalf("Specs() len = %d, want 1", len(specs))
	}
	if specs[0]["type"] != "function" {
		t.Errorf("spec type = %v, want function", specs[0]["type"])
	}
	fn, ok := specs[0]["function"].(map[string]any)
	if !ok {
		t.Fatalf("spec function is %T, want map", specs[0]["function"])
	}
	if fn["name"] != "echo" || fn["description"] != "echoes its input" {
		t.Errorf("spec function = %v", fn)
	}
	if fn["parameters"] == nil {
		t.Error("spec function missing parameters schema")
	}
}

func TestRegistry_ExecuteUnknown(t *testing.T) {
	r := NewRegistry()
	_, err := r.Execute(context.Background(), "nope", nil)
	if !errors.Is(err, ErrUnknownTool) {
		t.Errorf("Execute(unknown) = %v, want ErrUnknownTool", err)
	}
}

func TestRegistry_ExecuteWrapsFailure(t *testing.T) {
	r := NewRegistry()
	cause := errors.New("backend down")
	r.MustRegister(&Tool{
		Name:        "flaky",
		Description: "always fails",
		Parameters:  map[string]any{"type": "object"},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return "", cause
		},
	})

	_, err := r.Execute(context.Background(), "flaky", nil)
	var execErr *ExecError
	if !errors.As(err, &execErr) {
		t.Fatalf("Execute() error = %v, want *ExecError", err)
	}
	if execErr.Tool != "flaky" {
		t.Errorf("ExecError.Tool = %q, want flaky", execErr.Tool)
	}
	if !errors.Is(err, cause) {
		t.Error("ExecError should unwrap to the handler's error")
	}
}

func TestRegistry_Execute(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(echoTool("echo"))

	out, err := r.Execute(context.Background(), "echo", map[string]any{"text": "hi there"})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if out != "hi there" {
		t.Errorf("Execute() = %q, want %q", out, "hi there")
	}
}

func TestRegistry_MustRegisterPanics(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(echoTool("echo"))

	defer func() {
		if recover() == nil {
			t.Error("MustRegister() should panic on duplicate")
		}
	}()
	r.MustRegister(echoTool("echo"))
}
