package agent

import (
	"reflect"
	"testing"

	"valet/internal/history"
	"valet/internal/llm"
)

func TestAssemble(t *testing.T) {
	hist := []history.Message{
		{Role: history.RoleUser, Content: "hi"},
		{Role: history.RoleAssistant, Content: "hello"},
	}

	got := Assemble("be brief", hist, "what next?")
	want := []llm.Message{
		{Role: llm.RoleSystem, Content: "be brief"},
		{Role: llm.RoleUser, Content: "hi"},
		{Role: llm.RoleAssistant, Content: "hello"},
		{Role: llm.RoleUser, Content: "what next?"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Assemble() = %+v, want %+v", got, want)
	}
}

func TestAssemble_EmptyHistory(t *testing.T) {
	got := Assemble("sys", nil, "q")
	if len(got) != 2 {
		t.Fatalf("len = %d, want system + question", len(got))
	}
	if got[0].Role != llm.RoleSystem || got[1].Role != llm.RoleUser {
		t.Errorf("roles = %q, %q", got[0].Role, got[1].Role)
	}
}

func TestAssemble_Deterministic(t *testing.T) {
	hist := []history.Message{{Role: history.RoleUser, Content: "a"}}
	first := Assemble("sys", hist, "q")
	second := Assemble("sys", hist, "q")
	if !reflect.DeepEqual(first, second) {
		t.Error("Assemble is not deterministic for identical inputs")
	}
}
