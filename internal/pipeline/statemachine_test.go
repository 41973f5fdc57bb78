package pipeline

import "testing"

func TestStateMachineRunsToTerminal(t *testing.T) {
	m := NewStateMachine[string]("b")
	var entered []string
	m.On("a", func(ctx *RunContext) (string, error) {
		entered = append(entered, "a")
		return "b", nil
	})

	var seen []string
	final, err := m.Run("a", &RunContext{}, func(s string) { seen = append(seen, s) })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if final != "b" {
		t.Errorf("final state = %q, want b", final)
	}
	if len(entered) != 1 {
		t.Errorf("transition ran %d times, want 1", len(entered))
	}
	if len(seen) != 1 || seen[0] != "a" {
		t.Errorf("onEnter calls = %v, want [a]", seen)
	}
}

func TestStateMachineMissingTransitionErrors(t *testing.T) {
	m := NewStateMachine[string]("done")
	m.On("start", func(ctx *RunContext) (string, error) { return "limbo", nil })

	if _, err := m.Run("start", &RunContext{}, nil); err == nil {
		t.Fatal("expected error for unregistered non-terminal state")
	}
}
