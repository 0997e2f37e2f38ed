package pipeline

import (
	"errors"
	"strings"
	"testing"
)

type state struct {
	ran []string
}

func record(name string) Step[*state] {
	return Func(name, func(s *state) error {
		s.ran = append(s.ran, name)
		return nil
	})
}

func TestExecuteInOrder(t *testing.T) {
	s := &state{}
	p := New[*state](nil).Add(record("load"), record("strip"))
	p.Add(record("write"))

	if err := p.Execute(s); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := strings.Join(s.ran, ","); got != "load,strip,write" {
		t.Fatalf("unexpected execution order: %s", got)
	}
	if got := strings.Join(p.Steps(), ","); got != "load,strip,write" {
		t.Fatalf("unexpected step names: %s", got)
	}
}

func TestExecuteStopsOnError(t *testing.T) {
	s := &state{}
	errBoom := errors.New("boom")
	p := New[*state](nil).Add(
		record("load"),
		Func("rebuild", func(*state) error { return errBoom }),
		record("write"),
	)

	err := p.Execute(s)
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "rebuild: ") {
		t.Fatalf("error should start with the step name, got %q", err)
	}
	if len(s.ran) != 1 {
		t.Fatalf("steps ran after the failure: %v", s.ran)
	}
}
