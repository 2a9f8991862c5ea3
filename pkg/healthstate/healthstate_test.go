package healthstate_test

import (
	"testing"

	"afc-coordinator/pkg/healthstate"
)

func TestState_StartsServing(t *testing.T) {
	s := healthstate.New()
	if !s.IsServing() {
		t.Error("expected new State to start Serving")
	}
	if s.Reason() != "" {
		t.Errorf("expected empty reason, got %q", s.Reason())
	}
}

func TestState_MarkNotServing(t *testing.T) {
	s := healthstate.New()
	s.MarkNotServing("precomputer loop panicked")

	if s.IsServing() {
		t.Error("expected State to report NotServing")
	}
	if got := s.Reason(); got != "precomputer loop panicked" {
		t.Errorf("expected reason to be recorded, got %q", got)
	}
}

func TestState_MarkServingClearsReason(t *testing.T) {
	s := healthstate.New()
	s.MarkNotServing("boom")
	s.MarkServing()

	if !s.IsServing() {
		t.Error("expected State to report Serving again")
	}
	if s.Reason() != "" {
		t.Errorf("expected reason cleared, got %q", s.Reason())
	}
}
