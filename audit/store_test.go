package audit

import (
	"testing"

	"github.com/jxucoder/prewarm/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordStepAndListForRepo(t *testing.T) {
	s := newTestStore(t)

	s.RecordStep("acme/widget", "conv-1", model.StatusWarming, model.StepQueued, nil)
	s.RecordStep("acme/widget", "conv-1", model.StatusWarming, model.StepCloningRepo, nil)
	errMsg := "boom"
	s.RecordStep("acme/widget", "conv-1", model.StatusError, model.StepError, &errMsg)
	s.RecordStep("other/repo", "conv-2", model.StatusReady, model.StepReady, nil)

	entries, err := s.ListForRepo("acme/widget")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries for acme/widget, got %d", len(entries))
	}
	if entries[0].WarmingStep != string(model.StepQueued) {
		t.Fatalf("expected first entry queued, got %+v", entries[0])
	}
	last := entries[len(entries)-1]
	if last.Status != string(model.StatusError) || last.ErrorMessage != "boom" {
		t.Fatalf("expected terminal error entry, got %+v", last)
	}
}

func TestListForRepoEmptyIsNoError(t *testing.T) {
	s := newTestStore(t)
	entries, err := s.ListForRepo("nothing/here")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(entries))
	}
}
