package sync

import (
	"errors"
	"testing"

	"go.uber.org/zap"
)

func TestApplyRunsMutationWhenLive(t *testing.T) {
	exec := NewExecutor(false, zap.NewNop())
	ran := false

	err := exec.Apply("test op", func() error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !ran {
		t.Error("mutation did not run in live mode")
	}
	if exec.Mutations() != 1 {
		t.Errorf("Mutations = %d, want 1", exec.Mutations())
	}
}

func TestApplySkipsMutationInDryRun(t *testing.T) {
	exec := NewExecutor(true, zap.NewNop())

	err := exec.Apply("test op", func() error {
		t.Fatal("mutation ran in dry-run mode")
		return nil
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if exec.Mutations() != 0 {
		t.Errorf("Mutations = %d, want 0", exec.Mutations())
	}
}

func TestApplyIDReturnsPlaceholderInDryRun(t *testing.T) {
	exec := NewExecutor(true, zap.NewNop())

	id, err := exec.ApplyID("create thing", "dryrun-user:s1", func() (string, error) {
		return "real-id", nil
	})
	if err != nil {
		t.Fatalf("ApplyID: %v", err)
	}
	if id != "dryrun-user:s1" {
		t.Errorf("id = %q, want placeholder", id)
	}
}

func TestApplyIDPropagatesErrors(t *testing.T) {
	exec := NewExecutor(false, zap.NewNop())
	wantErr := errors.New("create failed")

	_, err := exec.ApplyID("create thing", "unused", func() (string, error) {
		return "", wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want %v", err, wantErr)
	}
}
