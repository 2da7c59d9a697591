package observability

import (
	"errors"
	"testing"
	"time"
)

func TestRecordPassUpdatesSnapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordPass(PassStats{
		PassID:          "p1",
		GroupsProcessed: 3,
		UsersCreated:    2,
		Duration:        5 * time.Second,
	})

	snap := m.GetSnapshot()
	if snap.PassesTotal != 1 || snap.PassesFailed != 0 {
		t.Errorf("totals = %d/%d, want 1/0", snap.PassesTotal, snap.PassesFailed)
	}
	if snap.LastPass == nil || snap.LastPass.UsersCreated != 2 {
		t.Errorf("LastPass = %+v", snap.LastPass)
	}
	if snap.LastPassAt == nil {
		t.Error("LastPassAt not set")
	}
}

func TestRecordFailedPassKeepsFailureMessage(t *testing.T) {
	m := NewMetrics()
	m.RecordFailedPass(errors.New("seed records: boom"))

	snap := m.GetSnapshot()
	if snap.PassesFailed != 1 {
		t.Errorf("PassesFailed = %d, want 1", snap.PassesFailed)
	}
	if snap.LastFailure != "seed records: boom" {
		t.Errorf("LastFailure = %q", snap.LastFailure)
	}

	m.RecordPass(PassStats{PassID: "p2"})
	if got := m.GetSnapshot().LastFailure; got != "" {
		t.Errorf("LastFailure after success = %q, want empty", got)
	}
}

func TestRequestCounters(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/sync/run", "POST", 200)
	m.RecordRequest("/sync/run", "POST", 200)
	m.RecordError("/sync/run", "POST", "PASS_IN_PROGRESS")

	snap := m.GetSnapshot()
	if snap.RequestCounts["/sync/run|POST|200"] != 2 {
		t.Errorf("request counts = %v", snap.RequestCounts)
	}
	if snap.RequestFailures["/sync/run|POST|PASS_IN_PROGRESS"] != 1 {
		t.Errorf("request failures = %v", snap.RequestFailures)
	}
}
