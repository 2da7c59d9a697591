package sync

import (
	"testing"

	"github.com/spec-kit/identity-sync/internal/domain"
)

func TestSeedThenObserveAccumulatesGroups(t *testing.T) {
	store := NewRecordStore()
	store.SeedTarget(&domain.TargetUser{
		ID:         "t1",
		ExternalID: "s1",
		UserName:   "u1@corp.test",
		Active:     true,
	}, true)

	rec := store.Observe("s1", "eng@corp.test")
	store.Observe("s1", "ops@corp.test")

	if rec != store.Get("s1") {
		t.Fatal("Observe created a second record for a seeded user")
	}
	if len(rec.TrackedGroups) != 2 {
		t.Errorf("TrackedGroups = %d, want 2", len(rec.TrackedGroups))
	}
	if !rec.CurrentlyPresent || !rec.PreviouslyManaged {
		t.Errorf("flags = present:%v previouslyManaged:%v, want both true", rec.CurrentlyPresent, rec.PreviouslyManaged)
	}
}

func TestObserveUnknownMemberStartsFresh(t *testing.T) {
	store := NewRecordStore()
	rec := store.Observe("s9", "eng@corp.test")

	if rec.PreviouslyManaged {
		t.Error("fresh record marked previously managed")
	}
	if !rec.CurrentlyPresent {
		t.Error("observed record not marked present")
	}
	if store.Len() != 1 {
		t.Errorf("Len = %d, want 1", store.Len())
	}
}

func TestOffboardableSelection(t *testing.T) {
	store := NewRecordStore()
	store.SeedTarget(&domain.TargetUser{ID: "t1", ExternalID: "s1", UserName: "gone@corp.test"}, true)
	store.SeedTarget(&domain.TargetUser{ID: "t2", ExternalID: "s2", UserName: "stays@corp.test"}, true)
	store.SeedTarget(&domain.TargetUser{ID: "t3", ExternalID: "manual", UserName: "manual@corp.test"}, false)
	store.Observe("s2", "eng@corp.test")

	offboardable := store.Offboardable()
	if len(offboardable) != 1 {
		t.Fatalf("Offboardable = %d records, want 1", len(offboardable))
	}
	if offboardable[0].SourceID != "s1" {
		t.Errorf("offboardable record = %s, want s1", offboardable[0].SourceID)
	}
}

func TestAllPreservesInsertionOrder(t *testing.T) {
	store := NewRecordStore()
	store.Observe("s3", "eng@corp.test")
	store.Observe("s1", "eng@corp.test")
	store.Observe("s2", "eng@corp.test")

	ids := make([]string, 0, 3)
	for _, rec := range store.All() {
		ids = append(ids, rec.SourceID)
	}
	want := []string{"s3", "s1", "s2"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("All order = %v, want %v", ids, want)
		}
	}
}
