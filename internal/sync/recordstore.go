package sync

import (
	"github.com/spec-kit/identity-sync/internal/domain"
)

// Record aggregates one source user's cross-group state for a single pass.
// Records are rebuilt fresh every pass and updated incrementally as each
// tracked group is processed; membership in multiple groups accumulates.
type Record struct {
	SourceID          string
	TargetID          string
	Username          string
	Active            bool
	TrackedGroups     map[string]struct{}
	PreviouslyManaged bool
	CurrentlyPresent  bool
	Managed           bool

	// seededGroups holds the target memberships known at seed time; the
	// offboarding sweep removes the prefixed ones.
	seededGroups []domain.GroupRef
	// enrollmentFresh is set once enrollment has been reconciled this pass.
	enrollmentFresh bool
}

// RecordStore is the in-memory arena of records keyed by source user id,
// alive for exactly one pass.
type RecordStore struct {
	records map[string]*Record
	order   []string
}

// NewRecordStore creates an empty store.
func NewRecordStore() *RecordStore {
	return &RecordStore{records: make(map[string]*Record)}
}

// SeedTarget registers an existing target user before discovery begins.
// The record starts previously-managed and not currently present; discovery
// flips presence as tracked groups report the user.
func (s *RecordStore) SeedTarget(user *domain.TargetUser, managed bool) *Record {
	rec := &Record{
		SourceID:          user.ExternalID,
		TargetID:          user.ID,
		Username:          user.UserName,
		Active:            user.Active,
		TrackedGroups:     make(map[string]struct{}),
		PreviouslyManaged: true,
		Managed:           managed,
		seededGroups:      user.Groups,
	}
	s.put(rec)
	return rec
}

// Observe records that sourceID appeared in a tracked group this pass,
// creating a fresh record for members unknown at seed time.
func (s *RecordStore) Observe(sourceID, groupEmail string) *Record {
	rec, ok := s.records[sourceID]
	if !ok {
		rec = &Record{
			SourceID:      sourceID,
			TrackedGroups: make(map[string]struct{}),
		}
		s.put(rec)
	}
	rec.TrackedGroups[groupEmail] = struct{}{}
	rec.CurrentlyPresent = true
	return rec
}

// Get returns the record for sourceID, or nil.
func (s *RecordStore) Get(sourceID string) *Record {
	return s.records[sourceID]
}

// All returns every record in insertion order.
func (s *RecordStore) All() []*Record {
	out := make([]*Record, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id])
	}
	return out
}

// Offboardable returns the managed records that were known before the pass
// but did not appear in any tracked group during it.
func (s *RecordStore) Offboardable() []*Record {
	var out []*Record
	for _, rec := range s.All() {
		if rec.Managed && rec.PreviouslyManaged && !rec.CurrentlyPresent {
			out = append(out, rec)
		}
	}
	return out
}

// Len returns the number of records.
func (s *RecordStore) Len() int {
	return len(s.records)
}

func (s *RecordStore) put(rec *Record) {
	if _, exists := s.records[rec.SourceID]; !exists {
		s.order = append(s.order, rec.SourceID)
	}
	s.records[rec.SourceID] = rec
}
