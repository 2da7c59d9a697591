package domain

// SourceUser is an immutable snapshot of a user as reported by the source
// directory. Produced by the source client per call; never mutated.
type SourceUser struct {
	ID         string
	Email      string
	GivenName  string
	FamilyName string
	Suspended  bool
}

// GroupRef points at a target group a user belongs to.
type GroupRef struct {
	ID      string
	Display string
}

// TargetUser is a user as stored in the target identity system.
// ExternalID joins back to SourceUser.ID; a TargetUser whose ExternalID is
// empty or does not match the managed-id format is unmanaged and must never
// be mutated by the engine.
type TargetUser struct {
	ID         string
	ExternalID string
	UserName   string
	GivenName  string
	FamilyName string
	Active     bool
	Groups     []GroupRef
}

// TargetGroup is a group in the target identity system. DisplayName is
// deterministically derived as prefix + source group email, so lookups key
// on the name and repeated passes never create duplicates.
type TargetGroup struct {
	ID          string
	DisplayName string
}
