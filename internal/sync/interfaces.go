package sync

import (
	"context"

	"github.com/spec-kit/identity-sync/internal/domain"
)

// SourceDirectory lists group membership and user attributes from the
// source-of-truth directory, and manages the synthetic enrollment group.
// Reads that can legitimately miss return (zero value, nil); errors carry a
// util.OpError kind.
type SourceDirectory interface {
	// ListGroupMembers returns the member ids of a group, following
	// pagination. A transport failure is an error; an API-level refusal is
	// logged by the client and returns an empty slice.
	ListGroupMembers(ctx context.Context, groupEmail string) ([]string, error)
	// GetUser returns (nil, nil) when the user does not exist.
	GetUser(ctx context.Context, userID string) (*domain.SourceUser, error)
	// HasGroup reports whether a group exists.
	HasGroup(ctx context.Context, groupEmail string) (bool, error)
	// CreateGroup creates a group; creating an existing group succeeds.
	CreateGroup(ctx context.Context, groupEmail, groupName string) error
	// SetEnrollmentMembership adds or removes a member. Removing an absent
	// member or adding a present one is a no-op success.
	SetEnrollmentMembership(ctx context.Context, groupEmail, userEmail string, member bool) error
}

// TargetDirectory is the CRUD surface of the target identity system plus
// its enrollment subsystem. Membership edits are idempotent; a remove of an
// absent member succeeds without mutation.
type TargetDirectory interface {
	// ListUsers returns every user known to the target, managed or not.
	ListUsers(ctx context.Context) ([]*domain.TargetUser, error)
	// FindGroupByDisplayName returns (nil, nil) when absent.
	FindGroupByDisplayName(ctx context.Context, name string) (*domain.TargetGroup, error)
	CreateGroup(ctx context.Context, name string) (*domain.TargetGroup, error)
	// FindUserByExternalID returns (nil, nil) when absent.
	FindUserByExternalID(ctx context.Context, externalID string) (*domain.TargetUser, error)
	CreateUser(ctx context.Context, user *domain.SourceUser) (*domain.TargetUser, error)
	UpdateUser(ctx context.Context, targetID string, user *domain.SourceUser) error
	SetUserActive(ctx context.Context, targetID string, active bool) error
	GroupMembers(ctx context.Context, groupID string) (map[string]struct{}, error)
	AddGroupMember(ctx context.Context, groupID, targetID string) error
	RemoveGroupMember(ctx context.Context, groupID, targetID string) error
	// EnrollmentStatus reports whether the user holds an active credential.
	// Callers restrict lookups to managed ids; an unknown id reads as not
	// enrolled.
	EnrollmentStatus(ctx context.Context, targetID string) (bool, error)
}
