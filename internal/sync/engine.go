package sync

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/identity-sync/internal/domain"
	"github.com/spec-kit/identity-sync/internal/events"
	"github.com/spec-kit/identity-sync/internal/observability"
	"github.com/spec-kit/identity-sync/pkg/util"
)

// Options carries the reconciliation configuration. Groups are processed in
// the order given.
type Options struct {
	Groups               []string
	GroupPrefix          string
	EnrollmentGroupEmail string
	EnrollmentGroupName  string
	ManagedIDPattern     string
}

// Result summarizes one pass.
type Result struct {
	PassID             string
	DryRun             bool
	GroupsProcessed    int
	GroupsSkipped      int
	UsersCreated       int
	UsersUpdated       int
	UsersOffboarded    int
	GroupsCreated      int
	MembershipsAdded   int
	MembershipsRemoved int
	EnrollmentAdds     int
	EnrollmentRemoves  int
	MembersSkipped     int
	UnmanagedIgnored   int
	Errors             []error
	Duration           time.Duration
}

// Stats converts the result into the metrics representation.
func (r *Result) Stats() observability.PassStats {
	return observability.PassStats{
		PassID:             r.PassID,
		DryRun:             r.DryRun,
		GroupsProcessed:    r.GroupsProcessed,
		GroupsSkipped:      r.GroupsSkipped,
		UsersCreated:       r.UsersCreated,
		UsersUpdated:       r.UsersUpdated,
		UsersOffboarded:    r.UsersOffboarded,
		GroupsCreated:      r.GroupsCreated,
		MembershipsAdded:   r.MembershipsAdded,
		MembershipsRemoved: r.MembershipsRemoved,
		EnrollmentChanges:  r.EnrollmentAdds + r.EnrollmentRemoves,
		MembersSkipped:     r.MembersSkipped,
		UnmanagedIgnored:   r.UnmanagedIgnored,
		Errors:             len(r.Errors),
		Duration:           r.Duration,
	}
}

// Engine reconciles source group membership and enrollment state into the
// target identity system over four phases: seed, discover, offboard, and
// steady-state enrollment refresh.
type Engine struct {
	source     SourceDirectory
	target     TargetDirectory
	exec       *Executor
	opts       Options
	managedID  *regexp.Regexp
	logger     *zap.Logger
	dispatcher events.Dispatcher
}

// NewEngine creates a sync engine. The dispatcher may be nil.
func NewEngine(source SourceDirectory, target TargetDirectory, exec *Executor, opts Options, logger *zap.Logger, dispatcher events.Dispatcher) (*Engine, error) {
	managedID, err := regexp.Compile(opts.ManagedIDPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid managed id pattern: %w", err)
	}
	return &Engine{
		source:     source,
		target:     target,
		exec:       exec,
		opts:       opts,
		managedID:  managedID,
		logger:     logger,
		dispatcher: dispatcher,
	}, nil
}

// Run executes one full pass. Only credential failures, a missing
// enrollment group, and a failed seed abort the pass; group- and
// member-level failures are logged, collected, and skipped.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	res := &Result{
		PassID: uuid.NewString(),
		DryRun: e.exec.DryRun(),
	}

	e.logger.Info("starting reconciliation pass",
		zap.String("pass_id", res.PassID),
		zap.Int("tracked_groups", len(e.opts.Groups)),
		zap.Bool("dry_run", res.DryRun),
	)

	if err := e.ensureEnrollmentGroup(ctx); err != nil {
		return nil, fmt.Errorf("ensure enrollment group: %w", err)
	}

	store := NewRecordStore()
	if err := e.seed(ctx, store, res); err != nil {
		return nil, fmt.Errorf("seed records: %w", err)
	}

	for _, groupEmail := range e.opts.Groups {
		if err := e.discoverGroup(ctx, store, groupEmail, res); err != nil {
			if util.IsAuth(err) {
				return nil, err
			}
			e.logger.Error("skipping group", zap.String("group", groupEmail), zap.Error(err))
			res.Errors = append(res.Errors, fmt.Errorf("group %s: %w", groupEmail, err))
			res.GroupsSkipped++
			continue
		}
		res.GroupsProcessed++
	}

	for _, rec := range store.Offboardable() {
		if err := e.offboard(ctx, rec, res); err != nil {
			if util.IsAuth(err) {
				return nil, err
			}
			res.Errors = append(res.Errors, fmt.Errorf("offboard %s: %w", rec.SourceID, err))
		}
	}

	for _, rec := range store.All() {
		if !rec.Managed || !rec.CurrentlyPresent || rec.enrollmentFresh || rec.TargetID == "" {
			continue
		}
		if err := e.refreshEnrollment(ctx, rec, res); err != nil {
			if util.IsAuth(err) {
				return nil, err
			}
			res.Errors = append(res.Errors, fmt.Errorf("enrollment %s: %w", rec.SourceID, err))
		}
	}

	res.Duration = time.Since(start)
	e.publish(ctx, res, events.EventPassCompleted, events.PassCompletedPayload{
		GroupsProcessed: res.GroupsProcessed,
		UsersCreated:    res.UsersCreated,
		UsersUpdated:    res.UsersUpdated,
		UsersOffboarded: res.UsersOffboarded,
		Errors:          len(res.Errors),
		Duration:        res.Duration,
	})

	e.logger.Info("reconciliation pass completed",
		zap.String("pass_id", res.PassID),
		zap.Int("groups_processed", res.GroupsProcessed),
		zap.Int("users_created", res.UsersCreated),
		zap.Int("users_updated", res.UsersUpdated),
		zap.Int("users_offboarded", res.UsersOffboarded),
		zap.Int("members_skipped", res.MembersSkipped),
		zap.Int("errors", len(res.Errors)),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

// ensureEnrollmentGroup verifies the synthetic enrollment group exists,
// creating it if needed. Failure is fatal for the pass: enrollment cannot be
// reconciled without it.
func (e *Engine) ensureEnrollmentGroup(ctx context.Context) error {
	exists, err := e.source.HasGroup(ctx, e.opts.EnrollmentGroupEmail)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return e.exec.Apply("create enrollment group", func() error {
		err := e.source.CreateGroup(ctx, e.opts.EnrollmentGroupEmail, e.opts.EnrollmentGroupName)
		if util.IsConflict(err) {
			return nil
		}
		return err
	}, zap.String("group", e.opts.EnrollmentGroupEmail))
}

// seed loads every known target user into the record store (Phase A).
// Users without an external id, or whose external id does not match the
// managed format, are never mutated.
func (e *Engine) seed(ctx context.Context, store *RecordStore, res *Result) error {
	users, err := e.target.ListUsers(ctx)
	if err != nil {
		return err
	}
	for _, tu := range users {
		if tu.ExternalID == "" {
			e.logger.Debug("ignoring unmanaged target user", zap.String("username", tu.UserName))
			res.UnmanagedIgnored++
			continue
		}
		managed := e.managedID.MatchString(tu.ExternalID)
		if !managed {
			e.logger.Info("ignoring unmanaged target user",
				zap.String("username", tu.UserName),
				zap.String("external_id", tu.ExternalID),
			)
			res.UnmanagedIgnored++
		}
		store.SeedTarget(tu, managed)
	}
	e.logger.Info("seeded records from target", zap.Int("records", store.Len()))
	return nil
}

// discoverGroup processes one tracked group (Phase B): ensure the prefixed
// target group, then upsert each member, add its membership, and reconcile
// enrollment inline.
func (e *Engine) discoverGroup(ctx context.Context, store *RecordStore, groupEmail string, res *Result) error {
	group, err := e.ensureTargetGroup(ctx, e.opts.GroupPrefix+groupEmail, res)
	if err != nil {
		return err
	}

	currentMembers, err := e.target.GroupMembers(ctx, group.ID)
	if err != nil {
		if util.IsAuth(err) {
			return err
		}
		// Membership adds are idempotent, so a failed read only costs
		// redundant add calls.
		e.logger.Warn("could not read target group members", zap.String("group", group.DisplayName), zap.Error(err))
		currentMembers = map[string]struct{}{}
	}

	memberIDs, err := e.source.ListGroupMembers(ctx, groupEmail)
	if err != nil {
		return err
	}
	e.logger.Info("processing tracked group",
		zap.String("group", groupEmail),
		zap.Int("members", len(memberIDs)),
	)

	for _, sourceID := range memberIDs {
		rec := store.Observe(sourceID, groupEmail)

		user, err := e.source.GetUser(ctx, sourceID)
		if err != nil {
			if util.IsAuth(err) {
				return err
			}
			e.logger.Warn("skipping member, source lookup failed", zap.String("source_id", sourceID), zap.Error(err))
			res.MembersSkipped++
			continue
		}
		if user == nil {
			// Incomplete source data; do not mutate target state.
			e.logger.Warn("skipping member, not found in source", zap.String("source_id", sourceID))
			res.MembersSkipped++
			continue
		}

		if err := e.upsertUser(ctx, rec, user, res); err != nil {
			if util.IsAuth(err) {
				return err
			}
			e.logger.Error("skipping member, upsert failed", zap.String("source_id", sourceID), zap.Error(err))
			res.Errors = append(res.Errors, fmt.Errorf("user %s: %w", user.Email, err))
			res.MembersSkipped++
			continue
		}

		if _, present := currentMembers[rec.TargetID]; !present {
			err := e.exec.Apply("add group membership", func() error {
				return e.target.AddGroupMember(ctx, group.ID, rec.TargetID)
			}, zap.String("group", group.DisplayName), zap.String("username", rec.Username))
			if err != nil {
				if util.IsAuth(err) {
					return err
				}
				res.Errors = append(res.Errors, fmt.Errorf("membership %s in %s: %w", user.Email, group.DisplayName, err))
				continue
			}
			res.MembershipsAdded++
		}

		if err := e.refreshEnrollment(ctx, rec, res); err != nil {
			if util.IsAuth(err) {
				return err
			}
			res.Errors = append(res.Errors, fmt.Errorf("enrollment %s: %w", user.Email, err))
		}
	}
	return nil
}

// ensureTargetGroup looks up the prefixed group by display name and creates
// it when absent. A create conflict means another writer won the race; the
// existing group is re-fetched.
func (e *Engine) ensureTargetGroup(ctx context.Context, name string, res *Result) (*domain.TargetGroup, error) {
	group, err := e.target.FindGroupByDisplayName(ctx, name)
	if err != nil {
		return nil, err
	}
	if group != nil {
		return group, nil
	}

	id, err := e.exec.ApplyID("create target group", "dryrun-group:"+name, func() (string, error) {
		created, err := e.target.CreateGroup(ctx, name)
		if err == nil {
			return created.ID, nil
		}
		if util.IsConflict(err) {
			existing, findErr := e.target.FindGroupByDisplayName(ctx, name)
			if findErr == nil && existing != nil {
				return existing.ID, nil
			}
		}
		return "", err
	}, zap.String("group", name))
	if err != nil {
		return nil, err
	}
	res.GroupsCreated++
	return &domain.TargetGroup{ID: id, DisplayName: name}, nil
}

// upsertUser creates or updates the target user for a discovered member and
// marks the record managed with its target id.
func (e *Engine) upsertUser(ctx context.Context, rec *Record, user *domain.SourceUser, res *Result) error {
	existing, err := e.target.FindUserByExternalID(ctx, user.ID)
	if err != nil {
		return err
	}

	if existing == nil {
		id, err := e.exec.ApplyID("create target user", "dryrun-user:"+user.ID, func() (string, error) {
			created, err := e.target.CreateUser(ctx, user)
			if err == nil {
				return created.ID, nil
			}
			if util.IsConflict(err) {
				winner, findErr := e.target.FindUserByExternalID(ctx, user.ID)
				if findErr == nil && winner != nil {
					return winner.ID, nil
				}
			}
			return "", err
		}, zap.String("username", user.Email))
		if err != nil {
			return err
		}
		rec.TargetID = id
		rec.Username = user.Email
		rec.Active = !user.Suspended
		rec.Managed = true
		res.UsersCreated++
		e.publish(ctx, res, events.EventUserProvisioned, events.UserProvisionedPayload{
			SourceID: user.ID,
			TargetID: id,
			Username: user.Email,
		})
		return nil
	}

	rec.TargetID = existing.ID
	rec.Username = user.Email
	rec.Active = existing.Active
	rec.Managed = true

	if !userNeedsUpdate(existing, user) {
		e.logger.Debug("target user up to date", zap.String("username", user.Email))
		return nil
	}

	err = e.exec.Apply("update target user", func() error {
		return e.target.UpdateUser(ctx, existing.ID, user)
	}, zap.String("username", user.Email))
	if err != nil {
		return err
	}
	rec.Active = !user.Suspended
	res.UsersUpdated++
	e.publish(ctx, res, events.EventUserUpdated, events.UserUpdatedPayload{
		SourceID: user.ID,
		TargetID: existing.ID,
		Username: user.Email,
	})
	return nil
}

// offboard tears down a user that left every tracked group (Phase C):
// remove prefixed memberships, suspend, then unconditionally drop the
// enrollment-group membership. Offboarding overrides enrollment.
func (e *Engine) offboard(ctx context.Context, rec *Record, res *Result) error {
	e.logger.Info("offboarding user, no longer in any tracked group",
		zap.String("username", rec.Username),
		zap.String("source_id", rec.SourceID),
	)

	removed := 0
	for _, ref := range rec.seededGroups {
		if !strings.HasPrefix(ref.Display, e.opts.GroupPrefix) {
			continue
		}
		err := e.exec.Apply("remove group membership", func() error {
			return e.target.RemoveGroupMember(ctx, ref.ID, rec.TargetID)
		}, zap.String("group", ref.Display), zap.String("username", rec.Username))
		if err != nil {
			if util.IsAuth(err) {
				return err
			}
			res.Errors = append(res.Errors, fmt.Errorf("remove %s from %s: %w", rec.Username, ref.Display, err))
			continue
		}
		removed++
		res.MembershipsRemoved++
	}

	if rec.Active {
		err := e.exec.Apply("suspend target user", func() error {
			return e.target.SetUserActive(ctx, rec.TargetID, false)
		}, zap.String("username", rec.Username))
		if err != nil {
			return err
		}
		rec.Active = false
	}

	err := e.exec.Apply("remove enrollment membership", func() error {
		return e.source.SetEnrollmentMembership(ctx, e.opts.EnrollmentGroupEmail, rec.Username, false)
	}, zap.String("username", rec.Username))
	if err != nil {
		return err
	}
	res.EnrollmentRemoves++
	rec.enrollmentFresh = true

	res.UsersOffboarded++
	e.publish(ctx, res, events.EventUserOffboarded, events.UserOffboardedPayload{
		SourceID:      rec.SourceID,
		TargetID:      rec.TargetID,
		Username:      rec.Username,
		GroupsRemoved: removed,
	})
	return nil
}

// refreshEnrollment queries the enrollment subsystem and reconciles the
// synthetic group for one record. Runs for every managed record every pass,
// independent of membership changes.
func (e *Engine) refreshEnrollment(ctx context.Context, rec *Record, res *Result) error {
	rec.enrollmentFresh = true

	enrolled, err := e.target.EnrollmentStatus(ctx, rec.TargetID)
	if err != nil {
		return err
	}

	err = e.exec.Apply("set enrollment membership", func() error {
		return e.source.SetEnrollmentMembership(ctx, e.opts.EnrollmentGroupEmail, rec.Username, enrolled)
	}, zap.String("username", rec.Username), zap.Bool("enrolled", enrolled))
	if err != nil {
		return err
	}
	if enrolled {
		res.EnrollmentAdds++
	} else {
		res.EnrollmentRemoves++
	}
	e.publish(ctx, res, events.EventEnrollmentChanged, events.EnrollmentChangedPayload{
		SourceID: rec.SourceID,
		Username: rec.Username,
		Enrolled: enrolled,
	})
	return nil
}

func userNeedsUpdate(existing *domain.TargetUser, user *domain.SourceUser) bool {
	return existing.UserName != user.Email ||
		existing.GivenName != user.GivenName ||
		existing.FamilyName != user.FamilyName ||
		existing.Active != !user.Suspended
}

func (e *Engine) publish(ctx context.Context, res *Result, eventType events.EventType, payload interface{}) {
	if e.dispatcher == nil {
		return
	}
	_ = e.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		PassID:    res.PassID,
		DryRun:    res.DryRun,
		Timestamp: time.Now(),
		Payload:   payload,
	})
}
