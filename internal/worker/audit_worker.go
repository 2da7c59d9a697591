package worker

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/identity-sync/internal/events"
	"github.com/spec-kit/identity-sync/internal/repository"
)

// AuditWorker turns pass events into audit rows. A nil repository disables
// persistence; events are then only logged.
type AuditWorker struct {
	repo   repository.PassRepository
	logger *zap.Logger
}

// NewAuditWorker creates an audit worker.
func NewAuditWorker(repo repository.PassRepository, logger *zap.Logger) *AuditWorker {
	return &AuditWorker{repo: repo, logger: logger}
}

// Register subscribes the worker to every per-user event type.
func (w *AuditWorker) Register(dispatcher events.Dispatcher) {
	if dispatcher == nil {
		return
	}
	dispatcher.Subscribe(events.EventUserProvisioned, w.handle("user_provisioned"))
	dispatcher.Subscribe(events.EventUserUpdated, w.handle("user_updated"))
	dispatcher.Subscribe(events.EventUserOffboarded, w.handle("user_offboarded"))
	dispatcher.Subscribe(events.EventEnrollmentChanged, w.handle("enrollment_changed"))
}

func (w *AuditWorker) handle(action string) events.EventHandler {
	return func(ctx context.Context, event events.Event) error {
		sourceID, targetID, username := identityFields(event.Payload)
		w.logger.Debug("audit event",
			zap.String("action", action),
			zap.String("pass_id", event.PassID),
			zap.String("username", username),
		)
		if w.repo == nil {
			return nil
		}

		detail, err := json.Marshal(event.Payload)
		if err != nil {
			w.logger.Warn("could not encode audit payload", zap.String("action", action), zap.Error(err))
			detail = nil
		}

		rec := &repository.ActionRecord{
			ID:       uuid.NewString(),
			PassID:   event.PassID,
			Action:   action,
			SourceID: sourceID,
			TargetID: targetID,
			Username: username,
			DryRun:   event.DryRun,
			Detail:   detail,
		}
		if err := w.repo.RecordAction(ctx, rec); err != nil {
			w.logger.Warn("could not persist audit action",
				zap.String("action", action),
				zap.String("pass_id", event.PassID),
				zap.Error(err),
			)
		}
		return nil
	}
}

func identityFields(payload interface{}) (sourceID, targetID, username string) {
	switch p := payload.(type) {
	case events.UserProvisionedPayload:
		return p.SourceID, p.TargetID, p.Username
	case events.UserUpdatedPayload:
		return p.SourceID, p.TargetID, p.Username
	case events.UserOffboardedPayload:
		return p.SourceID, p.TargetID, p.Username
	case events.EnrollmentChangedPayload:
		return p.SourceID, "", p.Username
	default:
		return "", "", ""
	}
}
