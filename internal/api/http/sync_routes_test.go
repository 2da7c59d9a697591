package http

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/identity-sync/internal/api/http/handlers"
	"github.com/spec-kit/identity-sync/internal/observability"
	"github.com/spec-kit/identity-sync/internal/repository"
)

type fakePassRepo struct {
	getErr error
}

func (f *fakePassRepo) RecordPass(context.Context, *repository.PassRecord) error     { return nil }
func (f *fakePassRepo) RecordAction(context.Context, *repository.ActionRecord) error { return nil }

func (f *fakePassRepo) GetPass(context.Context, string) (*repository.PassRecord, error) {
	return nil, f.getErr
}

func (f *fakePassRepo) ListPasses(context.Context, int) ([]repository.PassRecord, error) {
	return nil, nil
}

func (f *fakePassRepo) ListActions(context.Context, string, int) ([]repository.ActionRecord, error) {
	return nil, nil
}

func TestGetPassMapsWrappedNoRowsToNotFound(t *testing.T) {
	repo := &fakePassRepo{getErr: fmt.Errorf("query pass: %w", pgx.ErrNoRows)}
	handler := handlers.NewSyncHandler(nil, repo)

	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), observability.NewMetrics(), 0)
	app.Get("/sync/passes/:id", handler.GetPass)

	resp, err := app.Test(httptest.NewRequest("GET", "/sync/passes/nope", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, fiber.StatusNotFound)
	}
}
