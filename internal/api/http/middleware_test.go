package http

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/identity-sync/internal/observability"
	"github.com/spec-kit/identity-sync/internal/service"
	"github.com/spec-kit/identity-sync/pkg/util"
)

func newTestApp(metrics *observability.Metrics) *fiber.App {
	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), metrics, 0)
	app.Get("/busy", func(c *fiber.Ctx) error {
		return service.ErrPassInProgress
	})
	app.Get("/upstream-down", func(c *fiber.Ctx) error {
		return util.NewTransport("scim.list_users", nil)
	})
	app.Get("/forbidden", func(c *fiber.Ctx) error {
		return util.NewAuth("admin.auth", nil)
	})
	app.Get("/ok", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	return app
}

func TestErrorMiddlewareStatusCodes(t *testing.T) {
	cases := []struct {
		path string
		want int
	}{
		{"/busy", fiber.StatusConflict},
		{"/upstream-down", fiber.StatusBadGateway},
		{"/forbidden", fiber.StatusUnauthorized},
		{"/ok", fiber.StatusOK},
	}

	app := newTestApp(observability.NewMetrics())
	for _, tc := range cases {
		resp, err := app.Test(httptest.NewRequest("GET", tc.path, nil))
		if err != nil {
			t.Fatalf("GET %s: %v", tc.path, err)
		}
		if resp.StatusCode != tc.want {
			t.Errorf("GET %s = %d, want %d", tc.path, resp.StatusCode, tc.want)
		}
	}
}

func TestErrorMiddlewareCountsFailures(t *testing.T) {
	metrics := observability.NewMetrics()
	app := newTestApp(metrics)

	if _, err := app.Test(httptest.NewRequest("GET", "/busy", nil)); err != nil {
		t.Fatal(err)
	}

	snap := metrics.GetSnapshot()
	if snap.RequestFailures["/busy|GET|PASS_IN_PROGRESS"] != 1 {
		t.Errorf("request failures = %v", snap.RequestFailures)
	}
}
