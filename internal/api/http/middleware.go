package http

import (
	"context"
	"errors"
	"runtime/debug"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/identity-sync/internal/observability"
	"github.com/spec-kit/identity-sync/internal/service"
	"github.com/spec-kit/identity-sync/pkg/util"
)

// RegisterMiddlewares attaches global middlewares such as error handling and logging.
func RegisterMiddlewares(app *fiber.App, logger *zap.Logger, metrics *observability.Metrics, timeout time.Duration) {
	if timeout > 0 {
		app.Use(requestTimeoutMiddleware(timeout))
	}
	app.Use(errorHandlingMiddleware(logger, metrics))
	app.Use(observability.RequestLogger(logger, metrics))
}

func requestTimeoutMiddleware(timeout time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}

func errorHandlingMiddleware(logger *zap.Logger, metrics *observability.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
				err = util.NewOpError(util.KindInternal, "admin.request", "internal error", nil)
			}
			if err != nil {
				status, code, message := mapError(err)
				if metrics != nil {
					metrics.RecordError(c.Path(), c.Method(), code)
				}
				if status >= 500 {
					logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
				}
				c.Status(status)
				_ = c.JSON(fiber.Map{"error": fiber.Map{
					"code":    code,
					"message": message,
				}})
				err = nil
			}
		}()
		return c.Next()
	}
}

// mapError translates service and client failures into admin API responses.
func mapError(err error) (status int, code, message string) {
	switch {
	case errors.Is(err, service.ErrPassInProgress):
		return fiber.StatusConflict, "PASS_IN_PROGRESS", err.Error()
	case errors.Is(err, service.ErrPassLocked):
		return fiber.StatusConflict, "PASS_LOCKED", err.Error()
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr.Code, "REQUEST_FAILED", fiberErr.Message
	}

	var opErr *util.OpError
	if errors.As(err, &opErr) {
		return util.HTTPStatus(err), string(opErr.Kind), opErr.Message
	}
	return fiber.StatusInternalServerError, "INTERNAL", "internal error"
}
