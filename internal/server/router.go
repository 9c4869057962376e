package server

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/blobfetch/internal/cachekey"
	"github.com/any-hub/blobfetch/internal/fetcherr"
	"github.com/any-hub/blobfetch/internal/logging"
	"github.com/any-hub/blobfetch/internal/server/routes"
)

// AppOptions controls how the Fiber application should behave on a specific port.
type AppOptions struct {
	Logger     *logrus.Logger
	Service    *Service
	ListenPort int
}

const contextKeyRequestID = "_blobfetch_request_id"

// prefetchRequest 是 POST /prefetch 的请求体。
type prefetchRequest struct {
	Entries []cachekey.FileID `json:"entries"`
	Force   bool              `json:"force"`
}

// NewApp builds a Fiber application with request-id/access-log middleware,
// the prefetch endpoint and the /-/ diagnostics.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Service == nil {
		return nil, errors.New("fetch service is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware(opts.Logger))

	app.Post("/prefetch", prefetchHandler(opts.Service, opts.Logger))
	routes.RegisterDiagnosticRoutes(app, opts.Service)

	return app, nil
}

// requestContextMiddleware 负责生成请求 ID，并在请求结束后输出访问日志。
func requestContextMiddleware(logger *logrus.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)

		err := c.Next()

		status := c.Response().StatusCode()
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}
		logger.WithFields(logging.RequestFields(reqID, c.Method(), c.Path(), status)).Debug("http_request")
		return err
	}
}

func prefetchHandler(svc *Service, logger *logrus.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		var req prefetchRequest
		if err := json.Unmarshal(c.Body(), &req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   "invalid_request",
				"message": err.Error(),
			})
		}

		stats, err := svc.Prefetch(c.Context(), req.Entries, req.Force)
		if err != nil {
			logger.WithError(err).
				WithFields(logrus.Fields{"action": "prefetch", "request_id": RequestID(c), "requested": len(req.Entries)}).
				Warn("prefetch_request_failed")
			return renderFetchError(c, err)
		}

		return c.JSON(fiber.Map{
			"requested": len(req.Entries),
			"stats":     stats,
		})
	}
}

// renderFetchError 把 fetch 错误映射为 HTTP 状态：对端或缓存层问题为 502，其余为 500。
func renderFetchError(c fiber.Ctx, err error) error {
	if count, ok := fetcherr.UnavailableCount(err); ok {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":   "unavailable",
			"count":   count,
			"message": err.Error(),
		})
	}
	if fetcherr.IsProtocol(err) {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":   "protocol_error",
			"message": err.Error(),
		})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error":   "internal_error",
		"message": err.Error(),
	})
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}
