package server

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/binge-hub/binge-hub/internal/assetcache"
	"github.com/binge-hub/binge-hub/internal/catalog"
	"github.com/binge-hub/binge-hub/internal/logging"
	"github.com/binge-hub/binge-hub/internal/ratings"
)

// ImageResolver 是图片分层缓存对 HTTP 层暴露的最小接口。
type ImageResolver interface {
	Await(ctx context.Context, key string) (*assetcache.Image, error)
	Peek(key string) (*assetcache.Image, bool)
}

// Catalog 提供 genre 表与影片列表，通常由 catalog.Metadata 实现。
type Catalog interface {
	Genres(ctx context.Context) (catalog.GenreLookup, error)
	Movies(ctx context.Context, listID string) ([]catalog.Movie, error)
	Library(ctx context.Context, listIDs []string) ([]catalog.Movie, error)
}

// AppOptions controls how the Fiber application should behave.
type AppOptions struct {
	Logger         *logrus.Logger
	Images         ImageResolver
	Catalog        Catalog
	Ratings        *ratings.Store
	ListIDs        []string
	RequestTimeout time.Duration
}

const (
	contextKeyRequestID = "_bingehub_request_id"
	defaultTimeout      = 45 * time.Second
)

// NewApp builds the Fiber application with request-id, access-log and
// error-mapping middleware. Diagnostics routes are registered separately.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Images == nil {
		return nil, errors.New("image resolver is required")
	}
	if opts.Catalog == nil {
		return nil, errors.New("catalog is required")
	}
	if opts.Ratings == nil {
		return nil, errors.New("ratings store is required")
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultTimeout
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
		ErrorHandler:  errorHandler(opts.Logger),
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware(opts.Logger))

	h := &handlers{opts: opts}
	app.Get("/images/*", h.image)
	app.Get("/genres", h.genres)
	app.Get("/library", h.library)
	app.Get("/lists/:id", h.list)
	app.Get("/ratings", h.listRatings)
	app.Put("/ratings/:id", h.putRating)
	app.Post("/ratings/:id/toggle", h.toggleRating)

	return app, nil
}

// requestContextMiddleware 生成请求 ID 并在请求结束后输出访问日志。
func requestContextMiddleware(logger *logrus.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		started := time.Now()
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)

		err := c.Next()

		status := c.Response().StatusCode()
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			status = fiberErr.Code
		} else if err != nil {
			status, _ = statusForError(err)
		}
		fields := logging.RequestFields(reqID, c.Method(), string(c.Request().URI().Path()), status)
		fields["elapsed_ms"] = time.Since(started).Milliseconds()
		if status >= fiber.StatusInternalServerError {
			logger.WithFields(fields).WithError(err).Error("request_failed")
		} else {
			logger.WithFields(fields).Info("request_complete")
		}
		return err
	}
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

func errorHandler(logger *logrus.Logger) fiber.ErrorHandler {
	return func(c fiber.Ctx, err error) error {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(fiber.Map{"error": fiberErr.Message})
		}
		status, code := statusForError(err)
		if status >= fiber.StatusInternalServerError {
			logger.WithError(err).WithField("request_id", RequestID(c)).Debug("request_error_mapped")
		}
		return c.Status(status).JSON(fiber.Map{"error": code})
	}
}

// statusForError 将缓存与上游错误映射为 HTTP 状态码与错误码。
func statusForError(err error) (int, string) {
	var netErr *catalog.NetworkError
	var decodeErr *catalog.DecodeError
	switch {
	case errors.As(err, &netErr):
		switch {
		case netErr.Kind == catalog.KindStatus && netErr.StatusCode == fiber.StatusNotFound:
			return fiber.StatusNotFound, "not_found"
		case netErr.Kind == catalog.KindTimeout:
			return fiber.StatusGatewayTimeout, "upstream_timeout"
		default:
			return fiber.StatusBadGateway, "upstream_unavailable"
		}
	case errors.As(err, &decodeErr), errors.Is(err, assetcache.ErrDecode):
		return fiber.StatusBadGateway, "asset_undecodable"
	case errors.Is(err, ratings.ErrInvalidRating):
		return fiber.StatusBadRequest, "invalid_rating"
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout, "resolve_timeout"
	case errors.Is(err, assetcache.ErrClosed), errors.Is(err, context.Canceled):
		return fiber.StatusServiceUnavailable, "shutting_down"
	default:
		return fiber.StatusInternalServerError, "internal_error"
	}
}
