package routes

import (
	"sort"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/binge-hub/binge-hub/internal/assetcache"
)

// RegisterDiagnosticsRoutes 暴露 /-/status 与 /-/metrics，供运维查询各 Resolver 的分层命中与进行中取数。
func RegisterDiagnosticsRoutes(app *fiber.App, inspectors []assetcache.Inspector, gatherer prometheus.Gatherer) {
	if app == nil {
		return
	}

	app.Get("/-/status", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"resolvers": encodeResolvers(inspectors),
		})
	})

	app.Get("/-/status/:resolver", func(c fiber.Ctx) error {
		name := strings.ToLower(strings.TrimSpace(c.Params("resolver")))
		if name == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "resolver_name_required"})
		}
		for _, inspector := range inspectors {
			if inspector != nil && inspector.Name() == name {
				return c.JSON(encodeResolver(inspector))
			}
		}
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "resolver_not_found"})
	})

	if gatherer != nil {
		app.Get("/-/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
}

type resolverPayload struct {
	Name    string           `json:"name"`
	Stats   assetcache.Stats `json:"stats"`
	Pending []pendingPayload `json:"pending"`
}

type pendingPayload struct {
	Key        string `json:"key"`
	WorkerID   string `json:"worker_id"`
	State      string `json:"state"`
	Waiters    int    `json:"waiters"`
	AgeSeconds int64  `json:"age_seconds"`
}

func encodeResolvers(inspectors []assetcache.Inspector) []resolverPayload {
	if len(inspectors) == 0 {
		return nil
	}
	result := make([]resolverPayload, 0, len(inspectors))
	for _, inspector := range inspectors {
		if inspector == nil {
			continue
		}
		result = append(result, encodeResolver(inspector))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

func encodeResolver(inspector assetcache.Inspector) resolverPayload {
	pending := inspector.Pending()
	encoded := make([]pendingPayload, 0, len(pending))
	for _, p := range pending {
		encoded = append(encoded, pendingPayload{
			Key:        p.Key,
			WorkerID:   p.WorkerID,
			State:      p.State,
			Waiters:    p.Waiters,
			AgeSeconds: int64(p.Age / time.Second),
		})
	}
	return resolverPayload{
		Name:    inspector.Name(),
		Stats:   inspector.Stats(),
		Pending: encoded,
	}
}
