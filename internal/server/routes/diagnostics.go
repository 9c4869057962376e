package routes

import (
	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/blobfetch/internal/fetch"
	"github.com/any-hub/blobfetch/internal/version"
)

// StatusSource 提供诊断接口需要的统计快照与连接状态。
type StatusSource interface {
	Status() (fetch.StatsSnapshot, fetch.State)
}

// RegisterDiagnosticRoutes 暴露 /-/stats 与 /-/healthz，供运维查询 fetch 命中率与存活状态。
func RegisterDiagnosticRoutes(app *fiber.App, source StatusSource) {
	if app == nil || source == nil {
		return
	}

	app.Get("/-/stats", func(c fiber.Ctx) error {
		stats, state := source.Status()
		return c.JSON(statsPayload{
			State:    state.String(),
			Stats:    stats,
			HitRatio: stats.HitRatio(),
			Summary:  stats.Summary(),
		})
	})

	app.Get("/-/healthz", func(c fiber.Ctx) error {
		_, state := source.Status()
		if state == fetch.StateClosed {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "closed"})
		}
		return c.JSON(fiber.Map{
			"status":  "ok",
			"version": version.Full(),
		})
	})
}

type statsPayload struct {
	State    string              `json:"state"`
	Stats    fetch.StatsSnapshot `json:"stats"`
	HitRatio float64             `json:"hit_ratio"`
	Summary  string              `json:"summary"`
}
