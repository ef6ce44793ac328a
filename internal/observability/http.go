package observability

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsPath is where the scrape endpoint is mounted.
const MetricsPath = "/metrics"

// MountMetrics registers the Prometheus scrape endpoint on the app.
func MountMetrics(app *fiber.App) {
	RegisterMetrics()
	app.Get(MetricsPath, adaptor.HTTPHandler(promhttp.Handler()))
}
