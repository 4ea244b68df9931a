package metrics

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Route groups used as the route_group label.
const (
	RouteGroupWebhook   = "webhook"
	RouteGroupAdmin     = "admin"
	RouteGroupSystem    = "system"
	RouteGroupUnmatched = "unmatched"
)

type httpMetrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

func newHTTPMetrics(meter metric.Meter, namespace string) (*httpMetrics, error) {
	requests, err := meter.Int64Counter(
		fmt.Sprintf("%s_http_requests_total", namespace),
		metric.WithDescription("Total number of HTTP requests by route group"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		fmt.Sprintf("%s_http_request_duration_seconds", namespace),
		metric.WithDescription("HTTP request duration in seconds by route group"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &httpMetrics{requests: requests, duration: duration}, nil
}

// HTTPMetricsMiddleware records request count and latency labelled with route_group,
// method, route and status_code. The route is the matched pattern, so repair keys and
// other path parameters never become label values.
func HTTPMetricsMiddleware(meterProvider metric.MeterProvider, namespace string) gin.HandlerFunc {
	m, err := newHTTPMetrics(meterProvider.Meter(namespace), namespace)
	if err != nil {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		attrs := metric.WithAttributes(
			attribute.String("route_group", RouteGroup(route)),
			attribute.String("method", c.Request.Method),
			attribute.String("route", routeLabel(route)),
			attribute.String("status_code", strconv.Itoa(c.Writer.Status())),
		)
		ctx := c.Request.Context()
		m.requests.Add(ctx, 1, attrs)
		m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
	}
}

// RouteGroup maps a matched route pattern to its route group. An empty pattern means no
// route matched.
func RouteGroup(route string) string {
	switch {
	case route == "":
		return RouteGroupUnmatched
	case strings.HasPrefix(route, "/v1/webhooks/"):
		return RouteGroupWebhook
	case strings.HasPrefix(route, "/v1/admin/"):
		return RouteGroupAdmin
	default:
		return RouteGroupSystem
	}
}

func routeLabel(route string) string {
	if route == "" {
		return RouteGroupUnmatched
	}
	return route
}
