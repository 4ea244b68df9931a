package http

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// adminCORSMaxAge is how long a browser may cache an operator API preflight.
const adminCORSMaxAge = 10 * time.Minute

// newAdminCORSMiddleware returns the CORS middleware for the operator API, or nil when
// CORS is disabled or no usable dashboard origin is configured. The Stripe webhook and
// the health routes never get CORS headers.
func newAdminCORSMiddleware(enabled bool, allowOrigins string, logger *slog.Logger) gin.HandlerFunc {
	if !enabled {
		return nil
	}

	origins := dashboardOrigins(allowOrigins, logger)
	if len(origins) == 0 {
		logger.Warn("admin CORS enabled but no valid dashboard origin configured")
		return nil
	}

	logger.Info("admin CORS enabled", slog.Any("origins", origins))

	return cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost},
		AllowHeaders:  []string{"Authorization"},
		ExposeHeaders: []string{"X-Request-Id"},
		MaxAge:        adminCORSMaxAge,
	})
}

// dashboardOrigins parses the comma-separated origin list. Entries that are not bare
// http(s) origins are dropped with a warning, wildcards included.
func dashboardOrigins(raw string, logger *slog.Logger) []string {
	var origins []string
	for part := range strings.SplitSeq(raw, ",") {
		origin := strings.TrimRight(strings.TrimSpace(part), "/")
		if origin == "" {
			continue
		}
		if !isBareOrigin(origin) {
			logger.Warn("ignoring invalid CORS origin", slog.String("origin", origin))
			continue
		}
		origins = append(origins, origin)
	}
	return origins
}

func isBareOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != "" && !strings.Contains(u.Host, "*") && u.Path == "" && u.RawQuery == "" && u.User == nil
}
