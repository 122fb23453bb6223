package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/mahara-hq/mahara-backend/api/responses"
	"github.com/mahara-hq/mahara-backend/pkg/config"
	"github.com/mahara-hq/mahara-backend/pkg/logger"
)

// Pinger is the connectivity probe each infrastructure client exposes.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Mahara-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady probes the database, redis, and pub/sub. Nil dependencies are
// reported as skipped so publisher-only and API-only deployments share the handler.
func HealthReady(cfg *config.Config, logg *logger.Logger, db, redis, pubsub Pinger) http.HandlerFunc {
	probes := []struct {
		name   string
		pinger Pinger
	}{
		{"database", db},
		{"redis", redis},
		{"pubsub", pubsub},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Mahara-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		components := map[string]string{}
		healthy := true
		for _, probe := range probes {
			if probe.pinger == nil {
				components[probe.name] = "skipped"
				continue
			}
			if err := probe.pinger.Ping(ctx); err != nil {
				components[probe.name] = "unavailable"
				healthy = false
				if logg != nil {
					logg.Error(logg.WithFields(ctx, map[string]any{"component": probe.name}), "health.ready.failed", err)
				}
				continue
			}
			components[probe.name] = "ok"
		}

		status := "ready"
		httpStatus := http.StatusOK
		if !healthy {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
		}

		responses.WriteSuccessStatus(w, httpStatus, map[string]any{
			"status":     status,
			"components": components,
		})
	}
}
