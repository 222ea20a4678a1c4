// internal/app/bootstrap/routes.go
package bootstrap

import (
	"errors"
	"net/http"

	eventsfeature "github.com/dalemusser/interviewhub/internal/app/features/events"
	healthfeature "github.com/dalemusser/interviewhub/internal/app/features/health"
	pairsfeature "github.com/dalemusser/interviewhub/internal/app/features/pairs"
	"github.com/dalemusser/interviewhub/internal/app/system/auth"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// Startup have completed, so deps.Services holds the running engine.
//
// The router loads the identity service's session cookie into context and
// mounts the JSON API for events and pairs. Every request is traced.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	svc := deps.Services
	if svc == nil || svc.Engine == nil {
		return nil, errors.New("startup did not build the lifecycle engine")
	}

	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"
	sessionMgr, err := auth.NewSessionManager(appCfg.SessionKey, appCfg.SessionName, appCfg.SessionDomain,
		appCfg.SessionMaxAge, secure, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}

	r := chi.NewRouter()

	// Global auth middleware: loads SessionUser into context if signed in.
	r.Use(sessionMgr.LoadSessionUser)

	// Health check endpoint for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(deps.MongoClient, svc.Provider.Name(), logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	pairsHandler := pairsfeature.NewHandler(svc.Engine, logger)
	eventsHandler := eventsfeature.NewHandler(svc.Roster, svc.Joins, logger)

	r.Route("/api", func(api chi.Router) {
		api.Mount("/events", eventsfeature.Routes(eventsHandler, pairsHandler, sessionMgr))
		api.Mount("/pairs", pairsfeature.Routes(pairsHandler, sessionMgr))
	})

	return otelhttp.NewHandler(r, "interviewhub"), nil
}
