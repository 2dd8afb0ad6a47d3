package rest

import (
	"net/http"

	appchangelog "mindscape/application/changelog"
	"mindscape/application/evidence"
	"mindscape/application/graphstore"
	applens "mindscape/application/lens"
	"mindscape/infrastructure/config"
	"mindscape/interfaces/http/rest/handlers"
	"mindscape/interfaces/http/rest/middleware"
	"mindscape/pkg/auth"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Router creates and configures the HTTP router
type Router struct {
	changelogService *appchangelog.Service
	graphService     *graphstore.Service
	lensService      *applens.Service
	evidenceService  *evidence.Service
	config           *config.Config
	logger           *zap.Logger
}

// NewRouter creates a new router instance
func NewRouter(
	changelogService *appchangelog.Service,
	graphService *graphstore.Service,
	lensService *applens.Service,
	evidenceService *evidence.Service,
	cfg *config.Config,
	logger *zap.Logger,
) *Router {
	return &Router{
		changelogService: changelogService,
		graphService:     graphService,
		lensService:      lensService,
		evidenceService:  evidenceService,
		config:           cfg,
		logger:           logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Logger(rt.logger))

	// CORS configuration
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)

	router.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(rt.jwtValidator(), rt.logger))

		// Changelog endpoints
		r.Route("/changelog", func(r chi.Router) {
			changelogHandler := handlers.NewChangelogHandler(rt.changelogService, rt.logger)
			r.Get("/pending/{workspaceID}", changelogHandler.ListPending)
			r.Post("/pending/{workspaceID}", changelogHandler.SubmitChange)
			r.Post("/pending/{workspaceID}/approve", changelogHandler.Process)
			r.Post("/undo", changelogHandler.Undo)
			r.Get("/history/{workspaceID}", changelogHandler.History)
			r.Get("/version/{workspaceID}", changelogHandler.Version)
		})

		// Graph projection and overlay endpoints
		r.Route("/execution-graph", func(r chi.Router) {
			graphHandler := handlers.NewGraphHandler(rt.graphService, rt.logger)
			r.Get("/graph", graphHandler.GetGraph)
			r.Get("/overlay/{workspaceID}", graphHandler.GetOverlay)
			r.Put("/overlay/{workspaceID}", graphHandler.UpdateOverlay)
		})

		// Lens endpoints
		r.Route("/lens", func(r chi.Router) {
			lensHandler := handlers.NewLensHandler(rt.lensService, rt.logger)
			r.Get("/effective-lens", lensHandler.GetEffectiveLens)

			r.Put("/workspaces/{workspaceID}/lens-overrides/{nodeID}", lensHandler.SetWorkspaceOverride)
			r.Delete("/workspaces/{workspaceID}/lens-overrides/{nodeID}", lensHandler.RemoveWorkspaceOverride)

			r.Put("/session/{sessionID}/overrides/{nodeID}", lensHandler.SetSessionOverride)
			r.Delete("/session/{sessionID}/overrides/{nodeID}", lensHandler.RemoveSessionOverride)
			r.Put("/session/{sessionID}/overrides", lensHandler.ReplaceSessionOverrides)
			r.Delete("/session/{sessionID}/overrides", lensHandler.ClearSessionOverrides)

			r.Post("/changesets", lensHandler.CreateChangeSet)
			r.Post("/changesets/apply", lensHandler.ApplyChangeSet)

			r.Post("/profiles/snapshot", lensHandler.SnapshotPreset)
			r.Put("/profiles/{profileID}/active-preset", lensHandler.ActivatePreset)
			r.Get("/presets/{presetID}", lensHandler.GetPreset)

			// Lens analytics
			evidenceHandler := handlers.NewEvidenceHandler(rt.evidenceService, rt.logger)
			r.Get("/evidence/preset-diff", evidenceHandler.PresetDiff)
			r.Get("/evidence/drift", evidenceHandler.Drift)
		})
	})

	return router
}

// jwtValidator builds the token validator from configuration. An empty
// secret disables authentication entirely (local development).
func (rt *Router) jwtValidator() *auth.JWTValidator {
	if rt.config.JWTSecret == "" {
		return nil
	}
	validator, err := auth.NewJWTValidator(auth.JWTConfig{
		SecretKey: rt.config.JWTSecret,
		Issuer:    rt.config.JWTIssuer,
	})
	if err != nil {
		rt.logger.Error("Failed to create JWT validator, auth disabled", zap.Error(err))
		return nil
	}
	return validator
}

// healthCheck handles health check requests
func (rt *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

// readinessCheck handles readiness check requests
func (rt *Router) readinessCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}
