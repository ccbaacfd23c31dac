package api

import (
	"net/http"

	"github.com/curhatin/companion/internal/identity"
	"github.com/curhatin/companion/internal/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// RouterConfig collects everything the HTTP surface is built from.
type RouterConfig struct {
	Base           *Handler
	Stream         *StreamHandler
	Config         *ConfigHandler
	AllowedOrigins []string
	IsDev          bool
	// Static serves everything outside the API, typically the landing page.
	Static http.Handler
}

// NewRouter wires middleware and routes.
func NewRouter(rc RouterConfig) chi.Router {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(rc.AllowedOrigins))
	r.Use(identity.Middleware(rc.IsDev))

	r.Get("/health", rc.Base.Health)

	NewSessionHandler(rc.Base).RegisterRoutes(r)
	NewWishlistHandler(rc.Base).RegisterRoutes(r)
	if rc.Config != nil {
		rc.Config.RegisterRoutes(r)
	}
	if rc.Stream != nil {
		r.Get("/api/v1/parlant/stream", rc.Stream.ServeHTTP)
	}

	if rc.Static != nil {
		r.Handle("/*", rc.Static)
	}
	return r
}
