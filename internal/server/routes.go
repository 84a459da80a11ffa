package server

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Deathbringer98/Firemap-WebApp/internal/api"
	"github.com/Deathbringer98/Firemap-WebApp/internal/ws"
)

// Deps are the handlers the router is assembled from. Hub may be nil.
type Deps struct {
	API     *api.Handler
	APIPath string
	Static  http.Handler
	Hub     *ws.Hub
}

// NewRouter wires the API path, the live feed and the static fallback.
func NewRouter(d Deps) *chi.Mux {
	if d.APIPath == "" {
		d.APIPath = api.DefaultPath
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RedirectSlashes)
	r.Use(middleware.GetHead)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:     []string{"*"},
		AllowedMethods:     api.AllowedMethods,
		AllowedHeaders:     api.AllowedHeaders,
		MaxAge:             300,
		OptionsPassthrough: true,
	}))

	d.API.RegisterRoutes(r, d.APIPath)

	// Debug & health
	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		api.SetCORSHeaders(w.Header())
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"ok","service":"firemap"}`)
	})
	if d.Hub != nil {
		r.Get("/ws", d.Hub.Handler)
		r.Get("/api/debug/clients", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, "%d\n", d.Hub.ClientsCount())
		})
	}

	r.Options("/*", api.Preflight)
	r.Get("/*", d.Static.ServeHTTP)
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})
	return r
}
