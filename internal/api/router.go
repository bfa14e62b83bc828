package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/kiranshivaraju/provisioner/internal/api/middleware"
	"github.com/kiranshivaraju/provisioner/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	RateLimit *mw.RateLimit
	// Admin routes are only mounted when Admin is set.
	Admin *mw.AdminAuth

	HealthHandler        http.HandlerFunc
	CreateServerHandler  http.HandlerFunc
	DestroyServerHandler http.HandlerFunc
	JobStatusHandler     http.HandlerFunc
	RequestStatusHandler http.HandlerFunc
	PurgeRequestHandler  http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/health", orNotImplemented(deps.HealthHandler))

	r.Group(func(r chi.Router) {
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit.Limit)
		}

		r.Post("/create-server", orNotImplemented(deps.CreateServerHandler))
		r.Post("/destroy-server", orNotImplemented(deps.DestroyServerHandler))
		r.Get("/job/{jobID}", orNotImplemented(deps.JobStatusHandler))
		r.Get("/requests/{deviceID}/status", orNotImplemented(deps.RequestStatusHandler))
	})

	if deps.Admin != nil {
		r.Group(func(r chi.Router) {
			r.Use(deps.Admin.Authenticate)

			r.Delete("/admin/requests/{deviceID}", orNotImplemented(deps.PurgeRequestHandler))
		})
	}

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
