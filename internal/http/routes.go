// Package http arma el router, las métricas y el ciclo de vida del server.
package http

import (
	stdhttp "net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/homesentry/internal/auth"
	"github.com/dropDatabas3/homesentry/internal/http/handlers"
	mw "github.com/dropDatabas3/homesentry/internal/http/middlewares"
	"github.com/dropDatabas3/homesentry/internal/rate"
)

// RouterConfig junta lo que el router necesita del wiring de main.
type RouterConfig struct {
	Handlers *handlers.Handlers
	Gate     *auth.Gate

	// AuthLimiter protege login/signup/refresh. nil = sin límite (tests).
	AuthLimiter rate.Limiter
}

// NewRouter arma el árbol de rutas con los tres gates:
//   - Identity-only:  RequireUser
//   - Device-exists:  RequireDevice
//   - Device-action:  RequireDeviceAction
func NewRouter(cfg RouterConfig) stdhttp.Handler {
	h := cfg.Handlers
	requireUser := mw.RequireUser(cfg.Gate)
	requireDevice := mw.RequireDevice(cfg.Gate)
	requireAction := mw.RequireDeviceAction(cfg.Gate)
	authLimited := mw.WithRateLimit(cfg.AuthLimiter)

	r := chi.NewRouter()

	// Health
	r.Get("/healthz", func(w stdhttp.ResponseWriter, _ *stdhttp.Request) {
		w.WriteHeader(stdhttp.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", h.Readyz)

	// Auth de usuarios
	r.Route("/auth", func(r chi.Router) {
		r.With(authLimited).Post("/login", h.Login)
		r.With(authLimited).Post("/signup", h.Signup)
		r.With(authLimited).Post("/refresh", h.Refresh)
		r.With(authLimited).Post("/resend_confirmation", h.ResendConfirmation)
		r.Get("/confirm_email", h.ConfirmEmail)
		r.Post("/confirm_email", h.ConfirmEmail)
		r.Post("/logout", h.Logout)
		r.With(requireUser).Get("/me", h.Me)
		r.With(requireUser).Post("/update_profile", h.UpdateProfile)
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/devices", func(r chi.Router) {
			// Rutas que llama el propio device (firmadas, sin claim)
			r.With(requireDevice).Post("/register", h.RegisterDevice)
			r.With(requireDevice).Get("/info", h.DeviceInfo)

			// Rutas del usuario
			r.With(requireUser).Post("/add_device", h.AddDevice)
			r.With(requireUser).Get("/user_devices", h.UserDevices)
			r.With(requireUser).Get("/{device_id}/events", h.DeviceEvents)

			// Device + dueño a la vez
			r.With(requireAction).Delete("/remove_device", h.RemoveDevice)
		})

		r.With(requireAction).Post("/events/add_event", h.AddEvent)

		r.Route("/faces", func(r chi.Router) {
			r.Use(requireUser)
			r.Post("/", h.AddFace)
			r.Get("/", h.ListFaces)
			r.Delete("/", h.DeleteFaces)
		})
	})

	// Cadena externa: request-id primero, recover lo más afuera posible del
	// resto, métricas por adentro del logging para no medir el overhead de log.
	return mw.Chain(r,
		mw.WithRequestID,
		mw.WithRecover,
		mw.WithSecurityHeaders,
		mw.WithLogging,
		WithMetrics,
	)
}
