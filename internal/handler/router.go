package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gridmesh/csip-core/internal/config"
	"github.com/gridmesh/csip-core/internal/database"
	"github.com/gridmesh/csip-core/internal/middleware"
	"github.com/gridmesh/csip-core/internal/scope"
)

// Handlers collects the mounted handler set.
type Handlers struct {
	DeviceCapability *DeviceCapabilityHandler
	EndDevice        *EndDeviceHandler
	DER              *DERHandler
	DERProgram       *DERProgramHandler
	Pricing          *PricingHandler
	MirrorUsagePoint *MirrorUsagePointHandler
	Subscription     *SubscriptionHandler
	Response         *ResponseHandler
	Admin            *AdminHandler
	Health           *HealthHandler
}

// NewRouter assembles the full HTTP surface: the certificate-authenticated
// sep2 routes, the basic-auth JSON admin API and the operational endpoints.
func NewRouter(
	cfg *config.Config,
	deriver *scope.Deriver,
	redis *database.Redis,
	log *slog.Logger,
	h Handlers,
) chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Logging(log, cfg.Sep2.CertHeader))
	r.Use(middleware.Metrics())

	// Operational endpoints: unauthenticated, for the platform probes.
	r.Get("/health", h.Health.Health)
	r.Get("/ready", h.Health.Ready)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// sep2 device surface.
	r.Group(func(r chi.Router) {
		r.Use(middleware.CertAuth(cfg.Sep2.CertHeader, deriver))
		if cfg.Sep2.InstallCSIPV11aOptInMiddleware {
			r.Use(middleware.CSIPV11aNamespace())
		}
		sep2Limits := middleware.DefaultRateLimitConfig()
		sep2Limits.CertHeader = cfg.Sep2.CertHeader
		sep2Limits.XMLErrors = true
		r.Use(middleware.RateLimit(redis, sep2Limits))

		r.Get("/dcap", h.DeviceCapability.GetDeviceCapability)
		r.Get("/tm", h.DeviceCapability.GetTime)
		r.Mount("/mup", h.MirrorUsagePoint.Routes())
		r.Route("/edev", func(r chi.Router) {
			r.Get("/", h.EndDevice.List)
			r.Post("/", h.EndDevice.Register)
			r.Route("/{siteID}", func(r chi.Router) {
				r.Get("/", h.EndDevice.Get)
				r.Delete("/", h.EndDevice.Delete)
				r.Get("/reg", h.EndDevice.GetRegistration)
				r.Get("/cp", h.EndDevice.GetConnectionPoint)
				r.Put("/cp", h.EndDevice.PutConnectionPoint)
				r.Post("/cp", h.EndDevice.PutConnectionPoint)
				r.Get("/lel", h.EndDevice.ListLogEvents)
				r.Post("/lel", h.EndDevice.CreateLogEvent)
				r.Get("/lel/{logID}", h.EndDevice.GetLogEvent)
				r.Mount("/der", h.DER.Routes())
				r.Mount("/fsa", h.DERProgram.FSARoutes())
				r.Mount("/derp", h.DERProgram.ProgramRoutes())
				r.Mount("/tp", h.Pricing.Routes())
				r.Mount("/sub", h.Subscription.Routes())
				r.Mount("/rsps", h.Response.Routes())
			})
		})
	})

	// JSON management surface.
	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.CORS(cfg.Admin.AllowedOrigins))
		r.Use(middleware.AdminAuth(cfg.Admin))
		adminLimits := middleware.DefaultRateLimitConfig()
		if cfg.Admin.RateLimitPerMinute > 0 {
			adminLimits.RequestsPerMinute = cfg.Admin.RateLimitPerMinute
		}
		r.Use(middleware.RateLimit(redis, adminLimits))
		r.Mount("/", h.Admin.Routes())
	})

	return r
}
