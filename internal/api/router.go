package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/auth"
	"github.com/hackgods/clinic-appointments/internal/directory"
	"github.com/hackgods/clinic-appointments/internal/events"
	"github.com/hackgods/clinic-appointments/internal/media"
	"github.com/hackgods/clinic-appointments/internal/metrics"
	"github.com/hackgods/clinic-appointments/internal/payment"
	"github.com/hackgods/clinic-appointments/internal/receipt"
)

type RouterConfig struct {
	Appointments *appointment.Service
	Directory    *directory.Service
	Payments     *payment.Service
	Receipts     *receipt.Generator
	Tokens       *auth.TokenIssuer
	Hub          *events.Hub
	Metrics      *metrics.Metrics
	Logger       zerolog.Logger

	Store     Pinger
	StoreName string
	Redis     *redis.Client

	// Media is optional; without it image parts are ignored.
	Media        media.Store
	MediaDir     string
	MediaBaseURL string

	Location        *time.Location
	Currency        string
	CORSOrigins     []string
	LoginRatePerMin int
	Env             string
	Version         string

	Now func() time.Time
}

type server struct {
	appts    *appointment.Service
	dir      *directory.Service
	payments *payment.Service
	receipts *receipt.Generator
	media    media.Store
	metrics  *metrics.Metrics
	loc      *time.Location
	currency string
	now      func() time.Time
	log      zerolog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	s := &server{
		appts:    cfg.Appointments,
		dir:      cfg.Directory,
		payments: cfg.Payments,
		receipts: cfg.Receipts,
		media:    cfg.Media,
		metrics:  cfg.Metrics,
		loc:      cfg.Location,
		currency: cfg.Currency,
		now:      cfg.Now,
		log:      cfg.Logger,
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}

	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger, cfg.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)

	health := NewHealthHandler(cfg.Store, cfg.StoreName, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}
	if cfg.MediaDir != "" {
		prefix := "/" + strings.Trim(cfg.MediaBaseURL, "/")
		if prefix == "/" {
			prefix = "/images"
		}
		r.Handle(prefix+"/*", http.StripPrefix(prefix+"/", http.FileServer(http.Dir(cfg.MediaDir))))
	}

	limiter := newIPLimiter(cfg.LoginRatePerMin)
	asUser := auth.Require(cfg.Tokens, appointment.RoleUser)
	asDoctor := auth.Require(cfg.Tokens, appointment.RoleDoctor)
	asAdmin := auth.Require(cfg.Tokens, appointment.RoleAdmin)
	asDoctorOrAdmin := auth.Require(cfg.Tokens, appointment.RoleDoctor, appointment.RoleAdmin)

	r.Route("/api", func(r chi.Router) {
		r.Route("/user", func(r chi.Router) {
			r.With(limiter.Middleware).Post("/register", s.registerUser())
			r.With(limiter.Middleware).Post("/login", s.loginUser())

			r.Group(func(r chi.Router) {
				r.Use(asUser)
				r.Get("/get-profile", s.getProfile())
				r.Post("/update-profile", s.updateProfile())
				r.Post("/book-appointment", s.bookAppointment())
				r.Get("/appointments", s.listAppointments())
				r.Post("/cancel-appointment", s.cancelAppointment())
				r.Get("/appointments/{id}/receipt", s.downloadReceipt())
				r.Post("/create-payment-intent", s.createPaymentIntent())
				r.Post("/confirm-payment", s.confirmPayment())
			})
		})

		r.Route("/doctor", func(r chi.Router) {
			r.Get("/list", s.publicDoctors())
			r.With(limiter.Middleware).Post("/login", s.loginDoctor())

			r.Group(func(r chi.Router) {
				r.Use(asDoctor)
				r.Post("/change-availability", s.changeAvailability())
				r.Get("/appointments", s.listAppointments())
				r.Get("/dashboard", s.doctorDashboard())
				r.Post("/appointment", s.doctorBook())
				r.Put("/appointment/{id}", s.rescheduleAppointment())
				r.Patch("/appointment/{id}/complete", s.completeAppointment())
				r.Patch("/appointment/{id}/confirm", s.confirmAppointment())
				r.Get("/users", s.doctorUsers())
			})
			r.With(asDoctorOrAdmin).Delete("/appointment/{id}", s.deleteAppointment())
		})

		r.Route("/admin", func(r chi.Router) {
			r.With(limiter.Middleware).Post("/login", s.loginAdmin())

			r.Group(func(r chi.Router) {
				r.Use(asAdmin)
				r.Post("/add-doctor", s.addDoctor())
				r.Post("/all-doctors", s.allDoctors())
				r.Patch("/doctors/{id}", s.updateDoctor())
				r.Post("/change-availability", s.changeAvailability())
				r.Delete("/doctor/{id}", s.deleteDoctor())
				r.Post("/delete-doctor", s.deleteDoctor())
				r.Post("/all-appointments", s.listAppointments())
				r.Delete("/appointment/{id}", s.deleteAppointment())
				r.Post("/cancel-appointment", s.cancelAppointment())
				r.Post("/all-users", s.allUsers())
				r.Post("/user", s.createUser())
				r.Put("/user/{id}", s.updateUser())
				r.Delete("/user/{id}", s.deleteUser())
				r.Post("/dashboard-stats", s.adminDashboard())
				if cfg.Hub != nil {
					r.Get("/events", cfg.Hub.ServeHTTP)
				}
			})
		})
	})

	return r
}
