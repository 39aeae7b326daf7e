package http

import (
	"net/http"

	"github.com/dishdash-auth/internal/application/auth"
	"github.com/dishdash-auth/internal/application/notification"
	"github.com/dishdash-auth/internal/application/otp"
	"github.com/dishdash-auth/internal/application/profile"
	"github.com/dishdash-auth/internal/application/token"
	"github.com/dishdash-auth/internal/config"
	jwtinfra "github.com/dishdash-auth/internal/infrastructure/jwt"
	"github.com/dishdash-auth/internal/pkg/password"
	"github.com/dishdash-auth/internal/transport/http/handler"
	appmiddleware "github.com/dishdash-auth/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"
)

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	UserRepo      UserRepository
	ChallengeRepo ChallengeRepository
	ProfileRepo   ProfileRepository
	ObjectStore   ObjectStore
	Mailer        Mailer
	// SMSSender may be nil when SMS delivery is disabled.
	SMSSender   SMSSender
	JWTProvider *jwtinfra.Provider
	Hasher      password.Hasher
}

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	if cfg.TrustProxyHeaders {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// 5 requests/second, burst of 10, applied to sensitive public endpoints.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)
	authMw := appmiddleware.Auth(deps.JWTProvider, deps.UserRepo)

	dispatcher := notification.NewDispatcher(notification.DispatcherDeps{
		Mailer:      deps.Mailer,
		SMSSender:   deps.SMSSender,
		EmailFrom:   cfg.SMTPFrom,
		SMSFrom:     cfg.SMSFrom,
		Timeout:     cfg.NotifyTimeout,
		MaxAttempts: cfg.NotifyMaxAttempts,
	})

	issuer := token.NewIssuer(deps.UserRepo, deps.JWTProvider)
	authSvc := auth.NewService(auth.ServiceDeps{
		UserRepo:          deps.UserRepo,
		Tokens:            issuer,
		Hasher:            deps.Hasher,
		RequireTokenMatch: cfg.LogoutRequireTokenMatch,
	})
	otpSvc := otp.NewService(otp.ServiceDeps{
		ChallengeRepo: deps.ChallengeRepo,
		UserRepo:      deps.UserRepo,
		Dispatcher:    dispatcher,
		TTL:           cfg.OTPTTL,
	})
	profileSvc := profile.NewService(profile.ServiceDeps{
		ProfileRepo:   deps.ProfileRepo,
		ObjectStore:   deps.ObjectStore,
		UploadTimeout: cfg.UploadTimeout,
		ImageURLTTL:   cfg.ImageURLTTL,
	})

	healthH := handler.NewHealthHandler()
	authH := handler.NewAuthHandler(authSvc)
	otpH := handler.NewOTPHandler(otpSvc)
	profileH := handler.NewProfileHandler(profileSvc, cfg.MaxImageBytes)

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)
		r.With(sensitiveRL.Limit).Post("/signup", authH.Signup)
		r.With(sensitiveRL.Limit).Post("/login", authH.Login)
		r.Post("/logout", authH.Logout)
		r.With(sensitiveRL.Limit).Post("/otp/{channel}/{action}", otpH.Action)

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(authMw)

			r.Get("/users/me", authH.Me)
			r.Delete("/users/me", authH.Deactivate)
			r.Get("/profile", profileH.Get)
			r.Put("/profile", profileH.Update)
			r.Put("/profile/image", profileH.UploadImage)
		})
	})

	return r
}
