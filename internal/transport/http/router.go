package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/lostfound-api/internal/application/audit"
	"github.com/lostfound-api/internal/application/claim"
	"github.com/lostfound-api/internal/application/donation"
	"github.com/lostfound-api/internal/application/item"
	"github.com/lostfound-api/internal/application/notify"
	"github.com/lostfound-api/internal/application/session"
	"github.com/lostfound-api/internal/application/user"
	"github.com/lostfound-api/internal/config"
	"github.com/lostfound-api/internal/domain"
	"github.com/lostfound-api/internal/infrastructure/dynamo"
	jwtinfra "github.com/lostfound-api/internal/infrastructure/jwt"
	s3infra "github.com/lostfound-api/internal/infrastructure/s3"
	"github.com/lostfound-api/internal/infrastructure/smtp"
	"github.com/lostfound-api/internal/infrastructure/sns"
	"github.com/lostfound-api/internal/transport/http/handler"
	appmiddleware "github.com/lostfound-api/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	UserRepo         *dynamo.UserRepo
	SessionRepo      *dynamo.SessionRepo
	ItemRepo         *dynamo.ItemRepo
	ClaimRepo        *dynamo.ClaimRepo
	NotificationRepo *dynamo.NotificationRepo
	ActivityLogRepo  *dynamo.ActivityLogRepo
	Watcher          *dynamo.Watcher
	ImageStore       *s3infra.ImageStore
	Mailer           smtp.Mailer
	PushPublisher    sns.PushPublisher
	JWTProvider      *jwtinfra.Provider
}

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
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

	var authMw func(http.Handler) http.Handler
	if deps.JWTProvider != nil {
		authMw = appmiddleware.Auth(deps.JWTProvider)
	} else {
		authMw = func(next http.Handler) http.Handler { return next }
	}
	staffOnly := appmiddleware.RequireStaff(cfg.AdminEmail)
	adminOnly := appmiddleware.RequireRole(cfg.AdminEmail, domain.RoleAdmin)

	// 5 requests/second, burst of 10, on the sensitive public endpoints.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	recorder := audit.NewRecorder(deps.ActivityLogRepo, nil)
	notifySvc := notify.NewService(notify.ServiceDeps{
		NotificationRepo: deps.NotificationRepo,
		UserRepo:         deps.UserRepo,
		PushPublisher:    deps.PushPublisher,
		AdminEmail:       cfg.AdminEmail,
	})
	itemSvc := item.NewService(item.ServiceDeps{
		ItemRepo:   deps.ItemRepo,
		Dispatcher: notifySvc,
		Recorder:   recorder,
		ImageStore: deps.ImageStore,
	})
	claimSvc := claim.NewService(claim.ServiceDeps{
		ClaimRepo:  deps.ClaimRepo,
		ItemRepo:   deps.ItemRepo,
		Dispatcher: notifySvc,
		Recorder:   recorder,
		Mailer:     deps.Mailer,
	})
	donationSvc := donation.NewService(donation.ServiceDeps{
		ItemRepo:          deps.ItemRepo,
		Dispatcher:        notifySvc,
		Recorder:          recorder,
		EligibilityWindow: time.Duration(cfg.DonationEligibilityDays) * 24 * time.Hour,
	})
	userSvc := user.NewService(user.ServiceDeps{
		UserRepo:   deps.UserRepo,
		AdminEmail: cfg.AdminEmail,
	})
	sessionSvc := session.NewService(session.ServiceDeps{
		SessionRepo:     deps.SessionRepo,
		UserRepo:        deps.UserRepo,
		JWTProvider:     deps.JWTProvider,
		AdminEmail:      cfg.AdminEmail,
		RefreshTokenDur: time.Duration(cfg.RefreshTokenExpiryDays) * 24 * time.Hour,
	})

	healthH := handler.NewHealthHandler()
	sessionH := handler.NewSessionHandler(sessionSvc)
	userH := handler.NewUserHandler(userSvc)
	itemH := handler.NewItemHandler(itemSvc, deps.Watcher, cfg.AdminEmail)
	claimH := handler.NewClaimHandler(claimSvc, cfg.AdminEmail)
	donationH := handler.NewDonationHandler(donationSvc, cfg.AdminEmail)
	notifH := handler.NewNotificationHandler(notifySvc)
	logsH := handler.NewActivityLogHandler(deps.ActivityLogRepo)

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)
		r.With(sensitiveRL.Limit).Post("/sessions/login", sessionH.Login)
		r.Post("/sessions/refresh", sessionH.Refresh)
		r.With(sensitiveRL.Limit).Post("/users", userH.Register)

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(authMw)

			r.Get("/sessions", sessionH.GetCurrent)
			r.Post("/sessions/logout", sessionH.Logout)

			// Any authenticated user
			r.Get("/users/{id}", userH.Get)
			r.Put("/users/{id}", userH.UpdateProfile)
			r.Post("/users/change-password", userH.ChangePassword)

			r.Post("/items", itemH.Create)
			r.Get("/items", itemH.List)
			r.Get("/items/search", itemH.Search)
			r.Get("/items/mine", itemH.ListMine)
			r.Get("/items/watch", itemH.Watch)
			r.Get("/items/{id}", itemH.Get)
			r.Post("/items/{id}/image", itemH.AttachImage)
			r.Get("/items/{id}/image", itemH.GetImage)
			r.Post("/items/{itemID}/claims", claimH.Submit)

			r.Get("/claims/mine", claimH.ListMine)
			r.Get("/claims/{id}", claimH.Get)

			r.Get("/notifications", notifH.ListUnread)
			r.Put("/notifications/{id}/read", notifH.MarkAsRead)
			r.Put("/notifications/{id}/delivered", notifH.MarkDelivered)

			// Staff-only routes (security and admin)
			r.Group(func(r chi.Router) {
				r.Use(staffOnly)

				r.Get("/items/pending", itemH.ListPending)
				r.Put("/items/{id}/approve", itemH.Approve)
				r.Put("/items/{id}/reject", itemH.Reject)
				r.Put("/items/{id}/return", itemH.MarkReturned)

				r.Get("/claims/pending", claimH.ListPending)
				r.Put("/claims/{id}/approve", claimH.Approve)
				r.Put("/claims/{id}/reject", claimH.Reject)

				r.Get("/donations/eligible", donationH.ListEligible)
				r.Put("/donations/{id}/ready", donationH.MarkReady)
				r.Put("/donations/{id}/donate", donationH.MarkDonated)
				r.Get("/donations/stats", donationH.Stats)

				r.Get("/activity-logs", logsH.List)
			})

			// Admin-only routes
			r.Group(func(r chi.Router) {
				r.Use(adminOnly)

				r.Get("/users", userH.List)
				r.Delete("/users/{id}", userH.Delete)
				r.Post("/notifications/compose", notifH.Compose)
			})
		})
	})

	return r
}
